package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Author identifies who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Greeting seeds every new conversation.
const Greeting = "Hello! I'm your AI assistant powered by RAG (Retrieval Augmented Generation) and protected by Guardrails. How can I help you today?"

// Apology replaces a reply whose generation failed.
const Apology = "Sorry, I encountered an error processing your request. Please try again."

// ClockLayout renders a message timestamp as hour:minute.
const ClockLayout = "15:04"

// Message is one entry in a conversation. Messages are immutable once appended.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Seq       int       `json:"seq"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsUser reports whether the message was written by the user.
func (m Message) IsUser() bool {
	return m.Author == AuthorUser
}

// Placement is the side of the chat window the message is drawn on.
func (m Message) Placement() string {
	if m.IsUser() {
		return "right"
	}
	return "left"
}

// Clock formats the timestamp in local time.
func (m Message) Clock() string {
	return m.Timestamp.Local().Format(ClockLayout)
}

// newID returns a time-ordered id, falling back to a random one.
func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
