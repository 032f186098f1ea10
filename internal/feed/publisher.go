package feed

import (
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/MikeSquared-Agency/guardian/internal/conversation"
	"github.com/MikeSquared-Agency/guardian/internal/session"
)

// Subjects published by the render feed.
const (
	SubjectSessionStarted  = "guardian.session.started"
	SubjectSessionEnded    = "guardian.session.ended"
	SubjectAgentRegistered = "guardian.agent.registered"
)

// SessionSubject is the per-session subject for a change kind, e.g.
// "guardian.session.<id>.message.appended".
func SessionSubject(sessionID string, kind conversation.ChangeKind) string {
	return "guardian.session." + sessionID + "." + string(kind)
}

// MessageView is a message as a renderer draws it.
type MessageView struct {
	ID        string `json:"id"`
	Seq       int    `json:"seq"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Clock     string `json:"clock"`
	Placement string `json:"placement"`
}

// NewMessageView converts a conversation message for rendering.
func NewMessageView(m conversation.Message) MessageView {
	return MessageView{
		ID:        m.ID.String(),
		Seq:       m.Seq,
		Author:    string(m.Author),
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		Clock:     m.Clock(),
		Placement: m.Placement(),
	}
}

// View is the render feed for one session: the ordered messages plus the busy flag.
type View struct {
	SessionID string        `json:"session_id"`
	Messages  []MessageView `json:"messages"`
	Pending   bool          `json:"pending"`
	Version   uint64        `json:"version"`
}

// NewView converts a snapshot for rendering.
func NewView(sessionID string, snap conversation.Snapshot) View {
	return View{
		SessionID: sessionID,
		Messages: lo.Map(snap.Messages, func(m conversation.Message, _ int) MessageView {
			return NewMessageView(m)
		}),
		Pending: snap.Pending,
		Version: snap.Version,
	}
}

// Event is one render feed update.
type Event struct {
	Kind      string       `json:"kind"`
	SessionID string       `json:"session_id"`
	Message   *MessageView `json:"message,omitempty"`
	Pending   bool         `json:"pending"`
	Version   uint64       `json:"version"`
	Reason    string       `json:"reason,omitempty"`
	At        string       `json:"at"`
}

// NewEvent converts a conversation change into a feed event.
func NewEvent(sessionID string, ch conversation.Change) Event {
	evt := Event{
		Kind:      string(ch.Kind),
		SessionID: sessionID,
		Pending:   ch.Snapshot.Pending,
		Version:   ch.Snapshot.Version,
		At:        time.Now().UTC().Format(time.RFC3339),
	}
	if ch.Message != nil {
		mv := NewMessageView(*ch.Message)
		evt.Message = &mv
	}
	return evt
}

type publisher interface {
	Publish(subject string, data any) error
}

// Publisher mirrors session activity onto the bus. It implements session.Listener.
type Publisher struct {
	bus    publisher
	logger *slog.Logger
}

func NewPublisher(bus publisher, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

func (p *Publisher) Started(s *session.Session) {
	snap := s.Conversation.Snapshot()
	p.publish(SubjectSessionStarted, Event{
		Kind:      "session.started",
		SessionID: s.ID.String(),
		Pending:   snap.Pending,
		Version:   snap.Version,
		At:        s.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) Changed(s *session.Session, ch conversation.Change) {
	id := s.ID.String()
	p.publish(SessionSubject(id, ch.Kind), NewEvent(id, ch))
}

func (p *Publisher) Ended(s *session.Session, reason string) {
	p.publish(SubjectSessionEnded, Event{
		Kind:      "session.ended",
		SessionID: s.ID.String(),
		Reason:    reason,
		At:        time.Now().UTC().Format(time.RFC3339),
	})
}

// publish logs failures; the bus never affects conversation state.
func (p *Publisher) publish(subject string, evt Event) {
	if err := p.bus.Publish(subject, evt); err != nil {
		p.logger.Warn("failed to publish feed event", "subject", subject, "error", err)
	}
}
