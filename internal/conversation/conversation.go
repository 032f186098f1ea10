package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultReplyDelay is the artificial latency before a reply is appended.
const DefaultReplyDelay = time.Second

// Responder produces the assistant reply for a user message.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// Timer is a scheduled callback that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d elapses without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ChangeKind describes a mutation delivered to observers.
type ChangeKind string

const (
	ChangeMessageAppended ChangeKind = "message.appended"
	ChangePendingChanged  ChangeKind = "pending.changed"
)

// Snapshot is a point-in-time copy of the conversation state.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Pending  bool      `json:"pending"`
	Version  uint64    `json:"version"`
}

// Change is delivered to observers after each mutation. Message is set for
// ChangeMessageAppended only.
type Change struct {
	Kind     ChangeKind
	Message  *Message
	Snapshot Snapshot
}

// Observer receives changes in mutation order. It must not call Submit.
type Observer func(Change)

type observerEntry struct {
	id int
	fn Observer
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithReplyDelay sets the delay between an accepted submit and its reply.
func WithReplyDelay(d time.Duration) Option {
	return func(c *Conversation) { c.delay = d }
}

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) Option {
	return func(c *Conversation) { c.scheduler = s }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.logger = l }
}

// Conversation holds the ordered messages and the pending flag for one chat
// session. All mutations are serialized; at most one reply is in flight.
type Conversation struct {
	responder Responder
	scheduler Scheduler
	delay     time.Duration
	now       func() time.Time
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	messages     []Message
	pending      bool
	version      uint64
	timer        Timer
	closed       bool
	lastActivity time.Time
	observers    []observerEntry
	nextObserver int

	// notifyMu keeps observer delivery in mutation order.
	notifyMu sync.Mutex
}

// New creates a conversation seeded with the assistant greeting.
func New(r Responder, opts ...Option) *Conversation {
	c := &Conversation{
		responder: r,
		scheduler: wallScheduler{},
		delay:     DefaultReplyDelay,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.appendLocked(AuthorAssistant, Greeting)
	return c
}

// Submit appends a user message and schedules the reply. Blank text, or text
// submitted while a reply is pending, is dropped silently and Submit returns false.
func (c *Conversation) Submit(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	c.mu.Lock()
	if c.pending || c.closed {
		c.mu.Unlock()
		return false
	}
	msg := c.appendLocked(AuthorUser, text)
	c.pending = true
	c.version++
	c.timer = c.scheduler.AfterFunc(c.delay, func() { c.deliver(text) })
	c.notifyAndUnlock(
		Change{Kind: ChangeMessageAppended, Message: &msg},
		Change{Kind: ChangePendingChanged},
	)
	return true
}

// deliver computes the reply for prompt and appends it. The reply is appended
// and pending cleared on every exit path; a failing responder yields Apology.
func (c *Conversation) deliver(prompt string) {
	reply := Apology
	defer func() { c.receiveReply(reply) }()

	text, err := c.respond(prompt)
	if err != nil {
		c.logger.Error("reply generation failed", "error", err)
		return
	}
	reply = text
}

func (c *Conversation) respond(prompt string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("responder panic: %v", r)
		}
	}()
	return c.responder.Respond(c.ctx, prompt)
}

// receiveReply appends an assistant message and clears pending. Replies
// arriving after Close are discarded.
func (c *Conversation) receiveReply(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	msg := c.appendLocked(AuthorAssistant, text)
	c.pending = false
	c.version++
	c.timer = nil
	c.notifyAndUnlock(
		Change{Kind: ChangeMessageAppended, Message: &msg},
		Change{Kind: ChangePendingChanged},
	)
}

func (c *Conversation) appendLocked(author Author, content string) Message {
	ts := c.now()
	msg := Message{
		ID:        newID(),
		Seq:       len(c.messages) + 1,
		Author:    author,
		Content:   content,
		Timestamp: ts,
	}
	c.messages = append(c.messages, msg)
	c.version++
	c.lastActivity = ts
	return msg
}

func (c *Conversation) snapshotLocked() Snapshot {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{Messages: msgs, Pending: c.pending, Version: c.version}
}

// notifyAndUnlock releases mu and delivers changes to observers. notifyMu is
// taken before mu is released so deliveries cannot overtake each other.
func (c *Conversation) notifyAndUnlock(changes ...Change) {
	snap := c.snapshotLocked()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, ch := range changes {
		ch.Snapshot = snap
		for _, o := range observers {
			o.fn(ch)
		}
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Conversation) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(fn)
}

// Watch registers fn and returns the state it starts from. fn only receives
// changes with a Version greater than the returned snapshot's.
func (c *Conversation) Watch(fn Observer) (Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), c.subscribeLocked(fn)
}

func (c *Conversation) subscribeLocked(fn Observer) func() {
	id := c.nextObserver
	c.nextObserver++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Pending reports whether a reply is outstanding.
func (c *Conversation) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// LastActivity is the timestamp of the most recent message.
func (c *Conversation) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Done is closed once the conversation has been closed.
func (c *Conversation) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close stops any scheduled reply and detaches observers. It is idempotent.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.observers = nil
	c.cancel()
}
