package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/guardian/internal/conversation"
)

// ErrNotFound is returned for unknown or ended sessions.
var ErrNotFound = errors.New("session not found")

// End reasons reported to listeners.
const (
	ReasonClosed   = "closed"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// DefaultIdleTTL is how long a session may go without messages before it is ended.
const DefaultIdleTTL = 30 * time.Minute

// Session is one isolated conversation.
type Session struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Conversation *conversation.Conversation

	unsubscribe func()
}

// Listener is notified about session lifecycle and conversation changes.
// Changed is called synchronously from the conversation's notify path.
type Listener interface {
	Started(s *Session)
	Changed(s *Session, ch conversation.Change)
	Ended(s *Session, reason string)
}

// Registry owns every live session. Sessions share no state.
type Registry struct {
	responder conversation.Responder
	convOpts  []conversation.Option
	listeners []Listener
	idleTTL   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// Option configures a Registry.
type Option func(*Registry)

// WithConversationOptions applies opts to every conversation the registry creates.
func WithConversationOptions(opts ...conversation.Option) Option {
	return func(r *Registry) { r.convOpts = append(r.convOpts, opts...) }
}

// WithListener adds a listener.
func WithListener(l Listener) Option {
	return func(r *Registry) { r.listeners = append(r.listeners, l) }
}

// WithIdleTTL sets the idle expiry used by Sweep.
func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(responder conversation.Responder, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		responder: responder,
		idleTTL:   DefaultIdleTTL,
		now:       time.Now,
		logger:    logger,
		sessions:  make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new session seeded with the greeting.
func (r *Registry) Create() *Session {
	opts := append([]conversation.Option{conversation.WithLogger(r.logger)}, r.convOpts...)
	s := &Session{
		ID:           uuid.New(),
		CreatedAt:    r.now(),
		Conversation: conversation.New(r.responder, opts...),
	}
	s.unsubscribe = s.Conversation.Subscribe(func(ch conversation.Change) {
		for _, l := range r.listeners {
			l.Changed(s, ch)
		}
	})

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	for _, l := range r.listeners {
		l.Started(s)
	}
	r.logger.Info("session started", "session_id", s.ID)
	return s
}

// Get returns the live session with id.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End closes the session and forgets it.
func (r *Registry) End(id uuid.UUID, reason string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	s.unsubscribe()
	s.Conversation.Close()
	for _, l := range r.listeners {
		l.Ended(s, reason)
	}
	r.logger.Info("session ended", "session_id", s.ID, "reason", reason)
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep ends sessions idle for longer than the TTL. Sessions awaiting a reply
// are kept. It returns the number of sessions ended.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.RLock()
	var stale []uuid.UUID
	for id, s := range r.sessions {
		if s.Conversation.Pending() {
			continue
		}
		if s.Conversation.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	ended := 0
	for _, id := range stale {
		if err := r.End(id, ReasonIdle); err == nil {
			ended++
		}
	}
	return ended
}

// Run sweeps idle sessions every interval until ctx is done, then ends all
// remaining sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("idle sessions expired", "count", n)
			}
		}
	}
}

// CloseAll ends every live session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.End(id, ReasonShutdown)
	}
}
