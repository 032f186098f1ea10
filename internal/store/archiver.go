package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/guardian/internal/conversation"
	"github.com/MikeSquared-Agency/guardian/internal/session"
)

// transcriptWriter is the subset of Store the archiver needs.
type transcriptWriter interface {
	WriteSession(ctx context.Context, sessionID uuid.UUID, startedAt time.Time) error
	WriteMessage(ctx context.Context, sessionID uuid.UUID, m conversation.Message) error
	EndSession(ctx context.Context, sessionID uuid.UUID, reason string) error
}

type recordKind int

const (
	recordStarted recordKind = iota
	recordMessage
	recordEnded
)

type record struct {
	kind      recordKind
	sessionID uuid.UUID
	at        time.Time
	message   conversation.Message
	reason    string
}

// Archiver copies session transcripts into the store off the request path. It
// implements session.Listener. Archived transcripts are never loaded back into
// a live session.
type Archiver struct {
	writer  transcriptWriter
	logger  *slog.Logger
	records chan record
	done    chan struct{}

	// opened tracks sessions whose row exists. Only Run touches it.
	opened map[uuid.UUID]bool
}

func NewArchiver(w transcriptWriter, buffer int, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  w,
		logger:  logger,
		records: make(chan record, buffer),
		done:    make(chan struct{}),
		opened:  make(map[uuid.UUID]bool),
	}
}

func (a *Archiver) Started(s *session.Session) {
	a.enqueue(record{kind: recordStarted, sessionID: s.ID, at: s.CreatedAt})
	// The greeting is appended before any listener is attached.
	for _, m := range s.Conversation.Snapshot().Messages {
		a.enqueue(record{kind: recordMessage, sessionID: s.ID, message: m})
	}
}

func (a *Archiver) Changed(s *session.Session, ch conversation.Change) {
	if ch.Kind != conversation.ChangeMessageAppended || ch.Message == nil {
		return
	}
	a.enqueue(record{kind: recordMessage, sessionID: s.ID, message: *ch.Message})
}

func (a *Archiver) Ended(s *session.Session, reason string) {
	a.enqueue(record{kind: recordEnded, sessionID: s.ID, reason: reason})
}

// enqueue never blocks the conversation; records are dropped when the buffer is full.
func (a *Archiver) enqueue(r record) {
	select {
	case a.records <- r:
	default:
		a.logger.Warn("archive buffer full, dropping record", "session_id", r.sessionID)
	}
}

// Run writes records until ctx is done, then drains what is already queued.
func (a *Archiver) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case r := <-a.records:
			a.write(ctx, r)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (a *Archiver) Wait() {
	<-a.done
}

func (a *Archiver) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case r := <-a.records:
			a.write(ctx, r)
		default:
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, r record) {
	var err error
	switch r.kind {
	case recordStarted:
		err = a.openSession(ctx, r.sessionID, r.at)
	case recordMessage:
		// The start record may have been dropped on a full buffer.
		if err = a.openSession(ctx, r.sessionID, r.message.Timestamp); err == nil {
			err = a.writer.WriteMessage(ctx, r.sessionID, r.message)
		}
	case recordEnded:
		err = a.writer.EndSession(ctx, r.sessionID, r.reason)
		delete(a.opened, r.sessionID)
	}
	if err != nil {
		a.logger.Error("archive write failed", "session_id", r.sessionID, "error", err)
	}
}

func (a *Archiver) openSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	if a.opened[id] {
		return nil
	}
	if err := a.writer.WriteSession(ctx, id, at); err != nil {
		return err
	}
	a.opened[id] = true
	return nil
}
