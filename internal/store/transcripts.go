package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/guardian/internal/conversation"
)

// WriteSession records the start of a session.
func (s *Store) WriteSession(ctx context.Context, sessionID uuid.UUID, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions (id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		sessionID, startedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// WriteMessage appends one message to a session transcript. Writing the same
// message twice is a no-op.
func (s *Store) WriteMessage(ctx context.Context, sessionID uuid.UUID, m conversation.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, seq, author, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, sessionID, m.Seq, string(m.Author), m.Content, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// EndSession marks a session as ended.
func (s *Store) EndSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chat_sessions SET ended_at = now(), end_reason = $1
		WHERE id = $2`,
		reason, sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetTranscript returns the archived messages of a session in order.
func (s *Store) GetTranscript(ctx context.Context, sessionID uuid.UUID) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, author, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var msgs []conversation.Message
	for rows.Next() {
		var m conversation.Message
		var author string
		if err := rows.Scan(&m.ID, &m.Seq, &author, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Author = conversation.Author(author)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
