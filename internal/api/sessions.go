package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/guardian/internal/conversation"
	"github.com/MikeSquared-Agency/guardian/internal/feed"
	"github.com/MikeSquared-Agency/guardian/internal/responder"
	"github.com/MikeSquared-Agency/guardian/internal/session"
)

// keepAliveInterval spaces SSE comments on idle streams.
const keepAliveInterval = 15 * time.Second

// SubmitRequest is the payload for POST /api/v1/sessions/{id}/messages.
type SubmitRequest struct {
	Content string `json:"content"`
}

// SubmitResponse carries the render feed after a submit. Accepted is false when
// the text was blank or a reply was still pending; the submit is then dropped
// and the state is unchanged.
type SubmitResponse struct {
	feed.View
	Accepted bool `json:"accepted"`
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}

// createSession handles POST /api/v1/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, feed.NewView(sess.ID.String(), sess.Conversation.Snapshot()))
}

// getSession handles GET /api/v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, feed.NewView(sess.ID.String(), sess.Conversation.Snapshot()))
}

// endSession handles DELETE /api/v1/sessions/{id}
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.sessions.End(sess.ID, session.ReasonClosed); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submitMessage handles POST /api/v1/sessions/{id}/messages
func (s *Server) submitMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	accepted := sess.Conversation.Submit(req.Content)
	if accepted {
		s.logger.Debug("message accepted",
			"session_id", sess.ID,
			"topic", responder.Topic(req.Content),
		)
	} else {
		s.logger.Debug("message dropped", "session_id", sess.ID)
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		View:     feed.NewView(sess.ID.String(), sess.Conversation.Snapshot()),
		Accepted: accepted,
	})
}

// streamEvents handles GET /api/v1/sessions/{id}/events as Server-Sent Events.
// The first event is a full snapshot; later events follow each change and are
// never already part of that snapshot. Slow readers may miss intermediate
// events but every event carries the version.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan feed.Event, 16)
	id := sess.ID.String()
	snap, unsubscribe := sess.Conversation.Watch(func(ch conversation.Change) {
		select {
		case events <- feed.NewEvent(id, ch):
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", feed.NewView(id, snap)); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Conversation.Done():
			writeSSE(w, "session.ended", map[string]string{"session_id": id})
			flusher.Flush()
			return
		case evt := <-events:
			if !follows(evt, snap.Version) {
				continue
			}
			if err := writeSSE(w, evt.Kind, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// follows reports whether evt is newer than the snapshot already sent.
func follows(evt feed.Event, snapshotVersion uint64) bool {
	return evt.Version > snapshotVersion
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
