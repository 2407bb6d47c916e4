// Package http exposes the engine over a JSON HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	weft "github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
)

// Server routes session requests to a weft engine. Live sessions are
// kept in memory; when the engine has a state store, sessions are
// persisted after every processed event and revived on demand.
type Server struct {
	engine *weft.Engine
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*weft.Session
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a Server over an engine.
func NewServer(engine *weft.Engine, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		logger:   logging.NewNop(),
		sessions: make(map[string]*weft.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/sessions", s.createSession)
	r.Get("/sessions/{id}", s.getSession)
	r.Delete("/sessions/{id}", s.deleteSession)
	r.Post("/sessions/{id}/events", s.postEvent)

	return r
}

// eventPayload is the wire shape of an event, both directions.
type eventPayload struct {
	Type          string         `json:"type"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Loop          string         `json:"loop,omitempty"`
}

func toPayload(ev domain.Event) eventPayload {
	return eventPayload{
		Type:          ev.Type,
		Arguments:     ev.Arguments,
		CorrelationID: ev.CorrelationID,
		Loop:          ev.Loop,
	}
}

func toPayloads(evs []domain.Event) []eventPayload {
	out := make([]eventPayload, 0, len(evs))
	for _, ev := range evs {
		out = append(out, toPayload(ev))
	}
	return out
}

type createSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	Events    []eventPayload `json:"events"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	sess, events, err := s.engine.NewSession(r.Context(), body.SessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.persist(r, sess)
	s.writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sess.ID(),
		Events:    toPayloads(events),
	})
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var body eventPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Type == "" {
		http.Error(w, "Event type is required", http.StatusBadRequest)
		return
	}

	events, err := sess.ProcessAll(r.Context(), domain.Event{
		Type:          body.Type,
		Arguments:     body.Arguments,
		CorrelationID: body.CorrelationID,
		Loop:          body.Loop,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoQuiescence) {
			http.Error(w, fmt.Sprintf("Processing error: %v", err), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, fmt.Sprintf("Processing error: %v", err), http.StatusInternalServerError)
		return
	}

	s.persist(r, sess)
	s.writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID(),
		Events:    toPayloads(events),
	})
}

type instancePayload struct {
	UID    string `json:"uid"`
	FlowID string `json:"flow_id"`
	Status string `json:"status"`
	Loop   string `json:"loop"`
}

type sessionStatusResponse struct {
	SessionID string            `json:"session_id"`
	Context   map[string]any    `json:"context"`
	Instances []instancePayload `json:"instances"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	resp := sessionStatusResponse{
		SessionID: sess.ID(),
		Context:   sess.Context(),
		Instances: []instancePayload{},
	}
	for _, inst := range sess.Instances() {
		resp.Instances = append(resp.Instances, instancePayload{
			UID:    inst.UID,
			FlowID: inst.Def.ID,
			Status: string(inst.Status),
			Loop:   inst.Loop,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if mgr := s.engine.Sessions(); mgr != nil {
		if err := mgr.Delete(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookup finds the session in memory, falling back to the state store.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*weft.Session, bool) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess != nil {
		return sess, true
	}

	if s.engine.Sessions() == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	sess, err := s.engine.LoadSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		return nil, false
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, true
}

func (s *Server) persist(r *http.Request, sess *weft.Session) {
	if s.engine.Sessions() == nil {
		return
	}
	if err := sess.Save(r.Context()); err != nil {
		s.logger.Warn("failed to persist session", "session_id", sess.ID(), "err", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "err", err)
	}
}
