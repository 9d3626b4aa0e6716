package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hperssn/stride/internal/domain"
	"github.com/hperssn/stride/internal/runner"
)

// Sessions is the session host the API drives.
type Sessions interface {
	Create(id, deviceID string) (domain.Session, error)
	Get(id string) (domain.Session, bool)
	Start(id string) (domain.Session, error)
	Stop(id string) (domain.Session, error)
	Reset(id string) (domain.Session, error)
	Show(id string) (domain.Handoff, error)
	Subscribe(id string) (<-chan domain.Session, func(), error)
	Publish(id string, value float64) (bool, error)
	Remove(id string) error
}

type Server struct {
	sessions  Sessions
	summaries *SummaryStore
	logger    zerolog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(sessions Sessions, summaries *SummaryStore, logger zerolog.Logger) *Server {
	return &Server{
		sessions:  sessions,
		summaries: summaries,
		logger:    logger.With().Str("component", "http").Logger(),
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. Register it with
// http.Server.RegisterOnShutdown; Shutdown otherwise waits on them.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(ExtractDeviceMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	r.Post("/sessions", s.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.removeSession)
		r.Post("/start", s.command(s.sessions.Start))
		r.Post("/stop", s.command(s.sessions.Stop))
		r.Post("/reset", s.command(s.sessions.Reset))
		r.Post("/show", s.showSession)
		r.Post("/sensor", s.pushSensor)
		r.Get("/events", s.StreamSessionEvents)
	})
	r.Get("/summaries/{summaryId}", s.getSummary)

	return r
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		DeviceID string `json:"deviceId"`
	}

	// An empty body is allowed, chunked or not.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = GetDeviceID(r)
	}

	session, err := s.sessions.Create(req.ID, req.DeviceID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, session, http.StatusCreated)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Get(id)
	if !ok {
		respondError(w, "session not found", http.StatusNotFound)
		return
	}
	respondJSON(w, session, http.StatusOK)
}

func (s *Server) removeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Remove(id); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) command(fn func(id string) (domain.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, err := fn(id)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, session, http.StatusOK)
	}
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h, err := s.sessions.Show(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	stored := s.summaries.Put(id, h)
	respondJSON(w, stored, http.StatusCreated)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "summaryId")

	stored, ok := s.summaries.Get(id)
	if !ok {
		respondError(w, "summary not found", http.StatusNotFound)
		return
	}
	respondJSON(w, stored, http.StatusOK)
}

func (s *Server) pushSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		respondError(w, "value is required", http.StatusBadRequest)
		return
	}

	delivered, err := s.sessions.Publish(id, *req.Value)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, map[string]bool{"delivered": delivered}, http.StatusAccepted)
}

// respondErr maps session errors onto HTTP statuses.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": rej.Message, "code": rej.Code})
		return
	}

	switch {
	case errors.Is(err, runner.ErrSessionNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, runner.ErrSessionExists):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, runner.ErrSensorUnavailable):
		respondError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, runner.ErrNotPushable):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, runner.ErrClosed):
		respondError(w, err.Error(), http.StatusGone)
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		respondError(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
