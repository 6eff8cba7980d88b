// Package api provides the read-only inspection API for FawnBot.
//
// It exposes the live session table and the archive (submissions, quiz
// results, media jobs) for operational inspection. Nothing here mutates
// bot state.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/session"
	"github.com/kanolab/fawnbot/internal/store"
)

// DefaultShutdownTimeout bounds graceful HTTP server shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Server serves the inspection endpoints.
type Server struct {
	sessions *session.Store
	archive  store.Store
	httpSrv  *http.Server
}

// NewServer creates an inspection API server over the live session store
// and the archive.
func NewServer(addr string, sessions *session.Store, archive store.Store) *Server {
	s := &Server{sessions: sessions, archive: archive}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/sessions", s.sessionsHandler)
	r.Get("/submissions", s.submissionsHandler)
	r.Get("/quiz/results", s.quizResultsHandler)
	r.Get("/jobs", s.jobsHandler)
	r.Get("/jobs/{jobID}", s.jobHandler)

	s.httpSrv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the route tree, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Inspection API listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"live_sessions": s.sessions.Len(),
	}))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessions.List()))
}

func (s *Server) submissionsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := s.archive.GetSubmissions()
	if err != nil {
		slog.Error("Server.submissionsHandler: archive query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load submissions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(subs))
}

func (s *Server) quizResultsHandler(w http.ResponseWriter, r *http.Request) {
	var groupID int64
	if raw := r.URL.Query().Get("group_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid group_id"))
			return
		}
		groupID = parsed
	}

	results, err := s.archive.GetQuizResults(groupID)
	if err != nil {
		slog.Error("Server.quizResultsHandler: archive query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load quiz results"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}

func (s *Server) jobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.archive.GetMediaJobs()
	if err != nil {
		slog.Error("Server.jobsHandler: archive query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load media jobs"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(jobs))
}

func (s *Server) jobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.archive.GetMediaJob(jobID)
	if err != nil {
		slog.Error("Server.jobHandler: archive query failed", "error", err, "jobID", jobID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load media job"))
		return
	}
	if job == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Job not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(job))
}
