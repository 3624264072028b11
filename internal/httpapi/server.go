// Package httpapi exposes the enrollment and assignment services over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-course/internal/assignment"
	"github.com/p-n-ai/pai-course/internal/enrollment"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// Config holds the handler dependencies.
type Config struct {
	Enrollment  *enrollment.Service
	Assignments *assignment.Service
	// Live is mounted at /ws when set.
	Live http.Handler
	// Ready reports backing service health for /readyz.
	Ready func(ctx context.Context) error
}

// Server routes requests to the services.
type Server struct {
	enrollment  *enrollment.Service
	assignments *assignment.Service
	ready       func(ctx context.Context) error
	mux         *http.ServeMux
}

// New creates the HTTP handler. Missing services default to in-memory ones.
func New(cfg Config) *Server {
	s := &Server{
		enrollment:  cfg.Enrollment,
		assignments: cfg.Assignments,
		ready:       cfg.Ready,
		mux:         http.NewServeMux(),
	}
	if s.enrollment == nil {
		s.enrollment = enrollment.NewService(enrollment.ServiceConfig{})
	}
	if s.assignments == nil {
		s.assignments = assignment.NewService(assignment.ServiceConfig{})
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.mux.HandleFunc("POST /courses/{courseID}/enroll", s.handleEnroll)
	s.mux.HandleFunc("POST /courses/{courseID}/sections/{address}/view", s.handleViewSection)
	s.mux.HandleFunc("GET /courses/{courseID}/details", s.handleDetails)
	s.mux.HandleFunc("GET /courses/{courseID}/outline", s.handleOutline)
	s.mux.HandleFunc("POST /courses/{courseID}/quizzes/{quizID}/attempts", s.handleSubmitQuiz)
	s.mux.HandleFunc("POST /courses/{courseID}/uncomplete", s.handleUncomplete)
	s.mux.HandleFunc("GET /courses/{courseID}/assignments", s.handleAvailableAssignments)
	s.mux.HandleFunc("POST /assignments/{id}/submissions", s.handleSubmitAssignment)

	s.mux.HandleFunc("PUT /admin/courses/{courseID}/completion", s.handleSetCompletion)
	s.mux.HandleFunc("GET /admin/courses/{courseID}/completed", s.handleCompletedLearners)
	s.mux.HandleFunc("GET /admin/courses/{courseID}/assignments", s.handleListAssignments)
	s.mux.HandleFunc("POST /admin/courses/{courseID}/assignments", s.handleCreateAssignment)
	s.mux.HandleFunc("PUT /admin/courses/{courseID}/assignments/order", s.handleReorderAssignments)
	s.mux.HandleFunc("PUT /admin/assignments/{id}", s.handleUpdateAssignment)
	s.mux.HandleFunc("DELETE /admin/assignments/{id}", s.handleDeleteAssignment)
	s.mux.HandleFunc("GET /admin/assignments/{id}/submissions", s.handleListSubmissions)
	s.mux.HandleFunc("PUT /admin/submissions/{id}/grade", s.handleGradeSubmission)

	if cfg.Live != nil {
		s.mux.Handle("GET /ws", cfg.Live)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps a service error to a status and a message safe for learners.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, enrollment.ErrLocked):
		return http.StatusForbidden, enrollment.UserMessage(err)
	case errors.Is(err, enrollment.ErrNotFound):
		return http.StatusNotFound, enrollment.UserMessage(err)
	case errors.Is(err, enrollment.ErrInvalidScore):
		return http.StatusBadRequest, enrollment.UserMessage(err)
	case errors.Is(err, quiz.ErrInvalidAnswers):
		return http.StatusBadRequest, "Answer every question of the quiz."
	case errors.Is(err, assignment.ErrInvalidDraft):
		return http.StatusBadRequest, "An assignment needs a title and a deadline."
	case errors.Is(err, assignment.ErrInvalidRequest):
		return http.StatusBadRequest, "Check the request and try again."
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		return http.StatusConflict, enrollment.UserMessage(err)
	case errors.Is(err, assignment.ErrLimitReached):
		return http.StatusConflict, "This course already has the maximum number of assignments."
	case errors.Is(err, assignment.ErrNotAvailable):
		return http.StatusForbidden, "This assignment is not available yet."
	case errors.Is(err, enrollment.ErrPersistence), errors.Is(err, enrollment.ErrConflict):
		return http.StatusServiceUnavailable, enrollment.UserMessage(err)
	default:
		return http.StatusInternalServerError, enrollment.UserMessage(err)
	}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

