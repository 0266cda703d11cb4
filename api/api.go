// Package api exposes the dispatch engine over HTTP. Handlers are thin: they
// parse, delegate to the core services and map error kinds to status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trainops/instructor-dispatch/core/assign"
	"github.com/trainops/instructor-dispatch/core/assignment"
	"github.com/trainops/instructor-dispatch/core/candidate"
	"github.com/trainops/instructor-dispatch/core/distance"
	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/model"
)

// Resolver is the candidate resolution surface the API exposes.
type Resolver interface {
	Resolve(ctx context.Context, start, end time.Time) (candidate.Candidates, error)
}

// Proposer previews assignments without persisting them.
type Proposer interface {
	Propose(units []candidate.UnitCandidate, instructors []candidate.InstructorCandidate) assign.Result
}

// AssignmentService is the mutation surface of the state machine.
type AssignmentService interface {
	BulkSave(ctx context.Context, proposals []model.Proposal) (assignment.BulkReport, error)
	Respond(ctx context.Context, scheduleID, instructorID string, response model.Response) (model.Assignment, error)
	Cancel(ctx context.Context, scheduleID, instructorID string) (model.Assignment, error)
}

// DistanceBatch runs the quota-bounded distance computation.
type DistanceBatch interface {
	Run(ctx context.Context, limit int) (distance.BatchResult, error)
	Usage(ctx context.Context) (used, quota int, err error)
}

// Server holds the handler dependencies.
type Server struct {
	resolver    Resolver
	engine      Proposer
	assignments AssignmentService
	distances   DistanceBatch
	token       string
	log         logger.Logger
}

// NewServer creates a Server. token, when non-empty, is required as a bearer
// token on every route.
func NewServer(resolver Resolver, engine Proposer, assignments AssignmentService, distances DistanceBatch, token string, log logger.Logger) *Server {
	return &Server{
		resolver:    resolver,
		engine:      engine,
		assignments: assignments,
		distances:   distances,
		token:       token,
		log:         log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/candidates", s.auth(s.handleCandidates))
	mux.HandleFunc("POST /api/assignments/preview", s.auth(s.handlePreview))
	mux.HandleFunc("POST /api/assignments/bulk", s.auth(s.handleBulk))
	mux.HandleFunc("POST /api/assignments/respond", s.auth(s.handleRespond))
	mux.HandleFunc("PATCH /api/assignments/cancel", s.auth(s.handleCancel))
	mux.HandleFunc("POST /api/distance/batch", s.auth(s.handleDistanceBatch))
	mux.HandleFunc("GET /api/distance/usage", s.auth(s.handleDistanceUsage))
	return mux
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		s.fail(w, err)
		return
	}
	cands, err := s.resolver.Resolve(r.Context(), start, end)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

type previewRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		s.fail(w, err)
		return
	}
	cands, err := s.resolver.Resolve(r.Context(), start, end)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Propose(cands.Units, cands.Instructors))
}

type bulkRequest struct {
	Proposals []model.Proposal `json:"proposals"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	report, err := s.assignments.BulkSave(r.Context(), req.Proposals)
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusOK
	if len(report.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}

type respondRequest struct {
	ScheduleID   string         `json:"scheduleId"`
	InstructorID string         `json:"instructorId"`
	Response     model.Response `json:"response"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	a, err := s.assignments.Respond(r.Context(), req.ScheduleID, req.InstructorID, req.Response)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type cancelRequest struct {
	ScheduleID   string `json:"scheduleId"`
	InstructorID string `json:"instructorId"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	a, err := s.assignments.Cancel(r.Context(), req.ScheduleID, req.InstructorID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type distanceBatchRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleDistanceBatch(w http.ResponseWriter, r *http.Request) {
	var req distanceBatchRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.distances.Run(r.Context(), req.Limit)
	if err != nil {
		// A partial result still goes back to the caller with the error
		// status so the admin sees what got done.
		writeJSON(w, statusFor(err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDistanceUsage(w http.ResponseWriter, r *http.Request) {
	used, quota, err := s.distances.Usage(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"used": used, "quota": quota})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrValidation, err)
	}
	return nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start and end dates are required", model.ErrValidation)
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start date %q", model.ErrValidation, start)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end date %q", model.ErrValidation, end)
	}
	return s, e, nil
}

// statusFor maps the domain error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidStateTransition), errors.Is(err, model.ErrCannotCancelCompleted):
		return http.StatusConflict
	case errors.Is(err, model.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && s.log != nil {
		s.log.Errorf("api: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
