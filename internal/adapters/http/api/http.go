// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/dailyboard/internal/adapters/repository"
	service "github.com/okian/dailyboard/internal/app"
	"github.com/okian/dailyboard/internal/domain/model"
	"github.com/okian/dailyboard/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	ScoreDependencies
	LeaderboardDependencies
	MemberDependencies
	ScorecardDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = repository.Entry

// Scorecard is the stored per-player game summary.
type Scorecard = repository.Scorecard

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	eventsHandler      *EventsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	memberHandler      *MemberHandler
	scorecardHandler   *ScorecardHandler
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxLimit int
}

// WithMaxLimit caps the limit accepted by GET /leaderboards/{board}.
func WithMaxLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxLimit: repository.MaxTopLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		eventsHandler:      NewEventsHandler(deps),
		scoresHandler:      NewScoresHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLimit),
		memberHandler:      NewMemberHandler(deps),
		scorecardHandler:   NewScorecardHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("POST /scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores"))

	mux.HandleFunc("GET /leaderboards/{board}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("DELETE /leaderboards/{board}", MetricsMiddleware(s.leaderboardHandler.HandleDeleteLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /leaderboards/{board}/expiry", MetricsMiddleware(s.leaderboardHandler.HandleGetExpiry, "expiry"))
	mux.HandleFunc("GET /leaderboards/{board}/members/{member}", MetricsMiddleware(s.memberHandler.HandleGetMember, "member"))
	mux.HandleFunc("DELETE /leaderboards/{board}/members/{member}", MetricsMiddleware(s.memberHandler.HandleDeleteMember, "member"))

	mux.HandleFunc("GET /scorecards/{player}", MetricsMiddleware(s.scorecardHandler.HandleGetScorecard, "scorecard"))
	mux.HandleFunc("PUT /scorecards/{player}", MetricsMiddleware(s.scorecardHandler.HandlePutScorecard, "scorecard"))
	mux.HandleFunc("DELETE /scorecards/{player}", MetricsMiddleware(s.scorecardHandler.HandleDeleteScorecard, "scorecard"))
}

// Handler returns the routes wrapped in the request-id middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	s.Register(ctx, mux)
	return RequestIDMiddleware(mux)
}

// eventRequest is the body of POST /events.
type eventRequest struct {
	EventID string   `json:"event_id"`
	Board   string   `json:"board"`
	Member  string   `json:"member"`
	Delta   *float64 `json:"delta"`
	TS      string   `json:"ts"`
}

func (e eventRequest) toEvent() (model.ScoreEvent, error) {
	if e.Delta == nil {
		return model.ScoreEvent{}, errors.New("missing delta")
	}
	if e.TS == "" {
		return model.ScoreEvent{}, errors.New("missing ts")
	}
	ts, err := time.Parse(time.RFC3339, e.TS)
	if err != nil {
		return model.ScoreEvent{}, errors.New("invalid ts; must be RFC3339")
	}
	ev := model.ScoreEvent{EventID: e.EventID, Board: e.Board, Member: e.Member, Delta: *e.Delta, TS: ts}
	if err := ev.Validate(); err != nil {
		return model.ScoreEvent{}, err
	}
	return ev, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps an error from the layers below onto a status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidArgument), errors.Is(err, model.ErrInvalidEvent):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, repository.ErrCancelled):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.Is(err, repository.ErrConnection), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, repository.ErrBackend):
		return http.StatusServiceUnavailable, "backend_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeFailure classifies err, logs server-side failures and writes the body.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		err = Wrap(op, err)
	}
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("code", code),
			logger.String("request_id", RequestIDFromContext(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}
