// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/arena/internal/adapters/repository"
	service "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/matchmaking"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/rating"
)

// Read and write shapes shared with the service layer.
type (
	Matchup       = service.Matchup
	VoteInput     = service.VoteInput
	VoteResult    = service.VoteResult
	StandingsView = service.StandingsView
	Stats         = service.Stats
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	BattleDependencies
	RankingDependencies
	RankDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	battleHandler  *BattleHandler
	rankingHandler *RankingHandler
	rankHandler    *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		battleHandler:  NewBattleHandler(deps),
		rankingHandler: NewRankingHandler(deps),
		rankHandler:    NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/battle/vote", MetricsMiddleware(s.battleHandler.HandleVote, "vote"))
	mux.HandleFunc("/battle/focus/", MetricsMiddleware(s.battleHandler.HandleFocus, "battle_focus"))
	mux.HandleFunc("/battle", MetricsMiddleware(s.battleHandler.HandleBattle, "battle"))
	mux.HandleFunc("/ranking", MetricsMiddleware(s.rankingHandler.HandleRanking, "ranking"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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

// writeFailure translates a service error into its HTTP status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, rating.ErrInvalidOutcome),
		errors.Is(err, model.ErrUnknownDimension),
		errors.Is(err, model.ErrEmptyName),
		errors.Is(err, service.ErrSameItem):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, "method_not_allowed"
	// a missing focus item also carries ErrNotEnoughData
	case errors.Is(err, matchmaking.ErrFocusNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, matchmaking.ErrNotEnoughData):
		return http.StatusConflict, "not_enough_data"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
