// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
)

// RankingDependencies defines the interface for the standings table.
type RankingDependencies interface {
	Standings(ctx context.Context, sortBy string) (StandingsView, error)
}

// RankingHandler handles ranking requests.
type RankingHandler struct {
	deps RankingDependencies
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies) *RankingHandler {
	return &RankingHandler{deps: deps}
}

// HandleRanking handles GET /ranking?sort_by=<total|dimension> requests.
func (h *RankingHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	const op = "api.ranking"
	if r.Method != http.MethodGet {
		writeFailure(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	view, err := h.deps.Standings(r.Context(), r.URL.Query().Get("sort_by"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}
