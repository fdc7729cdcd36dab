// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/ranking"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RankOf(ctx context.Context, id, dimension string) (ranking.Position, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

type rankResponse struct {
	ID        string `json:"id"`
	Dimension string `json:"dimension"`
	ranking.Position
}

// HandleGetRank handles GET /rank/{id}?dimension=<name> requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank"
	if r.Method != http.MethodGet {
		writeFailure(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	// Extract path parameter after /rank/
	id := strings.TrimPrefix(r.URL.Path, "/rank/")
	if id == "" || strings.Contains(id, "/") {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	dim := r.URL.Query().Get("dimension")
	if dim == "" {
		writeFailure(w, NewKind("missing dimension", ErrBadRequest))
		return
	}
	d, err := model.ParseDimension(dim)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	pos, err := h.deps.RankOf(r.Context(), id, d.String())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{ID: id, Dimension: d.String(), Position: pos})
}
