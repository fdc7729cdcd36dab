// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const (
	// defaultNext is where a client goes after voting unless it asks otherwise.
	defaultNext = "/battle"

	maxFormMemory = 64 << 10
)

// BattleDependencies defines the interface for matchup and vote operations.
type BattleDependencies interface {
	Matchup(ctx context.Context, focusID string) (Matchup, error)
	Vote(ctx context.Context, in VoteInput) (VoteResult, error)
}

// BattleHandler handles matchup and vote requests.
type BattleHandler struct {
	deps BattleDependencies
}

// NewBattleHandler creates a new battle handler.
func NewBattleHandler(deps BattleDependencies) *BattleHandler {
	return &BattleHandler{deps: deps}
}

// HandleBattle handles GET /battle requests.
func (h *BattleHandler) HandleBattle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, NewKind("api.battle", ErrMethodNotAllowed))
		return
	}
	h.matchup(w, r, "")
}

// HandleFocus handles GET /battle/focus/{id} requests.
func (h *BattleHandler) HandleFocus(w http.ResponseWriter, r *http.Request) {
	const op = "api.battle_focus"
	if r.Method != http.MethodGet {
		writeFailure(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/battle/focus/")
	if id == "" || strings.Contains(id, "/") {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	h.matchup(w, r, id)
}

func (h *BattleHandler) matchup(w http.ResponseWriter, r *http.Request, focusID string) {
	m, err := h.deps.Matchup(r.Context(), focusID)
	if err != nil {
		writeFailure(w, Wrap("api.matchup", err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// voteRequest mirrors the form fields of a submitted ballot.
type voteRequest struct {
	BallotID   string `json:"ballot_id"`
	ItemA      string `json:"item_a"`
	ItemB      string `json:"item_b"`
	Dimension  string `json:"dimension"`
	Winner     string `json:"winner"`
	RedirectTo string `json:"redirect_to"`
}

func (v voteRequest) validate() error {
	switch {
	case strings.TrimSpace(v.ItemA) == "":
		return NewKind("missing item_a", ErrBadRequest)
	case strings.TrimSpace(v.ItemB) == "":
		return NewKind("missing item_b", ErrBadRequest)
	case strings.TrimSpace(v.Dimension) == "":
		return NewKind("missing dimension", ErrBadRequest)
	case strings.TrimSpace(v.Winner) == "":
		return NewKind("missing winner", ErrBadRequest)
	}
	return nil
}

// next keeps redirects on this host.
func (v voteRequest) next() string {
	if strings.HasPrefix(v.RedirectTo, "/") && !strings.HasPrefix(v.RedirectTo, "//") {
		return v.RedirectTo
	}
	return defaultNext
}

type voteResponse struct {
	Status string `json:"status"`
	Next   string `json:"next"`
	VoteResult
}

// HandleVote handles POST /battle/vote requests. JSON bodies and
// url-encoded forms are both accepted.
func (h *BattleHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.vote"
	if r.Method != http.MethodPost {
		writeFailure(w, NewKind(op, ErrMethodNotAllowed))
		return
	}
	req, err := decodeVote(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	res, err := h.deps.Vote(r.Context(), VoteInput{
		BallotID:  strings.TrimSpace(req.BallotID),
		ItemA:     strings.TrimSpace(req.ItemA),
		ItemB:     strings.TrimSpace(req.ItemB),
		Dimension: req.Dimension,
		Winner:    req.Winner,
	})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	status := "applied"
	if res.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, voteResponse{Status: status, Next: req.next(), VoteResult: res})
}

func decodeVote(r *http.Request) (voteRequest, error) {
	var req voteRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return req, err
		}
		return formVote(r.PostForm), nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		return formVote(r.PostForm), nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

func formVote(v url.Values) voteRequest {
	return voteRequest{
		BallotID:   v.Get("ballot_id"),
		ItemA:      v.Get("item_a"),
		ItemB:      v.Get("item_b"),
		Dimension:  v.Get("dimension"),
		Winner:     v.Get("winner"),
		RedirectTo: v.Get("redirect_to"),
	}
}
