package api

import (
	"context"
	"errors"
	"net/http"
)

// ScoreDependencies applies score increments synchronously.
type ScoreDependencies interface {
	AddScore(ctx context.Context, board, member string, delta float64) (float64, error)
}

type scoreRequest struct {
	Board  string   `json:"board"`
	Member string   `json:"member"`
	Delta  *float64 `json:"delta"`
}

type scoreResponse struct {
	Board  string  `json:"board"`
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// ScoresHandler handles synchronous score writes.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandlePostScore handles POST /scores requests.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Delta == nil {
		writeFailure(w, r, op, WrapKind(op, ErrBadRequest, errors.New("missing delta")))
		return
	}

	score, err := h.deps.AddScore(r.Context(), req.Board, req.Member, *req.Delta)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Board: req.Board, Member: req.Member, Score: score})
}
