package api

import (
	"context"
	"net/http"
)

// ScorecardDependencies stores per-player scorecards.
type ScorecardDependencies interface {
	SaveScorecard(ctx context.Context, card Scorecard) error
	GetScorecard(ctx context.Context, player string) (Scorecard, error)
	DeleteScorecard(ctx context.Context, player string) (int64, error)
}

type scorecardRequest struct {
	Kills    uint32 `json:"kills"`
	Gold     uint32 `json:"gold"`
	GameTime uint32 `json:"game_time"`
}

type deleteScorecardResponse struct {
	Deleted int64 `json:"deleted"`
}

// ScorecardHandler handles scorecard requests.
type ScorecardHandler struct {
	deps ScorecardDependencies
}

// NewScorecardHandler creates a new scorecard handler.
func NewScorecardHandler(deps ScorecardDependencies) *ScorecardHandler {
	return &ScorecardHandler{deps: deps}
}

// HandleGetScorecard handles GET /scorecards/{player}.
func (h *ScorecardHandler) HandleGetScorecard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scorecard"
	card, err := h.deps.GetScorecard(r.Context(), r.PathValue("player"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// HandlePutScorecard handles PUT /scorecards/{player}. The player name comes
// from the path.
func (h *ScorecardHandler) HandlePutScorecard(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_scorecard"
	var req scorecardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	card := Scorecard{
		PlayerName: r.PathValue("player"),
		Kills:      req.Kills,
		Gold:       req.Gold,
		GameTime:   req.GameTime,
	}
	if err := h.deps.SaveScorecard(r.Context(), card); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// HandleDeleteScorecard handles DELETE /scorecards/{player}.
func (h *ScorecardHandler) HandleDeleteScorecard(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_scorecard"
	n, err := h.deps.DeleteScorecard(r.Context(), r.PathValue("player"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteScorecardResponse{Deleted: n})
}
