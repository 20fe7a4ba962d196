package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const defaultLimit = 10

// LeaderboardDependencies defines board-level operations.
type LeaderboardDependencies interface {
	GetTop(ctx context.Context, board string, limit int) ([]Entry, error)
	Expiry(ctx context.Context, board string) (time.Time, error)
	DeleteBoard(ctx context.Context, board string) (bool, error)
}

type leaderboardResponse struct {
	Board   string  `json:"board"`
	Entries []Entry `json:"entries"`
}

type expiryResponse struct {
	Board     string     `json:"board"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type deleteBoardResponse struct {
	Deleted bool `json:"deleted"`
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboards/{board}?limit=N requests.
// A missing limit selects 10; limits above the maximum are capped.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	board := r.PathValue("board")

	n := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n < 1 {
			writeFailure(w, r, op, NewKind(op, ErrBadRequest))
			return
		}
	}
	n = min(n, h.maxLimit)

	entries, err := h.deps.GetTop(r.Context(), board, n)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Board: board, Entries: entries})
}

// HandleGetExpiry handles GET /leaderboards/{board}/expiry requests.
func (h *LeaderboardHandler) HandleGetExpiry(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_expiry"
	board := r.PathValue("board")

	at, err := h.deps.Expiry(r.Context(), board)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	resp := expiryResponse{Board: board}
	if !at.IsZero() {
		resp.ExpiresAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDeleteLeaderboard handles DELETE /leaderboards/{board} requests.
func (h *LeaderboardHandler) HandleDeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_leaderboard"
	deleted, err := h.deps.DeleteBoard(r.Context(), r.PathValue("board"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteBoardResponse{Deleted: deleted})
}
