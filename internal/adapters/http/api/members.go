package api

import (
	"context"
	"net/http"
)

// MemberDependencies defines per-member operations.
type MemberDependencies interface {
	Rank(ctx context.Context, board, member string) (Entry, error)
	RemoveMember(ctx context.Context, board, member string) (int64, error)
}

type removeResponse struct {
	Removed int64 `json:"removed"`
}

// MemberHandler handles member requests.
type MemberHandler struct {
	deps MemberDependencies
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(deps MemberDependencies) *MemberHandler {
	return &MemberHandler{deps: deps}
}

// HandleGetMember handles GET /leaderboards/{board}/members/{member} requests.
func (h *MemberHandler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_member"
	entry, err := h.deps.Rank(r.Context(), r.PathValue("board"), r.PathValue("member"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDeleteMember handles DELETE /leaderboards/{board}/members/{member}.
// Removing an absent member succeeds with removed=0.
func (h *MemberHandler) HandleDeleteMember(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_member"
	n, err := h.deps.RemoveMember(r.Context(), r.PathValue("board"), r.PathValue("member"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, removeResponse{Removed: n})
}
