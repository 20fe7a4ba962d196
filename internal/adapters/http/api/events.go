package api

import (
	"context"
	"net/http"

	"github.com/okian/dailyboard/internal/domain/model"
)

// EventDependencies accepts score events for asynchronous processing.
type EventDependencies interface {
	// SubmitEvent reports duplicate=true when the event id was already accepted.
	SubmitEvent(ctx context.Context, e model.ScoreEvent) (duplicate bool, err error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeFailure(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	duplicate, err := h.deps.SubmitEvent(r.Context(), ev)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
