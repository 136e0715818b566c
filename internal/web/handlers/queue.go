package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/queue"
)

// QueueSource exposes the offline delivery queue to the status API.
type QueueSource interface {
	Depth() int
	Online() bool
	Items() []queue.Item
	FailedItems() []queue.Item
	Drain(ctx context.Context) int
	RetryFailed() int
}

// QueueHandler serves queue inspection and forced drains.
type QueueHandler struct {
	queue QueueSource
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(queue QueueSource) *QueueHandler {
	return &QueueHandler{queue: queue}
}

type queueItemView struct {
	IdempotencyKey string    `json:"idempotency_key"`
	DecisionID     string    `json:"decision_id"`
	EmployeeID     string    `json:"employee_id"`
	ActionType     string    `json:"action_type"`
	LocationID     string    `json:"location_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	AttemptCount   int       `json:"attempt_count"`
	Failed         bool      `json:"failed"`
	LastError      string    `json:"last_error,omitempty"`
}

func itemViews(items []queue.Item) []queueItemView {
	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, queueItemView{
			IdempotencyKey: item.IdempotencyKey,
			DecisionID:     item.DecisionID,
			EmployeeID:     item.EmployeeID,
			ActionType:     string(item.Request.ActionType),
			LocationID:     item.Request.LocationID,
			EnqueuedAt:     item.EnqueuedAt,
			AttemptCount:   item.AttemptCount,
			Failed:         item.Failed,
			LastError:      item.LastError,
		})
	}
	return views
}

// List returns pending and permanently failed items.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"depth":  h.queue.Depth(),
		"online": h.queue.Online(),
		"items":  itemViews(h.queue.Items()),
		"failed": itemViews(h.queue.FailedItems()),
	})
}

// Drain forces an immediate delivery pass.
func (h *QueueHandler) Drain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	delivered := h.queue.Drain(ctx)
	respondJSON(w, http.StatusOK, map[string]any{
		"delivered": delivered,
		"depth":     h.queue.Depth(),
	})
}

// RetryFailed puts permanently failed items back into delivery rotation.
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	requeued := h.queue.RetryFailed()
	respondJSON(w, http.StatusOK, map[string]any{
		"requeued": requeued,
	})
}
