package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
)

// KitchenServicer projects the kitchen work queue.
type KitchenServicer interface {
	Queue(ctx context.Context, actor service.Actor, businessID uuid.UUID, itemStatus string) ([]service.KitchenPlaceGroup, error)
}

// KitchenHandler serves the kitchen display queue.
type KitchenHandler struct {
	svc KitchenServicer
}

// NewKitchenHandler creates a new KitchenHandler.
func NewKitchenHandler(svc KitchenServicer) *KitchenHandler {
	return &KitchenHandler{svc: svc}
}

// RegisterRoutes registers kitchen endpoints on the given Chi router.
func (h *KitchenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/businesses/{businessID}/kitchen/queue", h.Queue)
}

// Queue returns pending (or requested-status) items grouped by place and
// product, dine-in first.
func (h *KitchenHandler) Queue(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	groups, err := h.svc.Queue(r.Context(), actorFromClaims(claims), businessID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, "kitchen queue", err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}
