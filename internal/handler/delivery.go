package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
)

// DeliveryServicer hands ready orders to couriers.
type DeliveryServicer interface {
	Assign(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error)
	MyOrders(ctx context.Context, actor service.Actor) ([]service.BusinessOrders, error)
}

// DeliveryHandler handles courier assignment endpoints.
type DeliveryHandler struct {
	svc DeliveryServicer
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(svc DeliveryServicer) *DeliveryHandler {
	return &DeliveryHandler{svc: svc}
}

// RegisterRoutes registers delivery endpoints on the given Chi router.
func (h *DeliveryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders/{orderID}/delivery", h.Assign)
	r.Get("/delivery/orders", h.MyOrders)
}

type assignDeliveryRequest struct {
	CourierID string `json:"courier_id"`
}

type businessOrdersResponse struct {
	BusinessID uuid.UUID       `json:"business_id"`
	Orders     []orderResponse `json:"orders"`
}

// Assign hands a ready order to a courier on the business roster.
func (h *DeliveryHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req assignDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	courierID, err := uuid.Parse(req.CourierID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid courier_id")
		return
	}

	order, err := h.svc.Assign(r.Context(), actorFromClaims(claims), orderID, courierID)
	if err != nil {
		writeServiceError(w, "assign delivery", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// MyOrders returns the caller's assigned orders grouped by business.
func (h *DeliveryHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	groups, err := h.svc.MyOrders(r.Context(), actorFromClaims(claims))
	if err != nil {
		writeServiceError(w, "list assigned orders", err)
		return
	}

	out := make([]businessOrdersResponse, 0, len(groups))
	for _, g := range groups {
		resp := businessOrdersResponse{BusinessID: g.BusinessID}
		for _, o := range g.Orders {
			resp.Orders = append(resp.Orders, toOrderResponse(o, nil))
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
