package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mesaflow/api/internal/auth"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
)

// PlaceServicer coordinates place occupancy.
type PlaceServicer interface {
	Create(ctx context.Context, actor service.Actor, businessID uuid.UUID, name string) (database.Place, error)
	Select(ctx context.Context, actor service.Actor, placeID uuid.UUID) (database.Place, error)
	Confirm(ctx context.Context, actor service.Actor, placeID uuid.UUID) (service.ConfirmResult, error)
	Release(ctx context.Context, actor service.Actor, placeID uuid.UUID) (database.Place, error)
}

// PlaceReadStore serves place listings. Satisfied by *database.Queries.
type PlaceReadStore interface {
	ListPlacesByBusiness(ctx context.Context, businessID uuid.UUID) ([]database.Place, error)
}

// PlaceHandler handles place endpoints.
type PlaceHandler struct {
	svc   PlaceServicer
	store PlaceReadStore
}

// NewPlaceHandler creates a new PlaceHandler.
func NewPlaceHandler(svc PlaceServicer, store PlaceReadStore) *PlaceHandler {
	return &PlaceHandler{svc: svc, store: store}
}

// RegisterRoutes registers place endpoints on the given Chi router.
func (h *PlaceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/businesses/{businessID}/places", h.List)
	r.Post("/businesses/{businessID}/places", h.Create)
	r.Post("/places/{placeID}/select", h.Select)
	r.Post("/places/{placeID}/confirm", h.Confirm)
	r.Post("/places/{placeID}/release", h.Release)
}

// --- Request / Response types ---

type createPlaceRequest struct {
	Name string `json:"name"`
}

type placeResponse struct {
	ID          uuid.UUID  `json:"id"`
	BusinessID  uuid.UUID  `json:"business_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	ConfirmedBy *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

func toPlaceResponse(p database.Place) placeResponse {
	return placeResponse{
		ID:          p.ID,
		BusinessID:  p.BusinessID,
		Name:        p.Name,
		Status:      p.Status,
		ConfirmedBy: uuidPtr(p.ConfirmedBy),
		ConfirmedAt: timePtr(p.ConfirmedAt),
	}
}

// --- Handlers ---

// List returns all places of a business with their live status.
func (h *PlaceHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	places, err := h.store.ListPlacesByBusiness(r.Context(), businessID)
	if err != nil {
		writeServiceError(w, "list places", err)
		return
	}

	out := make([]placeResponse, 0, len(places))
	for _, p := range places {
		out = append(out, toPlaceResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create adds a place to a business. Managers and up only.
func (h *PlaceHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req createPlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	place, err := h.svc.Create(r.Context(), actorFromClaims(claims), businessID, req.Name)
	if err != nil {
		writeServiceError(w, "create place", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPlaceResponse(place))
}

// Select marks a place pending for the calling customer.
func (h *PlaceHandler) Select(w http.ResponseWriter, r *http.Request) {
	claims, placeID, ok := placeParams(w, r)
	if !ok {
		return
	}

	place, err := h.svc.Select(r.Context(), actorFromClaims(claims), placeID)
	if err != nil {
		writeServiceError(w, "select place", err)
		return
	}

	writeJSON(w, http.StatusOK, toPlaceResponse(place))
}

// Confirm locks in a pending place; pending dine-in orders on it start
// processing.
func (h *PlaceHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, placeID, ok := placeParams(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Confirm(r.Context(), actorFromClaims(claims), placeID)
	if err != nil {
		writeServiceError(w, "confirm place", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"place":        toPlaceResponse(res.Place),
		"moved_orders": res.MovedOrders,
	})
}

// Release frees a place regardless of outstanding orders.
func (h *PlaceHandler) Release(w http.ResponseWriter, r *http.Request) {
	claims, placeID, ok := placeParams(w, r)
	if !ok {
		return
	}

	place, err := h.svc.Release(r.Context(), actorFromClaims(claims), placeID)
	if err != nil {
		writeServiceError(w, "release place", err)
		return
	}

	writeJSON(w, http.StatusOK, toPlaceResponse(place))
}

// --- Helpers ---

func placeParams(w http.ResponseWriter, r *http.Request) (*auth.Claims, uuid.UUID, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, uuid.Nil, false
	}
	placeID, err := uuid.Parse(chi.URLParam(r, "placeID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid place id")
		return nil, uuid.Nil, false
	}
	return claims, placeID, true
}
