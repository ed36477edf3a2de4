package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
)

// BusinessStore defines the database methods needed by business handlers.
// Satisfied by *database.Queries.
type BusinessStore interface {
	CreateBusiness(ctx context.Context, arg database.CreateBusinessParams) (database.Business, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetBusinessStaff(ctx context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error)
	ListBusinessStaff(ctx context.Context, businessID uuid.UUID) ([]database.BusinessStaff, error)
	UpsertBusinessStaff(ctx context.Context, arg database.UpsertBusinessStaffParams) (database.BusinessStaff, error)
	ListBusinessHours(ctx context.Context, businessID uuid.UUID) ([]database.BusinessHour, error)
	CreateBusinessHour(ctx context.Context, arg database.CreateBusinessHourParams) (database.BusinessHour, error)
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
}

// BusinessHandler handles business, staff roster and opening-hours endpoints.
type BusinessHandler struct {
	store BusinessStore
}

// NewBusinessHandler creates a new BusinessHandler.
func NewBusinessHandler(store BusinessStore) *BusinessHandler {
	return &BusinessHandler{store: store}
}

// RegisterRoutes registers business endpoints on the given Chi router.
func (h *BusinessHandler) RegisterRoutes(r chi.Router) {
	r.Post("/businesses", h.Create)
	r.Get("/businesses/{businessID}", h.Get)
	r.Get("/businesses/{businessID}/staff", h.ListStaff)
	r.Put("/businesses/{businessID}/staff", h.UpsertStaff)
	r.Get("/businesses/{businessID}/hours", h.ListHours)
	r.Post("/businesses/{businessID}/hours", h.CreateHour)
}

// --- Request / Response types ---

type createBusinessRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
}

type businessResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Country     string    `json:"country"`
	PostalCode  string    `json:"postal_code"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toBusinessResponse(b database.Business) businessResponse {
	return businessResponse{
		ID:          b.ID,
		Name:        b.Name,
		OwnerID:     b.OwnerID,
		Email:       b.Email,
		PhoneNumber: b.PhoneNumber,
		Address:     b.Address,
		City:        b.City,
		State:       b.State,
		Country:     b.Country,
		PostalCode:  b.PostalCode,
		IsActive:    b.IsActive,
		CreatedAt:   b.CreatedAt,
	}
}

type upsertStaffRequest struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	IsActive *bool    `json:"is_active"`
}

type staffResponse struct {
	BusinessID uuid.UUID `json:"business_id"`
	UserID     uuid.UUID `json:"user_id"`
	Roles      []string  `json:"roles"`
	IsActive   bool      `json:"is_active"`
	AddedAt    time.Time `json:"added_at"`
}

func toStaffResponse(s database.BusinessStaff) staffResponse {
	return staffResponse{
		BusinessID: s.BusinessID,
		UserID:     s.UserID,
		Roles:      s.Roles,
		IsActive:   s.IsActive,
		AddedAt:    s.AddedAt,
	}
}

type createHourRequest struct {
	Day       int32  `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type hourResponse struct {
	Day       int32  `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// --- Handlers ---

// Create registers a new business owned by the caller.
func (h *BusinessHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "" {
		writeError(w, http.StatusBadRequest, "address and city are required")
		return
	}

	business, err := h.store.CreateBusiness(r.Context(), database.CreateBusinessParams{
		Name:        req.Name,
		OwnerID:     claims.UserID,
		Email:       strings.TrimSpace(strings.ToLower(req.Email)),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		Country:     strings.TrimSpace(req.Country),
		PostalCode:  strings.TrimSpace(req.PostalCode),
	})
	if err != nil {
		writeServiceError(w, "create business", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBusinessResponse(business))
}

// Get returns one business. Public detail, no standing required.
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	business, ok := h.lookupBusiness(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBusinessResponse(business))
}

// ListStaff returns the staff roster, optionally filtered by functional
// role (?role=delivery). Managers and up only.
func (h *BusinessHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	business, _, ok := h.requireManager(w, r)
	if !ok {
		return
	}

	staff, err := h.store.ListBusinessStaff(r.Context(), business.ID)
	if err != nil {
		writeServiceError(w, "list business staff", err)
		return
	}

	role := r.URL.Query().Get("role")
	out := make([]staffResponse, 0, len(staff))
	for _, s := range staff {
		if role != "" && !hasStaffRole(s, role) {
			continue
		}
		out = append(out, toStaffResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func hasStaffRole(s database.BusinessStaff, role string) bool {
	for _, have := range s.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// UpsertStaff adds a member to the roster or updates their roles. The target
// is named by user_id or, as a convenience, by email.
func (h *BusinessHandler) UpsertStaff(w http.ResponseWriter, r *http.Request) {
	business, _, ok := h.requireManager(w, r)
	if !ok {
		return
	}

	var req upsertStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, ok := h.resolveStaffTarget(w, r, req)
	if !ok {
		return
	}

	roles, err := service.CleanAndValidateRoles(req.Roles)
	if err != nil {
		writeServiceError(w, "upsert business staff", err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	staff, err := h.store.UpsertBusinessStaff(r.Context(), database.UpsertBusinessStaffParams{
		BusinessID: business.ID,
		UserID:     userID,
		Roles:      roles,
		IsActive:   active,
	})
	if err != nil {
		writeServiceError(w, "upsert business staff", err)
		return
	}

	writeJSON(w, http.StatusOK, toStaffResponse(staff))
}

// ListHours returns the weekly opening hours. Public detail.
func (h *BusinessHandler) ListHours(w http.ResponseWriter, r *http.Request) {
	business, ok := h.lookupBusiness(w, r)
	if !ok {
		return
	}

	hours, err := h.store.ListBusinessHours(r.Context(), business.ID)
	if err != nil {
		writeServiceError(w, "list business hours", err)
		return
	}

	out := make([]hourResponse, 0, len(hours))
	for _, hr := range hours {
		out = append(out, hourResponse{Day: hr.Day, StartTime: hr.StartTime, EndTime: hr.EndTime})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateHour adds one opening window. Managers and up only.
func (h *BusinessHandler) CreateHour(w http.ResponseWriter, r *http.Request) {
	business, _, ok := h.requireManager(w, r)
	if !ok {
		return
	}

	var req createHourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Day < 0 || req.Day > 6 {
		writeError(w, http.StatusBadRequest, "day must be between 0 (Sunday) and 6 (Saturday)")
		return
	}
	if !validClock(req.StartTime) || !validClock(req.EndTime) {
		writeError(w, http.StatusBadRequest, "start_time and end_time must be HH:MM")
		return
	}

	hour, err := h.store.CreateBusinessHour(r.Context(), database.CreateBusinessHourParams{
		BusinessID: business.ID,
		Day:        req.Day,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		writeServiceError(w, "create business hour", err)
		return
	}

	writeJSON(w, http.StatusCreated, hourResponse{Day: hour.Day, StartTime: hour.StartTime, EndTime: hour.EndTime})
}

// --- Helpers ---

func (h *BusinessHandler) lookupBusiness(w http.ResponseWriter, r *http.Request) (database.Business, bool) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return database.Business{}, false
	}

	business, err := h.store.GetBusiness(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "business not found")
			return database.Business{}, false
		}
		writeServiceError(w, "get business", err)
		return database.Business{}, false
	}
	return business, true
}

// requireManager loads the business and checks the caller holds manager
// standing (admin, owner or the manager role).
func (h *BusinessHandler) requireManager(w http.ResponseWriter, r *http.Request) (database.Business, service.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return database.Business{}, service.Actor{}, false
	}
	actor := actorFromClaims(claims)

	business, ok := h.lookupBusiness(w, r)
	if !ok {
		return database.Business{}, service.Actor{}, false
	}

	access, err := service.ResolveBusinessAccess(r.Context(), h.store, business, actor)
	if err != nil {
		writeServiceError(w, "resolve business access", err)
		return database.Business{}, service.Actor{}, false
	}
	if !access.HasAnyRole(enum.StaffRoleManager) {
		writeError(w, http.StatusForbidden, "manager access required")
		return database.Business{}, service.Actor{}, false
	}
	return business, actor, true
}

func (h *BusinessHandler) resolveStaffTarget(w http.ResponseWriter, r *http.Request, req upsertStaffRequest) (uuid.UUID, bool) {
	if req.UserID != "" {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return uuid.Nil, false
		}
		return userID, true
	}
	if req.Email != "" {
		user, err := h.store.GetUserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, http.StatusNotFound, "user not found")
				return uuid.Nil, false
			}
			writeServiceError(w, "lookup user by email", err)
			return uuid.Nil, false
		}
		return user.ID, true
	}
	writeError(w, http.StatusBadRequest, "user_id or email is required")
	return uuid.Nil, false
}

func validClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	hh := s[:2]
	mm := s[3:]
	for _, c := range hh + mm {
		if c < '0' || c > '9' {
			return false
		}
	}
	return hh <= "23" && mm <= "59"
}
