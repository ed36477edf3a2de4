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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
	"github.com/shopspring/decimal"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries.
type ProductStore interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetBusinessStaff(ctx context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	ListProductsByBusiness(ctx context.Context, businessID uuid.UUID) ([]database.Product, error)
	ListComboItemsByCombo(ctx context.Context, comboID uuid.UUID) ([]database.ComboItem, error)
	CreateComboItem(ctx context.Context, arg database.CreateComboItemParams) (database.ComboItem, error)
	DeleteComboItem(ctx context.Context, arg database.DeleteComboItemParams) (int64, error)
}

// ProductHandler handles catalog and combo-composition endpoints.
type ProductHandler struct {
	store ProductStore
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterRoutes registers product endpoints on the given Chi router.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/businesses/{businessID}/products", h.List)
	r.Post("/businesses/{businessID}/products", h.Create)
	r.Get("/businesses/{businessID}/products/{productID}", h.Get)
	r.Get("/businesses/{businessID}/products/{productID}/combo-items", h.ListComboItems)
	r.Post("/businesses/{businessID}/products/{productID}/combo-items", h.AddComboItem)
	r.Delete("/businesses/{businessID}/products/{productID}/combo-items/{comboItemID}", h.RemoveComboItem)
}

// --- Request / Response types ---

type createProductRequest struct {
	Title   string `json:"title"`
	Price   string `json:"price"`
	Stock   int32  `json:"stock"`
	IsCombo bool   `json:"is_combo"`
}

type productResponse struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Price      string    `json:"price"`
	Stock      int32     `json:"stock"`
	IsCombo    bool      `json:"is_combo"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func toProductResponse(p database.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		BusinessID: p.BusinessID,
		Title:      p.Title,
		Slug:       p.Slug,
		Price:      numericToString(p.Price),
		Stock:      p.Stock,
		IsCombo:    p.IsCombo,
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
	}
}

type addComboItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	SortOrder int32  `json:"sort_order"`
}

type comboItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ComboID   uuid.UUID `json:"combo_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	SortOrder int32     `json:"sort_order"`
}

func toComboItemResponse(ci database.ComboItem) comboItemResponse {
	return comboItemResponse{
		ID:        ci.ID,
		ComboID:   ci.ComboID,
		ProductID: ci.ProductID,
		Quantity:  ci.Quantity,
		SortOrder: ci.SortOrder,
	}
}

// --- Handlers ---

// List returns the active catalog of one business. Public.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	products, err := h.store.ListProductsByBusiness(r.Context(), businessID)
	if err != nil {
		writeServiceError(w, "list products", err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create adds a product to the catalog. Managers and up only.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	business, ok := h.requireManager(w, r)
	if !ok {
		return
	}

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "price must be a non-negative decimal")
		return
	}
	if req.Stock < 0 {
		writeError(w, http.StatusBadRequest, "stock cannot be negative")
		return
	}
	if req.IsCombo && req.Stock != 0 {
		writeError(w, http.StatusBadRequest, "combos do not carry stock of their own")
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		BusinessID: business.ID,
		Title:      req.Title,
		Slug:       slugify(req.Title),
		Price:      price,
		Stock:      req.Stock,
		IsCombo:    req.IsCombo,
	})
	if err != nil {
		writeServiceError(w, "create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// Get returns one product. Public.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, ok := h.lookupProduct(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// ListComboItems returns the composition of a combo. Public.
func (h *ProductHandler) ListComboItems(w http.ResponseWriter, r *http.Request) {
	product, ok := h.lookupProduct(w, r)
	if !ok {
		return
	}
	if !product.IsCombo {
		writeError(w, http.StatusBadRequest, "product is not a combo")
		return
	}

	items, err := h.store.ListComboItemsByCombo(r.Context(), product.ID)
	if err != nil {
		writeServiceError(w, "list combo items", err)
		return
	}

	out := make([]comboItemResponse, 0, len(items))
	for _, ci := range items {
		out = append(out, toComboItemResponse(ci))
	}
	writeJSON(w, http.StatusOK, out)
}

// AddComboItem attaches a component to a combo. Components must be simple
// products from the same business.
func (h *ProductHandler) AddComboItem(w http.ResponseWriter, r *http.Request) {
	business, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	combo, ok := h.lookupProduct(w, r)
	if !ok {
		return
	}
	if !combo.IsCombo {
		writeError(w, http.StatusBadRequest, "product is not a combo")
		return
	}

	var req addComboItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	componentID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product_id")
		return
	}
	if componentID == combo.ID {
		writeError(w, http.StatusBadRequest, "a combo cannot contain itself")
		return
	}
	if req.Quantity < 1 || req.Quantity > 999 {
		writeError(w, http.StatusBadRequest, "quantity must be between 1 and 999")
		return
	}

	component, err := h.store.GetProduct(r.Context(), componentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "component product not found")
			return
		}
		writeServiceError(w, "get component product", err)
		return
	}
	if component.BusinessID != business.ID {
		writeError(w, http.StatusBadRequest, "component must belong to the same business")
		return
	}
	if component.IsCombo {
		writeError(w, http.StatusBadRequest, "combos cannot nest other combos")
		return
	}

	item, err := h.store.CreateComboItem(r.Context(), database.CreateComboItemParams{
		ComboID:   combo.ID,
		ProductID: componentID,
		Quantity:  req.Quantity,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		writeServiceError(w, "create combo item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toComboItemResponse(item))
}

// RemoveComboItem detaches a component from a combo.
func (h *ProductHandler) RemoveComboItem(w http.ResponseWriter, r *http.Request) {
	_, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	combo, ok := h.lookupProduct(w, r)
	if !ok {
		return
	}

	comboItemID, err := uuid.Parse(chi.URLParam(r, "comboItemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid combo item id")
		return
	}

	deleted, err := h.store.DeleteComboItem(r.Context(), database.DeleteComboItemParams{
		ID:      comboItemID,
		ComboID: combo.ID,
	})
	if err != nil {
		writeServiceError(w, "delete combo item", err)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "combo item not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *ProductHandler) requireManager(w http.ResponseWriter, r *http.Request) (database.Business, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return database.Business{}, false
	}

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

	access, err := service.ResolveBusinessAccess(r.Context(), h.store, business, actorFromClaims(claims))
	if err != nil {
		writeServiceError(w, "resolve business access", err)
		return database.Business{}, false
	}
	if !access.HasAnyRole(enum.StaffRoleManager) {
		writeError(w, http.StatusForbidden, "manager access required")
		return database.Business{}, false
	}
	return business, true
}

// lookupProduct loads the product named in the URL and checks it belongs to
// the business named in the URL.
func (h *ProductHandler) lookupProduct(w http.ResponseWriter, r *http.Request) (database.Product, bool) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return database.Product{}, false
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return database.Product{}, false
	}

	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "product not found")
			return database.Product{}, false
		}
		writeServiceError(w, "get product", err)
		return database.Product{}, false
	}
	if product.BusinessID != businessID {
		writeError(w, http.StatusNotFound, "product not found")
		return database.Product{}, false
	}
	return product, true
}

func parsePrice(s string) (pgtype.Numeric, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return pgtype.Numeric{}, err
	}
	if d.IsNegative() {
		return pgtype.Numeric{}, errors.New("negative price")
	}
	var n pgtype.Numeric
	if err := n.Scan(d.StringFixed(2)); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}

func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, c := range strings.ToLower(title) {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b.WriteRune(c)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
