package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/middleware"
	"github.com/mesaflow/api/internal/service"
)

// CheckoutServicer places full-cart orders.
type CheckoutServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) ([]service.OrderResult, error)
}

// TabServicer opens dine-in tabs and appends items to them.
type TabServicer interface {
	Open(ctx context.Context, actor service.Actor, placeID string, paymentMethod string) (service.OrderResult, error)
	AddItem(ctx context.Context, actor service.Actor, orderID string, line service.CartLine) (service.OrderResult, error)
}

// StatusServicer moves orders through their lifecycle.
type StatusServicer interface {
	Transition(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error)
}

// ItemServicer moves individual order items through their lifecycle.
type ItemServicer interface {
	Transition(ctx context.Context, actor service.Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error)
}

// PaymentServicer settles orders.
type PaymentServicer interface {
	Pay(ctx context.Context, req service.PayRequest) (service.PayResult, error)
}

// OrderStore defines the database methods needed by order read endpoints.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetBusinessStaff(ctx context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrdersByUser(ctx context.Context, arg database.ListOrdersByUserParams) ([]database.Order, error)
	ListOrdersByBusiness(ctx context.Context, arg database.ListOrdersByBusinessParams) ([]database.Order, error)
}

// OrderBroadcaster pushes order events to connected business dashboards.
type OrderBroadcaster interface {
	BroadcastOrderEvent(businessID uuid.UUID, event any)
}

// OrderHandler handles checkout, tabs, order lifecycle and payment endpoints.
type OrderHandler struct {
	store    OrderStore
	checkout CheckoutServicer
	tabs     TabServicer
	status   StatusServicer
	items    ItemServicer
	payments PaymentServicer
	events   OrderBroadcaster
}

// NewOrderHandler creates a new OrderHandler. events may be nil when no
// realtime hub is running.
func NewOrderHandler(store OrderStore, checkout CheckoutServicer, tabs TabServicer, status StatusServicer, items ItemServicer, payments PaymentServicer, events OrderBroadcaster) *OrderHandler {
	return &OrderHandler{
		store:    store,
		checkout: checkout,
		tabs:     tabs,
		status:   status,
		items:    items,
		payments: payments,
		events:   events,
	}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Checkout)
	r.Get("/orders", h.ListMine)
	r.Get("/orders/{orderID}", h.Get)
	r.Patch("/orders/{orderID}/status", h.UpdateStatus)
	r.Patch("/orders/{orderID}/items/{itemID}/status", h.UpdateItemStatus)
	r.Post("/orders/{orderID}/pay", h.Pay)
	r.Post("/orders/{orderID}/items", h.AddTabItem)
	r.Post("/tabs", h.OpenTab)
	r.Get("/businesses/{businessID}/orders", h.ListBusinessOrders)
}

// --- Request / Response types ---

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Notes     string `json:"notes"`
}

type shippingInfoRequest struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type checkoutRequest struct {
	DeliveryMethod string               `json:"delivery_method"`
	PaymentMethod  string               `json:"payment_method"`
	PlaceID        string               `json:"place_id"`
	Shipping       *shippingInfoRequest `json:"shipping"`
	ShippingPrice  string               `json:"shipping_price"`
	Notes          string               `json:"notes"`
	Items          []cartLineRequest    `json:"items"`
}

type openTabRequest struct {
	PlaceID       string `json:"place_id"`
	PaymentMethod string `json:"payment_method"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type payRequest struct {
	Method      string `json:"method"`
	Ref         string `json:"ref"`
	Provider    string `json:"provider"`
	AmountGiven string `json:"amount_given"`
}

type orderItemResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProductID        uuid.UUID  `json:"product_id"`
	Title            string     `json:"title"`
	Price            string     `json:"price"`
	Quantity         int32      `json:"quantity"`
	IsComboComponent bool       `json:"is_combo_component"`
	ComboGroup       *string    `json:"combo_group,omitempty"`
	Status           string     `json:"status"`
	Notes            *string    `json:"notes,omitempty"`
	ReadyAt          *time.Time `json:"ready_at,omitempty"`
}

type orderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OrderGroup         uuid.UUID           `json:"order_group"`
	OrderNumber        string              `json:"order_number"`
	BusinessID         uuid.UUID           `json:"business_id"`
	UserID             uuid.UUID           `json:"user_id"`
	CustomerName       string              `json:"customer_name"`
	Status             string              `json:"status"`
	DeliveryMethod     string              `json:"delivery_method"`
	PlaceID            *string             `json:"place_id,omitempty"`
	DeliveryManID      *string             `json:"delivery_man_id,omitempty"`
	ItemsPrice         string              `json:"items_price"`
	TaxPrice           string              `json:"tax_price"`
	ShippingPrice      string              `json:"shipping_price"`
	TotalPrice         string              `json:"total_price"`
	ShippingAddress    *string             `json:"shipping_address,omitempty"`
	ShippingCity       *string             `json:"shipping_city,omitempty"`
	ShippingPostalCode *string             `json:"shipping_postal_code,omitempty"`
	ShippingCountry    *string             `json:"shipping_country,omitempty"`
	PaymentMethod      string              `json:"payment_method"`
	PaymentStatus      string              `json:"payment_status"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	AmountGiven        *string             `json:"amount_given,omitempty"`
	ChangeDue          *string             `json:"change_due,omitempty"`
	Notes              *string             `json:"notes,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	Items              []orderItemResponse `json:"items,omitempty"`
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:               it.ID,
		ProductID:        it.ProductID,
		Title:            it.Title,
		Price:            numericToString(it.Price),
		Quantity:         it.Quantity,
		IsComboComponent: it.IsComboComponent,
		ComboGroup:       uuidPtr(it.ComboGroup),
		Status:           it.Status,
		Notes:            textPtr(it.Notes),
		ReadyAt:          timePtr(it.ReadyAt),
	}
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:                 o.ID,
		OrderGroup:         o.OrderGroup,
		OrderNumber:        o.OrderNumber,
		BusinessID:         o.BusinessID,
		UserID:             o.UserID,
		CustomerName:       o.CustomerName,
		Status:             o.Status,
		DeliveryMethod:     o.DeliveryMethod,
		PlaceID:            uuidPtr(o.PlaceID),
		DeliveryManID:      uuidPtr(o.DeliveryManID),
		ItemsPrice:         numericToString(o.ItemsPrice),
		TaxPrice:           numericToString(o.TaxPrice),
		ShippingPrice:      numericToString(o.ShippingPrice),
		TotalPrice:         numericToString(o.TotalPrice),
		ShippingAddress:    textPtr(o.ShippingAddress),
		ShippingCity:       textPtr(o.ShippingCity),
		ShippingPostalCode: textPtr(o.ShippingPostalCode),
		ShippingCountry:    textPtr(o.ShippingCountry),
		PaymentMethod:      o.PaymentMethod,
		PaymentStatus:      o.PaymentStatus,
		PaidAt:             timePtr(o.PaidAt),
		AmountGiven:        numericPtr(o.AmountGiven),
		ChangeDue:          numericPtr(o.ChangeDue),
		Notes:              textPtr(o.Notes),
		CreatedAt:          o.CreatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toOrderItemResponse(it))
	}
	return resp
}

// --- Handlers ---

// Checkout places a full cart, producing one order per business.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svcReq := service.PlaceOrderRequest{
		Actor:          actorFromClaims(claims),
		DeliveryMethod: req.DeliveryMethod,
		PaymentMethod:  req.PaymentMethod,
		PlaceID:        req.PlaceID,
		ShippingPrice:  req.ShippingPrice,
		Notes:          req.Notes,
	}
	if req.Shipping != nil {
		svcReq.Shipping = &service.ShippingInfo{
			Address:    req.Shipping.Address,
			City:       req.Shipping.City,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		}
	}
	for _, line := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CartLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Notes:     line.Notes,
		})
	}

	results, err := h.checkout.PlaceOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, "place order", err)
		return
	}

	out := make([]orderResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toOrderResponse(res.Order, res.Items))
		h.broadcast(res.Order.BusinessID, "order.placed", res.Order, res.Items)
	}
	writeJSON(w, http.StatusCreated, out)
}

// OpenTab opens (or returns) the caller's dine-in tab at a place.
func (h *OrderHandler) OpenTab(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req openTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlaceID == "" {
		writeError(w, http.StatusBadRequest, "place_id is required")
		return
	}

	res, err := h.tabs.Open(r.Context(), actorFromClaims(claims), req.PlaceID, req.PaymentMethod)
	if err != nil {
		writeServiceError(w, "open tab", err)
		return
	}

	h.broadcast(res.Order.BusinessID, "tab.opened", res.Order, res.Items)
	writeJSON(w, http.StatusCreated, toOrderResponse(res.Order, res.Items))
}

// AddTabItem appends one line to an open tab.
func (h *OrderHandler) AddTabItem(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.tabs.AddItem(r.Context(), actorFromClaims(claims), chi.URLParam(r, "orderID"), service.CartLine{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, "add tab item", err)
		return
	}

	h.broadcast(res.Order.BusinessID, "tab.item_added", res.Order, res.Items)
	writeJSON(w, http.StatusOK, toOrderResponse(res.Order, res.Items))
}

// ListMine returns the caller's own orders, newest first.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	orders, err := h.store.ListOrdersByUser(r.Context(), database.ListOrdersByUserParams{
		UserID: claims.UserID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, "list orders", err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListBusinessOrders returns a business's orders. Staff only.
func (h *OrderHandler) ListBusinessOrders(w http.ResponseWriter, r *http.Request) {
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

	business, err := h.store.GetBusiness(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "business not found")
			return
		}
		writeServiceError(w, "get business", err)
		return
	}

	access, err := service.ResolveBusinessAccess(r.Context(), h.store, business, actorFromClaims(claims))
	if err != nil {
		writeServiceError(w, "resolve business access", err)
		return
	}
	if !access.Allowed() {
		writeError(w, http.StatusForbidden, "staff access required")
		return
	}

	limit, offset := pagination(r)
	orders, err := h.store.ListOrdersByBusiness(r.Context(), database.ListOrdersByBusinessParams{
		BusinessID: businessID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, "list business orders", err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one order with its items. Purchaser, business staff or admin.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeServiceError(w, "get order", err)
		return
	}

	actor := actorFromClaims(claims)
	if order.UserID != actor.ID {
		business, err := h.store.GetBusiness(r.Context(), order.BusinessID)
		if err != nil {
			writeServiceError(w, "get business", err)
			return
		}
		access, err := service.ResolveBusinessAccess(r.Context(), h.store, business, actor)
		if err != nil {
			writeServiceError(w, "resolve business access", err)
			return
		}
		if !access.Allowed() {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		writeServiceError(w, "list order items", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// UpdateStatus moves an order to a new lifecycle status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.status.Transition(r.Context(), actorFromClaims(claims), orderID, req.Status)
	if err != nil {
		writeServiceError(w, "transition order", err)
		return
	}

	h.broadcast(order.BusinessID, "order.status_changed", order, nil)
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// UpdateItemStatus moves one order item through the kitchen lifecycle.
func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
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
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	item, err := h.items.Transition(r.Context(), actorFromClaims(claims), orderID, itemID, req.Status)
	if err != nil {
		writeServiceError(w, "transition order item", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderItemResponse(item))
}

// Pay settles an order.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
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

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.payments.Pay(r.Context(), service.PayRequest{
		Actor:       actorFromClaims(claims),
		OrderID:     orderID,
		Method:      req.Method,
		Ref:         req.Ref,
		Provider:    req.Provider,
		AmountGiven: req.AmountGiven,
	})
	if err != nil {
		writeServiceError(w, "pay order", err)
		return
	}

	h.broadcast(res.Order.BusinessID, "order.paid", res.Order, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"order":          toOrderResponse(res.Order, nil),
		"place_released": res.PlaceReleased,
	})
}

// --- Helpers ---

type orderEvent struct {
	Type  string              `json:"type"`
	Order orderResponse       `json:"order"`
	Items []orderItemResponse `json:"items,omitempty"`
}

func (h *OrderHandler) broadcast(businessID uuid.UUID, eventType string, order database.Order, items []database.OrderItem) {
	if h.events == nil {
		return
	}
	ev := orderEvent{Type: eventType, Order: toOrderResponse(order, nil)}
	for _, it := range items {
		ev.Items = append(ev.Items, toOrderItemResponse(it))
	}
	h.events.BroadcastOrderEvent(businessID, ev)
}

// pagination reads limit/offset query params with the usual defaults.
func pagination(r *http.Request) (limit, offset int32) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 100 {
				n = 100
			}
			limit = int32(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
