package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/auth"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/handler"
	"github.com/mesaflow/api/internal/service"
)

// --- Mocks ---

type mockOrderStore struct {
	orders     map[uuid.UUID]database.Order
	items      map[uuid.UUID][]database.OrderItem
	businesses map[uuid.UUID]database.Business
	staff      map[uuid.UUID]database.BusinessStaff

	listUserArgs     *database.ListOrdersByUserParams
	listBusinessArgs *database.ListOrdersByBusinessParams
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		orders:     make(map[uuid.UUID]database.Order),
		items:      make(map[uuid.UUID][]database.OrderItem),
		businesses: make(map[uuid.UUID]database.Business),
		staff:      make(map[uuid.UUID]database.BusinessStaff),
	}
}

func (m *mockOrderStore) GetOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockOrderStore) GetBusiness(_ context.Context, id uuid.UUID) (database.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return database.Business{}, pgx.ErrNoRows
	}
	return b, nil
}

func (m *mockOrderStore) GetBusinessStaff(_ context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error) {
	s, ok := m.staff[arg.UserID]
	if !ok {
		return database.BusinessStaff{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(_ context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.items[orderID], nil
}

func (m *mockOrderStore) ListOrdersByUser(_ context.Context, arg database.ListOrdersByUserParams) ([]database.Order, error) {
	m.listUserArgs = &arg
	return nil, nil
}

func (m *mockOrderStore) ListOrdersByBusiness(_ context.Context, arg database.ListOrdersByBusinessParams) ([]database.Order, error) {
	m.listBusinessArgs = &arg
	return nil, nil
}

type mockCheckout struct {
	placeFn func(ctx context.Context, req service.PlaceOrderRequest) ([]service.OrderResult, error)
}

func (m *mockCheckout) PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) ([]service.OrderResult, error) {
	return m.placeFn(ctx, req)
}

type mockTabs struct {
	openFn func(ctx context.Context, actor service.Actor, placeID, paymentMethod string) (service.OrderResult, error)
	addFn  func(ctx context.Context, actor service.Actor, orderID string, line service.CartLine) (service.OrderResult, error)
}

func (m *mockTabs) Open(ctx context.Context, actor service.Actor, placeID, paymentMethod string) (service.OrderResult, error) {
	return m.openFn(ctx, actor, placeID, paymentMethod)
}

func (m *mockTabs) AddItem(ctx context.Context, actor service.Actor, orderID string, line service.CartLine) (service.OrderResult, error) {
	return m.addFn(ctx, actor, orderID, line)
}

type mockStatus struct {
	fn func(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error)
}

func (m *mockStatus) Transition(ctx context.Context, actor service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
	return m.fn(ctx, actor, orderID, newStatus)
}

type mockItems struct {
	fn func(ctx context.Context, actor service.Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error)
}

func (m *mockItems) Transition(ctx context.Context, actor service.Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error) {
	return m.fn(ctx, actor, orderID, itemID, newStatus)
}

type mockPayments struct {
	fn func(ctx context.Context, req service.PayRequest) (service.PayResult, error)
}

func (m *mockPayments) Pay(ctx context.Context, req service.PayRequest) (service.PayResult, error) {
	return m.fn(ctx, req)
}

type capturedEvent struct {
	businessID uuid.UUID
	event      any
}

type mockBroadcaster struct {
	events []capturedEvent
}

func (m *mockBroadcaster) BroadcastOrderEvent(businessID uuid.UUID, event any) {
	m.events = append(m.events, capturedEvent{businessID: businessID, event: event})
}

type orderRouterDeps struct {
	store    *mockOrderStore
	checkout *mockCheckout
	tabs     *mockTabs
	status   *mockStatus
	items    *mockItems
	payments *mockPayments
	events   *mockBroadcaster
}

func newOrderRouter(deps orderRouterDeps) chi.Router {
	if deps.store == nil {
		deps.store = newMockOrderStore()
	}
	var events handler.OrderBroadcaster
	if deps.events != nil {
		events = deps.events
	}
	h := handler.NewOrderHandler(deps.store, deps.checkout, deps.tabs, deps.status, deps.items, deps.payments, events)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func customerClaims() *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: "customer"}
}

func sampleOrder(userID uuid.UUID) database.Order {
	return database.Order{
		ID:             uuid.New(),
		OrderGroup:     uuid.New(),
		OrderNumber:    "B-30C8-000042",
		BusinessID:     uuid.New(),
		UserID:         userID,
		CustomerName:   "Sam Customer",
		Status:         "pending",
		DeliveryMethod: "pickup",
		PaymentMethod:  "card",
		PaymentStatus:  "pending",
	}
}

// --- Checkout tests ---

func TestCheckout_Created(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(claims.UserID)
	events := &mockBroadcaster{}
	r := newOrderRouter(orderRouterDeps{
		checkout: &mockCheckout{placeFn: func(_ context.Context, req service.PlaceOrderRequest) ([]service.OrderResult, error) {
			if req.Actor.ID != claims.UserID {
				t.Errorf("actor = %s, want %s", req.Actor.ID, claims.UserID)
			}
			if len(req.Items) != 1 || req.Items[0].Quantity != 2 {
				t.Errorf("items not forwarded: %+v", req.Items)
			}
			return []service.OrderResult{{Order: order}}, nil
		}},
		events: events,
	})

	rr := doAs(t, r, claims, "POST", "/orders", map[string]any{
		"delivery_method": "pickup",
		"payment_method":  "card",
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "quantity": 2},
		},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if len(events.events) != 1 || events.events[0].businessID != order.BusinessID {
		t.Error("order.placed event not broadcast to the business room")
	}
}

func TestCheckout_InsufficientStockMapsToConflict(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		checkout: &mockCheckout{placeFn: func(context.Context, service.PlaceOrderRequest) ([]service.OrderResult, error) {
			return nil, service.ErrInsufficientStock
		}},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/orders", map[string]any{
		"delivery_method": "pickup",
		"payment_method":  "card",
		"items":           []map[string]any{{"product_id": uuid.NewString(), "quantity": 1}},
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestCheckout_ClosedBusinessReportsNextOpening(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		checkout: &mockCheckout{placeFn: func(context.Context, service.PlaceOrderRequest) ([]service.OrderResult, error) {
			return nil, &service.BusinessClosedError{
				BusinessID:   uuid.New(),
				BusinessName: "Cafe",
				NextOpening:  &service.NextOpening{StartTime: "09:00"},
			}
		}},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/orders", map[string]any{
		"delivery_method": "pickup",
		"payment_method":  "card",
		"items":           []map[string]any{{"product_id": uuid.NewString(), "quantity": 1}},
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	resp := decodeResponse(t, rr)
	if resp["next_opening"] == nil {
		t.Error("expected next_opening in response body")
	}
}

func TestCheckout_Unauthenticated(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		checkout: &mockCheckout{placeFn: func(context.Context, service.PlaceOrderRequest) ([]service.OrderResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		}},
	})

	rr := doAs(t, r, nil, "POST", "/orders", map[string]any{})

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// --- Read tests ---

func TestGetOrder_PurchaserSeesItems(t *testing.T) {
	claims := customerClaims()
	store := newMockOrderStore()
	order := sampleOrder(claims.UserID)
	store.orders[order.ID] = order
	store.items[order.ID] = []database.OrderItem{
		{ID: uuid.New(), OrderID: order.ID, Title: "Latte", Quantity: 2, Status: "pending"},
	}
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, claims, "GET", "/orders/"+order.ID.String(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Errorf("expected 1 item in response, got %v", resp["items"])
	}
}

func TestGetOrder_OutsiderDenied(t *testing.T) {
	store := newMockOrderStore()
	order := sampleOrder(uuid.New())
	store.orders[order.ID] = order
	store.businesses[order.BusinessID] = database.Business{
		ID: order.BusinessID, Name: "Cafe", OwnerID: uuid.New(), IsActive: true,
	}
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, customerClaims(), "GET", "/orders/"+order.ID.String(), nil)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{store: newMockOrderStore()})

	rr := doAs(t, r, customerClaims(), "GET", "/orders/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListMine_PaginationDefaults(t *testing.T) {
	store := newMockOrderStore()
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, customerClaims(), "GET", "/orders", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if store.listUserArgs == nil || store.listUserArgs.Limit != 20 || store.listUserArgs.Offset != 0 {
		t.Errorf("pagination defaults not applied: %+v", store.listUserArgs)
	}
}

func TestListMine_PaginationCapped(t *testing.T) {
	store := newMockOrderStore()
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, customerClaims(), "GET", "/orders?limit=500&offset=40", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if store.listUserArgs.Limit != 100 || store.listUserArgs.Offset != 40 {
		t.Errorf("pagination cap not applied: %+v", store.listUserArgs)
	}
}

func TestListBusinessOrders_RequiresStanding(t *testing.T) {
	store := newMockOrderStore()
	businessID := uuid.New()
	store.businesses[businessID] = database.Business{
		ID: businessID, Name: "Cafe", OwnerID: uuid.New(), IsActive: true,
	}
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, customerClaims(), "GET", "/businesses/"+businessID.String()+"/orders", nil)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestListBusinessOrders_OwnerAllowed(t *testing.T) {
	claims := customerClaims()
	store := newMockOrderStore()
	businessID := uuid.New()
	store.businesses[businessID] = database.Business{
		ID: businessID, Name: "Cafe", OwnerID: claims.UserID, IsActive: true,
	}
	r := newOrderRouter(orderRouterDeps{store: store})

	rr := doAs(t, r, claims, "GET", "/businesses/"+businessID.String()+"/orders", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if store.listBusinessArgs == nil || store.listBusinessArgs.BusinessID != businessID {
		t.Error("business orders not listed")
	}
}

// --- Transition tests ---

func TestUpdateStatus_OK(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(claims.UserID)
	order.Status = "processing"
	r := newOrderRouter(orderRouterDeps{
		status: &mockStatus{fn: func(_ context.Context, _ service.Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
			if orderID != order.ID || newStatus != "processing" {
				t.Errorf("transition args: %s %s", orderID, newStatus)
			}
			return order, nil
		}},
	})

	rr := doAs(t, r, claims, "PATCH", "/orders/"+order.ID.String()+"/status", map[string]string{
		"status": "processing",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestUpdateStatus_ConflictMaps409(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		status: &mockStatus{fn: func(context.Context, service.Actor, uuid.UUID, string) (database.Order, error) {
			return database.Order{}, service.ErrOrderStatusConflict
		}},
	})

	rr := doAs(t, r, customerClaims(), "PATCH", "/orders/"+uuid.NewString()+"/status", map[string]string{
		"status": "processing",
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestUpdateItemStatus_OK(t *testing.T) {
	item := database.OrderItem{ID: uuid.New(), OrderID: uuid.New(), Title: "Latte", Status: "process"}
	r := newOrderRouter(orderRouterDeps{
		items: &mockItems{fn: func(_ context.Context, _ service.Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error) {
			if orderID != item.OrderID || itemID != item.ID {
				t.Errorf("transition args: %s %s", orderID, itemID)
			}
			return item, nil
		}},
	})

	rr := doAs(t, r, customerClaims(), "PATCH",
		"/orders/"+item.OrderID.String()+"/items/"+item.ID.String()+"/status",
		map[string]string{"status": "process"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

// --- Payment tests ---

func TestPay_ReturnsPlaceReleased(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(claims.UserID)
	order.PaymentStatus = "paid"
	r := newOrderRouter(orderRouterDeps{
		payments: &mockPayments{fn: func(_ context.Context, req service.PayRequest) (service.PayResult, error) {
			if req.Method != "card" || req.Ref != "ch_123" {
				t.Errorf("pay request not forwarded: %+v", req)
			}
			return service.PayResult{Order: order, PlaceReleased: true}, nil
		}},
	})

	rr := doAs(t, r, claims, "POST", "/orders/"+order.ID.String()+"/pay", map[string]string{
		"method":   "card",
		"ref":      "ch_123",
		"provider": "stripe",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["place_released"] != true {
		t.Error("expected place_released true")
	}
}

func TestPay_InsufficientCashMaps400(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		payments: &mockPayments{fn: func(context.Context, service.PayRequest) (service.PayResult, error) {
			return service.PayResult{}, service.ErrInvalidPaymentAmount
		}},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/orders/"+uuid.NewString()+"/pay", map[string]string{
		"method":       "cash",
		"amount_given": "1.00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Tab tests ---

func TestOpenTab_RequiresPlace(t *testing.T) {
	r := newOrderRouter(orderRouterDeps{
		tabs: &mockTabs{openFn: func(context.Context, service.Actor, string, string) (service.OrderResult, error) {
			t.Fatal("service should not be called")
			return service.OrderResult{}, nil
		}},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/tabs", map[string]string{})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOpenTab_Created(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(claims.UserID)
	order.DeliveryMethod = "here"
	order.PlaceID = pgtype.UUID{Bytes: uuid.New(), Valid: true}
	placeID := uuid.NewString()
	r := newOrderRouter(orderRouterDeps{
		tabs: &mockTabs{openFn: func(_ context.Context, actor service.Actor, gotPlace, paymentMethod string) (service.OrderResult, error) {
			if gotPlace != placeID {
				t.Errorf("place id = %s, want %s", gotPlace, placeID)
			}
			return service.OrderResult{Order: order}, nil
		}},
	})

	rr := doAs(t, r, claims, "POST", "/tabs", map[string]string{"place_id": placeID})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
}

func TestAddTabItem_ForwardsLine(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(claims.UserID)
	productID := uuid.NewString()
	r := newOrderRouter(orderRouterDeps{
		tabs: &mockTabs{addFn: func(_ context.Context, _ service.Actor, orderID string, line service.CartLine) (service.OrderResult, error) {
			if orderID != order.ID.String() {
				t.Errorf("order id = %s, want %s", orderID, order.ID)
			}
			if line.ProductID != productID || line.Quantity != 3 {
				t.Errorf("line not forwarded: %+v", line)
			}
			return service.OrderResult{Order: order}, nil
		}},
	})

	rr := doAs(t, r, claims, "POST", "/orders/"+order.ID.String()+"/items", map[string]any{
		"product_id": productID,
		"quantity":   3,
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}
