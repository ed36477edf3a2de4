package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/handler"
	"github.com/mesaflow/api/internal/service"
)

type mockDeliveryServicer struct {
	assignFn   func(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error)
	myOrdersFn func(ctx context.Context, actor service.Actor) ([]service.BusinessOrders, error)
}

func (m *mockDeliveryServicer) Assign(ctx context.Context, actor service.Actor, orderID, courierID uuid.UUID) (database.Order, error) {
	return m.assignFn(ctx, actor, orderID, courierID)
}

func (m *mockDeliveryServicer) MyOrders(ctx context.Context, actor service.Actor) ([]service.BusinessOrders, error) {
	return m.myOrdersFn(ctx, actor)
}

func newDeliveryRouter(svc handler.DeliveryServicer) chi.Router {
	h := handler.NewDeliveryHandler(svc)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestAssignDelivery_OK(t *testing.T) {
	claims := customerClaims()
	order := sampleOrder(uuid.New())
	courierID := uuid.New()
	r := newDeliveryRouter(&mockDeliveryServicer{
		assignFn: func(_ context.Context, actor service.Actor, gotOrder, gotCourier uuid.UUID) (database.Order, error) {
			if gotOrder != order.ID || gotCourier != courierID {
				t.Errorf("assign args: %s %s", gotOrder, gotCourier)
			}
			order.Status = "assigned_to_ship"
			return order, nil
		},
	})

	rr := doAs(t, r, claims, "POST", "/orders/"+order.ID.String()+"/delivery", map[string]string{
		"courier_id": courierID.String(),
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "assigned_to_ship" {
		t.Errorf("status = %v, want assigned_to_ship", resp["status"])
	}
}

func TestAssignDelivery_BadCourierID(t *testing.T) {
	r := newDeliveryRouter(&mockDeliveryServicer{
		assignFn: func(context.Context, service.Actor, uuid.UUID, uuid.UUID) (database.Order, error) {
			t.Fatal("service should not be called")
			return database.Order{}, nil
		},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/orders/"+uuid.NewString()+"/delivery", map[string]string{
		"courier_id": "not-a-uuid",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAssignDelivery_NotCourierMaps400(t *testing.T) {
	r := newDeliveryRouter(&mockDeliveryServicer{
		assignFn: func(context.Context, service.Actor, uuid.UUID, uuid.UUID) (database.Order, error) {
			return database.Order{}, service.ErrNotDeliveryStaff
		},
	})

	rr := doAs(t, r, customerClaims(), "POST", "/orders/"+uuid.NewString()+"/delivery", map[string]string{
		"courier_id": uuid.NewString(),
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMyDeliveryOrders_GroupedByBusiness(t *testing.T) {
	claims := customerClaims()
	businessID := uuid.New()
	r := newDeliveryRouter(&mockDeliveryServicer{
		myOrdersFn: func(_ context.Context, actor service.Actor) ([]service.BusinessOrders, error) {
			if actor.ID != claims.UserID {
				t.Errorf("actor = %s, want %s", actor.ID, claims.UserID)
			}
			return []service.BusinessOrders{
				{BusinessID: businessID, Orders: []database.Order{sampleOrder(claims.UserID)}},
			}, nil
		},
	})

	rr := doAs(t, r, claims, "GET", "/delivery/orders", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var groups []map[string]interface{}
	decodeInto(t, rr, &groups)
	if len(groups) != 1 || groups[0]["business_id"] != businessID.String() {
		t.Errorf("unexpected groups: %v", groups)
	}
}
