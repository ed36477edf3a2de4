package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
)

var (
	ErrNotDeliveryStaff = errors.New("user is not active delivery staff")
	ErrOrderNotReady    = errors.New("order is not ready for delivery assignment")
)

// DeliveryStore defines the DB methods used for delivery assignment.
// Satisfied by *database.Queries.
type DeliveryStore interface {
	AccessStore
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	AssignOrderDelivery(ctx context.Context, arg database.AssignOrderDeliveryParams) (database.Order, error)
	ListAssignedOrders(ctx context.Context, deliveryManID uuid.UUID) ([]database.Order, error)
}

// DeliveryService hands ready orders to delivery staff.
type DeliveryService struct {
	store DeliveryStore
	now   func() time.Time
}

func NewDeliveryService(store DeliveryStore) *DeliveryService {
	return &DeliveryService{store: store, now: time.Now}
}

// Assign hands a ready order to a courier. The manager picks the courier,
// who must be an active roster member holding the delivery role. The update
// only lands while the order is still ready, so two managers assigning at
// once cannot both win.
func (s *DeliveryService) Assign(ctx context.Context, actor Actor, orderID, courierID uuid.UUID) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	business, err := s.store.GetBusiness(ctx, order.BusinessID)
	if err != nil {
		return database.Order{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, s.store, business, actor)
	if err != nil {
		return database.Order{}, err
	}
	if !access.HasAnyRole(enum.StaffRoleManager, enum.StaffRoleReception) {
		return database.Order{}, ErrAccessDenied
	}

	courier, err := s.store.GetBusinessStaff(ctx, database.GetBusinessStaffParams{
		BusinessID: business.ID,
		UserID:     courierID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrNotDeliveryStaff
		}
		return database.Order{}, fmt.Errorf("get courier: %w", err)
	}
	if !courier.IsActive || !hasRole(courier.Roles, enum.StaffRoleDelivery) {
		return database.Order{}, ErrNotDeliveryStaff
	}

	assigned, err := s.store.AssignOrderDelivery(ctx, database.AssignOrderDeliveryParams{
		ID:            order.ID,
		Status:        enum.OrderStatusAssignedToShip,
		DeliveryManID: pgtype.UUID{Bytes: courierID, Valid: true},
		AssignedAt:    pgtype.Timestamptz{Time: s.now(), Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotReady
		}
		return database.Order{}, fmt.Errorf("assign delivery: %w", err)
	}
	return assigned, nil
}

// BusinessOrders is a courier's open assignments for one business.
type BusinessOrders struct {
	BusinessID uuid.UUID
	Orders     []database.Order
}

// MyOrders returns the caller's open delivery assignments grouped by
// business, oldest assignment first within and across groups.
func (s *DeliveryService) MyOrders(ctx context.Context, actor Actor) ([]BusinessOrders, error) {
	orders, err := s.store.ListAssignedOrders(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list assigned orders: %w", err)
	}

	var groups []BusinessOrders
	index := make(map[uuid.UUID]int)
	for _, order := range orders {
		i, ok := index[order.BusinessID]
		if !ok {
			i = len(groups)
			index[order.BusinessID] = i
			groups = append(groups, BusinessOrders{BusinessID: order.BusinessID})
		}
		groups[i].Orders = append(groups[i].Orders, order)
	}
	return groups, nil
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
