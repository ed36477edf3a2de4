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

var ErrOrderItemNotFound = errors.New("order item not found")

// itemTransitions is the adjacency map of the order-item lifecycle. Ready
// and cancelled items never move again.
var itemTransitions = map[string][]string{
	enum.OrderItemStatusPending: {enum.OrderItemStatusProcess, enum.OrderItemStatusCancelled},
	enum.OrderItemStatusProcess: {enum.OrderItemStatusReady},
}

func isOrderItemStatus(status string) bool {
	switch status {
	case enum.OrderItemStatusPending, enum.OrderItemStatusProcess,
		enum.OrderItemStatusReady, enum.OrderItemStatusCancelled:
		return true
	}
	return false
}

func canTransitionItem(from, to string) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemStore defines the DB methods used by item status transitions.
// Satisfied by *database.Queries.
type ItemStore interface {
	AccessStore
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetOrderItem(ctx context.Context, arg database.GetOrderItemParams) (database.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, arg database.UpdateOrderItemStatusParams) (database.OrderItem, error)
	CreateOrderItemStatusLog(ctx context.Context, arg database.CreateOrderItemStatusLogParams) (database.OrderItemStatusLog, error)
}

type NewItemStore func(db database.DBTX) ItemStore

// ItemStatusService drives individual order lines through the kitchen
// lifecycle, keeping an audit trail of who set each status.
type ItemStatusService struct {
	pool     TxBeginner
	newStore NewItemStore
	now      func() time.Time
}

func NewItemStatusService(pool TxBeginner, newStore NewItemStore) *ItemStatusService {
	return &ItemStatusService{pool: pool, newStore: newStore, now: time.Now}
}

// Transition moves one order line to newStatus. Only business staff may
// work lines. Marking a line ready stamps ready_at.
func (s *ItemStatusService) Transition(ctx context.Context, actor Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error) {
	if !isOrderItemStatus(newStatus) {
		return database.OrderItem{}, fmt.Errorf("%w: %s", ErrInvalidStatus, newStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.OrderItem{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	updated, err := s.transitionTx(ctx, store, actor, orderID, itemID, newStatus)
	if err != nil {
		return database.OrderItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.OrderItem{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (s *ItemStatusService) transitionTx(ctx context.Context, store ItemStore, actor Actor, orderID, itemID uuid.UUID, newStatus string) (database.OrderItem, error) {
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrOrderNotFound
		}
		return database.OrderItem{}, fmt.Errorf("get order: %w", err)
	}
	business, err := store.GetBusiness(ctx, order.BusinessID)
	if err != nil {
		return database.OrderItem{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, store, business, actor)
	if err != nil {
		return database.OrderItem{}, err
	}
	if !access.Allowed() {
		return database.OrderItem{}, ErrAccessDenied
	}

	item, err := store.GetOrderItem(ctx, database.GetOrderItemParams{ID: itemID, OrderID: orderID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrOrderItemNotFound
		}
		return database.OrderItem{}, fmt.Errorf("get order item: %w", err)
	}

	if item.Status == newStatus {
		return database.OrderItem{}, fmt.Errorf("%w: %s", ErrOrderAlreadyHasStatus, newStatus)
	}
	if !canTransitionItem(item.Status, newStatus) {
		return database.OrderItem{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, item.Status, newStatus)
	}

	var readyAt pgtype.Timestamptz
	if newStatus == enum.OrderItemStatusReady {
		readyAt = pgtype.Timestamptz{Time: s.now(), Valid: true}
	}
	updated, err := store.UpdateOrderItemStatus(ctx, database.UpdateOrderItemStatusParams{
		ID:         item.ID,
		Status:     newStatus,
		ReadyAt:    readyAt,
		FromStatus: item.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrOrderStatusConflict
		}
		return database.OrderItem{}, fmt.Errorf("update order item status: %w", err)
	}

	if _, err := store.CreateOrderItemStatusLog(ctx, database.CreateOrderItemStatusLogParams{
		OrderItemID: item.ID,
		Status:      newStatus,
		SetBy:       actor.ID,
	}); err != nil {
		return database.OrderItem{}, fmt.Errorf("log item status: %w", err)
	}
	return updated, nil
}
