package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
	"github.com/mesaflow/api/internal/notify"
)

var (
	ErrInvalidStatus               = errors.New("invalid order status")
	ErrInvalidStatusTransition     = errors.New("invalid status transition")
	ErrOrderAlreadyHasStatus       = errors.New("order already has this status")
	ErrOrderReactivationNotAllowed = errors.New("order is in a final status")
	ErrOrderStatusConflict         = errors.New("order status changed concurrently, retry")
)

// orderTransitions is the adjacency map of the order lifecycle. Statuses
// absent as keys are terminal.
var orderTransitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusProcessing, enum.OrderStatusCancelled},
	enum.OrderStatusProcessing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady: {
		enum.OrderStatusAssignedToShip, enum.OrderStatusShipped,
		enum.OrderStatusDelivered, enum.OrderStatusConsumed,
	},
	enum.OrderStatusAssignedToShip: {enum.OrderStatusShipped},
	enum.OrderStatusShipped:        {enum.OrderStatusDelivered},
}

func isOrderStatus(status string) bool {
	switch status {
	case enum.OrderStatusPending, enum.OrderStatusProcessing, enum.OrderStatusReady,
		enum.OrderStatusAssignedToShip, enum.OrderStatusShipped, enum.OrderStatusDelivered,
		enum.OrderStatusConsumed, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func isTerminalOrderStatus(status string) bool {
	switch status {
	case enum.OrderStatusDelivered, enum.OrderStatusConsumed, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func canTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusStore defines the DB methods used by order status transitions.
// Satisfied by *database.Queries.
type StatusStore interface {
	AccessStore
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	IncrementProductStock(ctx context.Context, arg database.AdjustProductStockParams) (database.Product, error)
}

type NewStatusStore func(db database.DBTX) StatusStore

// OrderStatusService drives orders through their lifecycle.
type OrderStatusService struct {
	pool     TxBeginner
	newStore NewStatusStore
	sink     notify.Sink
}

func NewOrderStatusService(pool TxBeginner, newStore NewStatusStore, sink notify.Sink) *OrderStatusService {
	return &OrderStatusService{pool: pool, newStore: newStore, sink: sink}
}

// Transition moves an order to newStatus after checking the lifecycle map
// and the caller's standing. Cancelling returns reserved stock in the same
// transaction, so a cancellation either fully lands or not at all.
func (s *OrderStatusService) Transition(ctx context.Context, actor Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
	if !isOrderStatus(newStatus) {
		return database.Order{}, fmt.Errorf("%w: %s", ErrInvalidStatus, newStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	updated, err := s.transitionTx(ctx, store, actor, orderID, newStatus)
	if err != nil {
		return database.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.notifyStatusChanged(ctx, updated)
	return updated, nil
}

func (s *OrderStatusService) transitionTx(ctx context.Context, store StatusStore, actor Actor, orderID uuid.UUID, newStatus string) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	business, err := store.GetBusiness(ctx, order.BusinessID)
	if err != nil {
		return database.Order{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, store, business, actor)
	if err != nil {
		return database.Order{}, err
	}
	isPurchaser := order.UserID == actor.ID
	if !isPurchaser && !access.Allowed() {
		return database.Order{}, ErrAccessDenied
	}

	if isTerminalOrderStatus(order.Status) {
		return database.Order{}, fmt.Errorf("%w: %s", ErrOrderReactivationNotAllowed, order.Status)
	}
	if order.Status == newStatus {
		return database.Order{}, fmt.Errorf("%w: %s", ErrOrderAlreadyHasStatus, newStatus)
	}
	if !canTransitionOrder(order.Status, newStatus) {
		return database.Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, order.Status, newStatus)
	}

	if newStatus == enum.OrderStatusCancelled {
		// Purchasers may only back out before the kitchen starts;
		// rank-and-file staff may never cancel on their own.
		canCancel := access.IsAdmin || access.IsOwner ||
			access.HasAnyRole(enum.StaffRoleManager) ||
			(isPurchaser && order.Status == enum.OrderStatusPending)
		if !canCancel {
			return database.Order{}, ErrAccessDenied
		}
	} else if !access.Allowed() {
		// Forward progress is a staff concern.
		return database.Order{}, ErrAccessDenied
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         order.ID,
		Status:     newStatus,
		FromStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	if newStatus == enum.OrderStatusCancelled {
		if err := restoreOrderStock(ctx, store, order.ID); err != nil {
			return database.Order{}, err
		}
	}
	return updated, nil
}

// restoreOrderStock returns reserved units for every line that held stock:
// standalone products and combo components. Combo header lines reserve
// nothing, so they restore nothing.
func restoreOrderStock(ctx context.Context, store StatusStore, orderID uuid.UUID) error {
	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, item := range items {
		if item.ComboGroup.Valid && !item.IsComboComponent {
			continue
		}
		if _, err := store.IncrementProductStock(ctx, database.AdjustProductStockParams{
			ID:       item.ProductID,
			Quantity: item.Quantity,
		}); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("restore stock for %s: %w", item.Title, err)
		}
	}
	return nil
}

func (s *OrderStatusService) notifyStatusChanged(ctx context.Context, order database.Order) {
	msg := notify.Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status),
		Text: fmt.Sprintf("Hi %s, your order %s is now %s.",
			order.CustomerName, order.OrderNumber, order.Status),
	}
	if err := s.sink.Send(ctx, msg); err != nil {
		log.Printf("ERROR: sending status notification for %s: %v", order.OrderNumber, err)
	}
}
