package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotEditable = errors.New("order can no longer be modified")
)

// TabStore extends CheckoutStore with the place and order methods needed to
// run an open tab.
type TabStore interface {
	CheckoutStore
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	AddPlaceOccupant(ctx context.Context, arg database.AddPlaceOccupantParams) error
	MarkPlacePending(ctx context.Context, id uuid.UUID) (database.Place, error)
}

type NewTabStore func(db database.DBTX) TabStore

// TabService runs open tabs for dine-in customers: an order opened against a
// place that accumulates items until it is paid.
type TabService struct {
	pool     TxBeginner
	newStore NewTabStore
	checkout *CheckoutService
}

func NewTabService(pool TxBeginner, newStore NewTabStore, checkout *CheckoutService) *TabService {
	return &TabService{pool: pool, newStore: newStore, checkout: checkout}
}

// Open returns the caller's active tab on the place, creating an empty one
// when none exists. Opening a tab seats the caller at the place and flags an
// available place as pending.
func (s *TabService) Open(ctx context.Context, actor Actor, placeID string, paymentMethod string) (OrderResult, error) {
	pid, err := uuid.Parse(placeID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrPlaceNotFound, placeID)
	}
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCash
	}
	if !validPaymentMethod(paymentMethod) {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, paymentMethod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	place, err := store.GetPlace(ctx, pid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderResult{}, ErrPlaceNotFound
		}
		return OrderResult{}, fmt.Errorf("get place: %w", err)
	}

	existing, err := store.GetActiveHereOrder(ctx, database.GetActiveHereOrderParams{
		PlaceID: place.ID,
		UserID:  actor.ID,
	})
	if err == nil {
		items, err := store.ListOrderItemsByOrder(ctx, existing.ID)
		if err != nil {
			return OrderResult{}, fmt.Errorf("list order items: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return OrderResult{}, fmt.Errorf("commit tx: %w", err)
		}
		return OrderResult{Order: existing, Items: items}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return OrderResult{}, fmt.Errorf("get active here order: %w", err)
	}

	result, err := s.openTabTx(ctx, store, actor, place, paymentMethod)
	if err != nil {
		return OrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OrderResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func (s *TabService) openTabTx(ctx context.Context, store TabStore, actor Actor, place database.Place, paymentMethod string) (OrderResult, error) {
	user, err := store.GetUser(ctx, actor.ID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("get user: %w", err)
	}
	business, err := store.GetBusiness(ctx, place.BusinessID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("get business: %w", err)
	}
	if !business.IsActive {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrBusinessInactive, business.Name)
	}

	if err := store.AddPlaceOccupant(ctx, database.AddPlaceOccupantParams{
		PlaceID: place.ID,
		UserID:  actor.ID,
	}); err != nil {
		return OrderResult{}, fmt.Errorf("add place occupant: %w", err)
	}
	if place.Status == enum.PlaceStatusAvailable {
		if _, err := store.MarkPlacePending(ctx, place.ID); err != nil {
			return OrderResult{}, fmt.Errorf("mark place pending: %w", err)
		}
	}

	// A tab on a confirmed place starts in the kitchen straight away.
	status := enum.OrderStatusPending
	if place.Status == enum.PlaceStatusConfirmed {
		status = enum.OrderStatusProcessing
	}

	seq, err := store.NextOrderSequence(ctx, business.ID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("next order sequence: %w", err)
	}
	totals := computeTotals(decimal.Zero, decimal.Zero)
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderGroup:         uuid.New(),
		OrderNumber:        FormatOrderNumber(business.ID, seq),
		BusinessID:         business.ID,
		UserID:             user.ID,
		CustomerName:       user.UserName,
		CustomerEmail:      user.Email,
		CustomerPhone:      user.PhoneNumber,
		Status:             status,
		DeliveryMethod:     enum.DeliveryMethodHere,
		PlaceID:            pgtype.UUID{Bytes: place.ID, Valid: true},
		ItemsPrice:         decimalToNumeric(totals.Items),
		TaxPrice:           decimalToNumeric(totals.Tax),
		ShippingPrice:      decimalToNumeric(totals.Shipping),
		TotalPrice:         decimalToNumeric(totals.Total),
		ShippingAddress:    textOrNull(business.Address),
		ShippingCity:       textOrNull(business.City),
		ShippingPostalCode: textOrNull(business.PostalCode),
		ShippingCountry:    textOrNull(business.Country),
		PaymentMethod:      paymentMethod,
		PaymentStatus:      enum.PaymentStatusPending,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("create order: %w", err)
	}
	return OrderResult{Order: order}, nil
}

// AddItem appends a product to an open order, reserving stock and
// recomputing the order totals. Only the purchaser or business staff may add
// items, and only while the order is still pending or processing and unpaid.
func (s *TabService) AddItem(ctx context.Context, actor Actor, orderID string, line CartLine) (OrderResult, error) {
	oid, err := uuid.Parse(orderID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	result, err := s.addItemTx(ctx, store, actor, oid, line)
	if err != nil {
		return OrderResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return OrderResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

func (s *TabService) addItemTx(ctx context.Context, store TabStore, actor Actor, orderID uuid.UUID, line CartLine) (OrderResult, error) {
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderResult{}, ErrOrderNotFound
		}
		return OrderResult{}, fmt.Errorf("get order: %w", err)
	}

	if order.UserID != actor.ID {
		business, err := store.GetBusiness(ctx, order.BusinessID)
		if err != nil {
			return OrderResult{}, fmt.Errorf("get business: %w", err)
		}
		access, err := businessAccess(ctx, store, business, actor)
		if err != nil {
			return OrderResult{}, err
		}
		if !access.Allowed() {
			return OrderResult{}, ErrAccessDenied
		}
	}

	if order.Status != enum.OrderStatusPending && order.Status != enum.OrderStatusProcessing {
		return OrderResult{}, ErrOrderNotEditable
	}
	if order.PaymentStatus == enum.PaymentStatusPaid {
		return OrderResult{}, ErrOrderNotEditable
	}

	lines, err := s.checkout.expandCart(ctx, store, []CartLine{line})
	if err != nil {
		return OrderResult{}, err
	}
	for _, l := range lines {
		if l.product.BusinessID != order.BusinessID {
			return OrderResult{}, fmt.Errorf("%w: product %s belongs to another business", ErrOrderItemValidation, l.product.Title)
		}
	}
	if err := s.checkout.reserveStock(ctx, store, lines); err != nil {
		return OrderResult{}, err
	}

	for _, l := range lines {
		_, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:          order.ID,
			ProductID:        l.product.ID,
			Title:            l.product.Title,
			Slug:             l.product.Slug,
			Price:            decimalToNumeric(l.price),
			Quantity:         l.quantity,
			IsComboComponent: l.isComboComponent,
			ComboGroup:       l.comboGroup,
			Status:           enum.OrderItemStatusPending,
			Notes:            textOrNull(l.notes),
		})
		if err != nil {
			return OrderResult{}, fmt.Errorf("create order item: %w", err)
		}
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("list order items: %w", err)
	}
	itemsPrice := decimal.Zero
	for _, it := range items {
		itemsPrice = itemsPrice.Add(numericToDecimal(it.Price).Mul(decimal.NewFromInt32(it.Quantity)))
	}
	totals := computeTotals(itemsPrice, numericToDecimal(order.ShippingPrice))
	updated, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:            order.ID,
		ItemsPrice:    decimalToNumeric(totals.Items),
		TaxPrice:      decimalToNumeric(totals.Tax),
		ShippingPrice: decimalToNumeric(totals.Shipping),
		TotalPrice:    decimalToNumeric(totals.Total),
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("update order totals: %w", err)
	}
	return OrderResult{Order: updated, Items: items}, nil
}
