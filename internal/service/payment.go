package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
	"github.com/mesaflow/api/internal/notify"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderAlreadyPaid     = errors.New("order is already paid")
	ErrOrderNotPayable      = errors.New("order cannot be paid")
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")
)

// PaymentStore defines the DB methods used to settle orders. Satisfied by
// *database.Queries.
type PaymentStore interface {
	AccessStore
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	CountUnpaidHereOrders(ctx context.Context, placeID uuid.UUID) (int64, error)
	ReleasePlace(ctx context.Context, id uuid.UUID) (database.Place, error)
	ClearPlaceOccupants(ctx context.Context, placeID uuid.UUID) error
}

type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentService settles orders. Settling the last open tab on a place
// frees the place in the same transaction.
type PaymentService struct {
	pool     TxBeginner
	newStore NewPaymentStore
	sink     notify.Sink
	now      func() time.Time
}

func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, sink notify.Sink) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore, sink: sink, now: time.Now}
}

// PayRequest settles one order.
type PayRequest struct {
	Actor       Actor
	OrderID     uuid.UUID
	Method      string
	Ref         string
	Provider    string
	AmountGiven string
}

// PayResult is the settled order plus whether its place was freed.
type PayResult struct {
	Order         database.Order
	PlaceReleased bool
}

// Pay marks an order paid. Card payments may come from the purchaser; cash
// and pay-on-pickup are recorded by staff at the counter. The order row is
// locked for the duration so a double submission cannot pay twice.
func (s *PaymentService) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if !validPaymentMethod(req.Method) {
		return PayResult{}, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, req.Method)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PayResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	result, err := s.payTx(ctx, store, req)
	if err != nil {
		return PayResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PayResult{}, fmt.Errorf("commit tx: %w", err)
	}

	s.notifyReceipt(ctx, result.Order)
	return result, nil
}

func (s *PaymentService) payTx(ctx context.Context, store PaymentStore, req PayRequest) (PayResult, error) {
	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PayResult{}, ErrOrderNotFound
		}
		return PayResult{}, fmt.Errorf("get order: %w", err)
	}

	business, err := store.GetBusiness(ctx, order.BusinessID)
	if err != nil {
		return PayResult{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, store, business, req.Actor)
	if err != nil {
		return PayResult{}, err
	}
	isPurchaser := order.UserID == req.Actor.ID
	switch req.Method {
	case enum.PaymentMethodCard:
		if !isPurchaser && !access.Allowed() {
			return PayResult{}, ErrAccessDenied
		}
	default:
		// Cash and pay-on-pickup are recorded at the counter.
		if !access.Allowed() {
			return PayResult{}, ErrAccessDenied
		}
	}

	if order.PaymentStatus == enum.PaymentStatusPaid {
		return PayResult{}, ErrOrderAlreadyPaid
	}
	if order.Status == enum.OrderStatusCancelled {
		return PayResult{}, ErrOrderNotPayable
	}

	var amountGiven, changeDue pgtype.Numeric
	if req.Method == enum.PaymentMethodCash {
		given, err := decimal.NewFromString(req.AmountGiven)
		if err != nil {
			return PayResult{}, fmt.Errorf("%w: %q", ErrInvalidPaymentAmount, req.AmountGiven)
		}
		total := numericToDecimal(order.TotalPrice)
		if given.LessThan(total) {
			return PayResult{}, fmt.Errorf("%w: %s given, %s due",
				ErrInvalidPaymentAmount, given.StringFixed(2), total.StringFixed(2))
		}
		amountGiven = decimalToNumeric(given)
		changeDue = decimalToNumeric(given.Sub(total))
	}

	paid, err := store.MarkOrderPaid(ctx, database.MarkOrderPaidParams{
		ID:              order.ID,
		PaymentStatus:   enum.PaymentStatusPaid,
		PaymentRef:      textOrNull(req.Ref),
		PaymentProvider: textOrNull(req.Provider),
		PaidAt:          pgtype.Timestamptz{Time: s.now(), Valid: true},
		AmountGiven:     amountGiven,
		ChangeDue:       changeDue,
		PaymentMethod:   req.Method,
	})
	if err != nil {
		return PayResult{}, fmt.Errorf("mark order paid: %w", err)
	}

	result := PayResult{Order: paid}
	if paid.DeliveryMethod == enum.DeliveryMethodHere && paid.PlaceID.Valid {
		released, err := releasePlaceIfSettled(ctx, store, paid.PlaceID.Bytes)
		if err != nil {
			return PayResult{}, err
		}
		result.PlaceReleased = released
	}
	return result, nil
}

func (s *PaymentService) notifyReceipt(ctx context.Context, order database.Order) {
	msg := notify.Message{
		To:      order.CustomerEmail,
		Subject: fmt.Sprintf("Receipt for order %s", order.OrderNumber),
		Text: fmt.Sprintf("Hi %s, we received your payment of %s for order %s. Thank you!",
			order.CustomerName, numericToDecimal(order.TotalPrice).StringFixed(2), order.OrderNumber),
	}
	if err := s.sink.Send(ctx, msg); err != nil {
		log.Printf("ERROR: sending receipt for %s: %v", order.OrderNumber, err)
	}
}
