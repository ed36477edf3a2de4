package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
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
	ErrEmptyItems            = errors.New("order has no items")
	ErrOrderItemValidation   = errors.New("invalid order item")
	ErrInvalidDeliveryMethod = errors.New("invalid delivery method")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrBusinessInactive      = errors.New("business is not active")
	ErrBusinessClosed        = errors.New("business is closed")
	ErrShippingInfoRequired  = errors.New("shipping info required for delivery orders")
	ErrPlaceRequired         = errors.New("place required for here orders")
	ErrPlaceNotFound         = errors.New("place not found")
	ErrPlaceBusinessMismatch = errors.New("place does not belong to an ordered business")
)

// BusinessClosedError carries the next opening time alongside the closed
// sentinel so clients can tell customers when to come back.
type BusinessClosedError struct {
	BusinessID   uuid.UUID
	BusinessName string
	NextOpening  *NextOpening
}

func (e *BusinessClosedError) Error() string {
	if e.NextOpening == nil {
		return fmt.Sprintf("business %s is closed", e.BusinessName)
	}
	return fmt.Sprintf("business %s is closed, opens %s at %s",
		e.BusinessName, e.NextOpening.Day, e.NextOpening.StartTime)
}

func (e *BusinessClosedError) Unwrap() error { return ErrBusinessClosed }

// CheckoutStore defines the DB methods used to place orders. Satisfied by
// *database.Queries.
type CheckoutStore interface {
	AccessStore
	GetUser(ctx context.Context, id uuid.UUID) (database.User, error)
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	ListBusinessHours(ctx context.Context, businessID uuid.UUID) ([]database.BusinessHour, error)
	ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.Product, error)
	ListComboItemsByCombo(ctx context.Context, comboID uuid.UUID) ([]database.ComboItem, error)
	GetPlace(ctx context.Context, id uuid.UUID) (database.Place, error)
	GetActiveHereOrder(ctx context.Context, arg database.GetActiveHereOrderParams) (database.Order, error)
	NextOrderSequence(ctx context.Context, businessID uuid.UUID) (int64, error)
	DecrementProductStock(ctx context.Context, arg database.AdjustProductStockParams) (database.Product, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
}

// NewCheckoutStore builds a CheckoutStore bound to the given connection or
// transaction.
type NewCheckoutStore func(db database.DBTX) CheckoutStore

// CheckoutService turns a mixed cart into per-business orders.
type CheckoutService struct {
	pool     TxBeginner
	newStore NewCheckoutStore
	sink     notify.Sink
	now      func() time.Time
}

func NewCheckoutService(pool TxBeginner, newStore NewCheckoutStore, sink notify.Sink) *CheckoutService {
	return &CheckoutService{pool: pool, newStore: newStore, sink: sink, now: time.Now}
}

// CartLine is one requested product with its quantity.
type CartLine struct {
	ProductID string
	Quantity  int32
	Notes     string
}

// ShippingInfo is the destination of a delivery order.
type ShippingInfo struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// PlaceOrderRequest is a full cart checkout.
type PlaceOrderRequest struct {
	Actor          Actor
	DeliveryMethod string
	PaymentMethod  string
	PlaceID        string
	Shipping       *ShippingInfo
	ShippingPrice  string
	Notes          string
	Items          []CartLine
}

// OrderResult is one created order with its expanded line items.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// expandedLine is a cart line after combo expansion: either a standalone
// product, a combo header carrying the combo price, or a zero-priced combo
// component.
type expandedLine struct {
	product          database.Product
	price            decimal.Decimal
	quantity         int32
	isComboComponent bool
	comboGroup       pgtype.UUID
	notes            string
}

// PlaceOrder validates the cart, expands combos, gates on business
// availability, partitions lines per business, reserves stock, and creates
// one numbered order per business. Everything happens in one transaction:
// either every order in the cart is placed or none is.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) ([]OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !validDeliveryMethod(req.DeliveryMethod) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDeliveryMethod, req.DeliveryMethod)
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	if req.DeliveryMethod == enum.DeliveryMethodDelivery {
		if req.Shipping == nil || req.Shipping.Address == "" || req.Shipping.City == "" || req.Shipping.Country == "" {
			return nil, ErrShippingInfoRequired
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	results, err := s.placeOrderTx(ctx, store, req)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.notifyOrdersPlaced(ctx, results)
	return results, nil
}

func (s *CheckoutService) placeOrderTx(ctx context.Context, store CheckoutStore, req PlaceOrderRequest) ([]OrderResult, error) {
	user, err := store.GetUser(ctx, req.Actor.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	lines, err := s.expandCart(ctx, store, req.Items)
	if err != nil {
		return nil, err
	}

	var place *database.Place
	if req.DeliveryMethod == enum.DeliveryMethodHere {
		if req.PlaceID == "" {
			return nil, ErrPlaceRequired
		}
		placeID, err := uuid.Parse(req.PlaceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPlaceNotFound, req.PlaceID)
		}
		p, err := store.GetPlace(ctx, placeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrPlaceNotFound
			}
			return nil, fmt.Errorf("get place: %w", err)
		}
		place = &p
	}

	groups := partitionByBusiness(lines)

	if err := s.reserveStock(ctx, store, lines); err != nil {
		return nil, err
	}

	orderGroup := uuid.New()
	results := make([]OrderResult, 0, len(groups))
	for _, group := range groups {
		res, err := s.createBusinessOrder(ctx, store, req, user, place, orderGroup, group)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// expandCart resolves product references and expands combo lines into a
// priced header plus zero-priced component lines sharing a combo group.
func (s *CheckoutService) expandCart(ctx context.Context, store CheckoutStore, items []CartLine) ([]expandedLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > 999 {
			return nil, fmt.Errorf("%w: quantity must be between 1 and 999", ErrOrderItemValidation)
		}
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid product id %q", ErrOrderItemValidation, item.ProductID)
		}
		ids = append(ids, id)
	}

	products, err := store.ListProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	byID := make(map[uuid.UUID]database.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var lines []expandedLine
	for i, item := range items {
		product, ok := byID[ids[i]]
		if !ok || !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		price := numericToDecimal(product.Price)
		if !price.IsPositive() {
			return nil, fmt.Errorf("%w: product %s has no price", ErrOrderItemValidation, product.Title)
		}

		if !product.IsCombo {
			lines = append(lines, expandedLine{
				product:  product,
				price:    price,
				quantity: item.Quantity,
				notes:    item.Notes,
			})
			continue
		}

		comboLines, err := s.expandCombo(ctx, store, product, price, item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, comboLines...)
	}
	return lines, nil
}

// expandCombo emits the combo header line followed by one component line per
// recipe entry. Component quantities multiply by the requested combo count
// and component prices are zero: the header carries the charge.
func (s *CheckoutService) expandCombo(ctx context.Context, store CheckoutStore, combo database.Product, price decimal.Decimal, item CartLine) ([]expandedLine, error) {
	recipe, err := store.ListComboItemsByCombo(ctx, combo.ID)
	if err != nil {
		return nil, fmt.Errorf("list combo items: %w", err)
	}
	if len(recipe) == 0 {
		return nil, fmt.Errorf("%w: combo %s has no components", ErrOrderItemValidation, combo.Title)
	}

	componentIDs := make([]uuid.UUID, 0, len(recipe))
	for _, ci := range recipe {
		componentIDs = append(componentIDs, ci.ProductID)
	}
	components, err := store.ListProductsByIDs(ctx, componentIDs)
	if err != nil {
		return nil, fmt.Errorf("list combo components: %w", err)
	}
	byID := make(map[uuid.UUID]database.Product, len(components))
	for _, p := range components {
		byID[p.ID] = p
	}

	group := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	lines := []expandedLine{{
		product:    combo,
		price:      price,
		quantity:   item.Quantity,
		comboGroup: group,
		notes:      item.Notes,
	}}
	for _, ci := range recipe {
		component, ok := byID[ci.ProductID]
		if !ok || !component.IsActive {
			return nil, fmt.Errorf("%w: combo %s references a missing component", ErrProductNotFound, combo.Title)
		}
		if component.IsCombo {
			return nil, fmt.Errorf("%w: combo %s nests another combo", ErrOrderItemValidation, combo.Title)
		}
		if component.BusinessID != combo.BusinessID {
			return nil, fmt.Errorf("%w: combo %s crosses businesses", ErrOrderItemValidation, combo.Title)
		}
		lines = append(lines, expandedLine{
			product:          component,
			price:            decimal.Zero,
			quantity:         ci.Quantity * item.Quantity,
			isComboComponent: true,
			comboGroup:       group,
		})
	}
	return lines, nil
}

// reserveStock aggregates required quantities per simple product and
// decrements each under a stock guard. Combo headers hold no stock of their
// own; their components do.
func (s *CheckoutService) reserveStock(ctx context.Context, store CheckoutStore, lines []expandedLine) error {
	required := make(map[uuid.UUID]int32)
	titles := make(map[uuid.UUID]string)
	var order []uuid.UUID
	for _, line := range lines {
		if line.product.IsCombo {
			continue
		}
		if _, seen := required[line.product.ID]; !seen {
			order = append(order, line.product.ID)
		}
		required[line.product.ID] += line.quantity
		titles[line.product.ID] = line.product.Title
	}

	// Deterministic decrement order keeps concurrent checkouts from
	// deadlocking on overlapping carts.
	sort.Slice(order, func(i, j int) bool {
		return strings.Compare(order[i].String(), order[j].String()) < 0
	})

	for _, id := range order {
		_, err := store.DecrementProductStock(ctx, database.AdjustProductStockParams{
			ID:       id,
			Quantity: required[id],
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, titles[id])
			}
			return fmt.Errorf("decrement stock: %w", err)
		}
	}
	return nil
}

// businessGroup is the slice of expanded lines owned by one business.
type businessGroup struct {
	businessID uuid.UUID
	lines      []expandedLine
}

// partitionByBusiness splits expanded lines by owning business, preserving
// cart order within and across groups.
func partitionByBusiness(lines []expandedLine) []businessGroup {
	var groups []businessGroup
	index := make(map[uuid.UUID]int)
	for _, line := range lines {
		i, ok := index[line.product.BusinessID]
		if !ok {
			i = len(groups)
			index[line.product.BusinessID] = i
			groups = append(groups, businessGroup{businessID: line.product.BusinessID})
		}
		groups[i].lines = append(groups[i].lines, line)
	}
	return groups
}

func (s *CheckoutService) createBusinessOrder(ctx context.Context, store CheckoutStore, req PlaceOrderRequest, user database.User, place *database.Place, orderGroup uuid.UUID, group businessGroup) (OrderResult, error) {
	business, err := store.GetBusiness(ctx, group.businessID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("get business: %w", err)
	}
	if !business.IsActive {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrBusinessInactive, business.Name)
	}

	hours, err := store.ListBusinessHours(ctx, business.ID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("list business hours: %w", err)
	}
	now := s.now()
	if !IsBusinessOpen(hours, now) {
		return OrderResult{}, &BusinessClosedError{
			BusinessID:   business.ID,
			BusinessName: business.Name,
			NextOpening:  NextOpeningTime(hours, now),
		}
	}

	var placeID pgtype.UUID
	status := enum.OrderStatusPending
	if place != nil {
		if place.BusinessID != business.ID {
			return OrderResult{}, fmt.Errorf("%w: place %s", ErrPlaceBusinessMismatch, place.Name)
		}
		placeID = pgtype.UUID{Bytes: place.ID, Valid: true}
		if place.Status == enum.PlaceStatusConfirmed {
			status = enum.OrderStatusProcessing
		}
	}

	itemsPrice := decimal.Zero
	for _, line := range group.lines {
		itemsPrice = itemsPrice.Add(line.price.Mul(decimal.NewFromInt32(line.quantity)))
	}
	shipping, err := s.shippingPrice(req, itemsPrice)
	if err != nil {
		return OrderResult{}, err
	}
	totals := computeTotals(itemsPrice, shipping)

	seq, err := store.NextOrderSequence(ctx, business.ID)
	if err != nil {
		return OrderResult{}, fmt.Errorf("next order sequence: %w", err)
	}

	params := database.CreateOrderParams{
		OrderGroup:     orderGroup,
		OrderNumber:    FormatOrderNumber(business.ID, seq),
		BusinessID:     business.ID,
		UserID:         user.ID,
		CustomerName:   user.UserName,
		CustomerEmail:  user.Email,
		CustomerPhone:  user.PhoneNumber,
		Status:         status,
		DeliveryMethod: req.DeliveryMethod,
		PlaceID:        placeID,
		ItemsPrice:     decimalToNumeric(totals.Items),
		TaxPrice:       decimalToNumeric(totals.Tax),
		ShippingPrice:  decimalToNumeric(totals.Shipping),
		TotalPrice:     decimalToNumeric(totals.Total),
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  enum.PaymentStatusPending,
		Notes:          textOrNull(req.Notes),
	}
	if req.DeliveryMethod == enum.DeliveryMethodDelivery {
		params.ShippingAddress = textOrNull(req.Shipping.Address)
		params.ShippingCity = textOrNull(req.Shipping.City)
		params.ShippingPostalCode = textOrNull(req.Shipping.PostalCode)
		params.ShippingCountry = textOrNull(req.Shipping.Country)
	} else {
		params.ShippingAddress = textOrNull(business.Address)
		params.ShippingCity = textOrNull(business.City)
		params.ShippingPostalCode = textOrNull(business.PostalCode)
		params.ShippingCountry = textOrNull(business.Country)
	}

	order, err := store.CreateOrder(ctx, params)
	if err != nil {
		return OrderResult{}, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(group.lines))
	for _, line := range group.lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:          order.ID,
			ProductID:        line.product.ID,
			Title:            line.product.Title,
			Slug:             line.product.Slug,
			Price:            decimalToNumeric(line.price),
			Quantity:         line.quantity,
			IsComboComponent: line.isComboComponent,
			ComboGroup:       line.comboGroup,
			Status:           enum.OrderItemStatusPending,
			Notes:            textOrNull(line.notes),
		})
		if err != nil {
			return OrderResult{}, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}
	return OrderResult{Order: order, Items: items}, nil
}

// shippingPrice resolves the delivery fee: the caller's value when supplied,
// otherwise a percentage of the items subtotal. Non-delivery methods ship
// free.
func (s *CheckoutService) shippingPrice(req PlaceOrderRequest, itemsPrice decimal.Decimal) (decimal.Decimal, error) {
	if req.DeliveryMethod != enum.DeliveryMethodDelivery {
		return decimal.Zero, nil
	}
	if req.ShippingPrice == "" {
		return itemsPrice.Mul(defaultShippingRate).Round(2), nil
	}
	price, err := decimal.NewFromString(req.ShippingPrice)
	if err != nil || price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: invalid shipping price %q", ErrOrderItemValidation, req.ShippingPrice)
	}
	return price, nil
}

func (s *CheckoutService) notifyOrdersPlaced(ctx context.Context, results []OrderResult) {
	for _, res := range results {
		msg := notify.Message{
			To:      res.Order.CustomerEmail,
			Subject: fmt.Sprintf("Order %s received", res.Order.OrderNumber),
			Text: fmt.Sprintf("Hi %s, we received your order %s. Total: %s.",
				res.Order.CustomerName, res.Order.OrderNumber, numericToDecimal(res.Order.TotalPrice).StringFixed(2)),
		}
		if err := s.sink.Send(ctx, msg); err != nil {
			log.Printf("ERROR: sending order notification for %s: %v", res.Order.OrderNumber, err)
		}
	}
}

// FormatOrderNumber renders the customer-facing order number: a business
// shard (last four characters of the business id, uppercased) plus the
// per-business sequence zero-padded to six digits.
func FormatOrderNumber(businessID uuid.UUID, seq int64) string {
	id := businessID.String()
	return fmt.Sprintf("B-%s-%06d", strings.ToUpper(id[len(id)-4:]), seq)
}

func validDeliveryMethod(method string) bool {
	switch method {
	case enum.DeliveryMethodDelivery, enum.DeliveryMethodPickup, enum.DeliveryMethodHere, enum.DeliveryMethodToGo:
		return true
	}
	return false
}

func validPaymentMethod(method string) bool {
	switch method {
	case enum.PaymentMethodCard, enum.PaymentMethodCash, enum.PaymentMethodPickupPayment:
		return true
	}
	return false
}
