package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_group, order_number, business_id, user_id,
customer_name, customer_email, customer_phone, status, delivery_method,
place_id, delivery_man_id, delivery_assigned_at,
items_price, tax_price, shipping_price, total_price,
shipping_address, shipping_city, shipping_postal_code, shipping_country,
payment_method, payment_status, payment_ref, payment_provider, paid_at,
amount_given, change_due, notes, created_at, updated_at`

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderGroup, &o.OrderNumber, &o.BusinessID, &o.UserID,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Status, &o.DeliveryMethod,
		&o.PlaceID, &o.DeliveryManID, &o.DeliveryAssignedAt,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&o.ShippingAddress, &o.ShippingCity, &o.ShippingPostalCode, &o.ShippingCountry,
		&o.PaymentMethod, &o.PaymentStatus, &o.PaymentRef, &o.PaymentProvider, &o.PaidAt,
		&o.AmountGiven, &o.ChangeDue, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const createOrder = `
INSERT INTO orders (order_group, order_number, business_id, user_id,
	customer_name, customer_email, customer_phone, status, delivery_method,
	place_id, items_price, tax_price, shipping_price, total_price,
	shipping_address, shipping_city, shipping_postal_code, shipping_country,
	payment_method, payment_status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderGroup         uuid.UUID
	OrderNumber        string
	BusinessID         uuid.UUID
	UserID             uuid.UUID
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	Status             string
	DeliveryMethod     string
	PlaceID            pgtype.UUID
	ItemsPrice         pgtype.Numeric
	TaxPrice           pgtype.Numeric
	ShippingPrice      pgtype.Numeric
	TotalPrice         pgtype.Numeric
	ShippingAddress    pgtype.Text
	ShippingCity       pgtype.Text
	ShippingPostalCode pgtype.Text
	ShippingCountry    pgtype.Text
	PaymentMethod      string
	PaymentStatus      string
	Notes              pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderGroup, arg.OrderNumber, arg.BusinessID, arg.UserID,
		arg.CustomerName, arg.CustomerEmail, arg.CustomerPhone, arg.Status, arg.DeliveryMethod,
		arg.PlaceID, arg.ItemsPrice, arg.TaxPrice, arg.ShippingPrice, arg.TotalPrice,
		arg.ShippingAddress, arg.ShippingCity, arg.ShippingPostalCode, arg.ShippingCountry,
		arg.PaymentMethod, arg.PaymentStatus, arg.Notes)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// getOrderForUpdate locks the order row so concurrent payment or transition
// attempts serialize on it.
const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR NO KEY UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrdersByUser = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

type ListOrdersByUserParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

const listOrdersByBusiness = `SELECT ` + orderColumns + ` FROM orders WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

type ListOrdersByBusinessParams struct {
	BusinessID uuid.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListOrdersByBusiness(ctx context.Context, arg ListOrdersByBusinessParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByBusiness, arg.BusinessID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// updateOrderStatus is conditional on the current status so a transition
// validated against a stale read cannot be applied twice.
const updateOrderStatus = `
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	FromStatus string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

const markOrderPaid = `
UPDATE orders SET payment_status = $2, payment_ref = $3, payment_provider = $4,
	paid_at = $5, amount_given = $6, change_due = $7, payment_method = $8, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID              uuid.UUID
	PaymentStatus   string
	PaymentRef      pgtype.Text
	PaymentProvider pgtype.Text
	PaidAt          pgtype.Timestamptz
	AmountGiven     pgtype.Numeric
	ChangeDue       pgtype.Numeric
	PaymentMethod   string
}

func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	row := q.db.QueryRow(ctx, markOrderPaid,
		arg.ID, arg.PaymentStatus, arg.PaymentRef, arg.PaymentProvider,
		arg.PaidAt, arg.AmountGiven, arg.ChangeDue, arg.PaymentMethod)
	return scanOrder(row)
}

const updateOrderTotals = `
UPDATE orders SET items_price = $2, tax_price = $3, shipping_price = $4, total_price = $5, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID            uuid.UUID
	ItemsPrice    pgtype.Numeric
	TaxPrice      pgtype.Numeric
	ShippingPrice pgtype.Numeric
	TotalPrice    pgtype.Numeric
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.ItemsPrice, arg.TaxPrice, arg.ShippingPrice, arg.TotalPrice)
	return scanOrder(row)
}

// assignOrderDelivery is legal only while the order is ready.
const assignOrderDelivery = `
UPDATE orders SET status = $2, delivery_man_id = $3, delivery_assigned_at = $4, updated_at = now()
WHERE id = $1 AND status = 'ready'
RETURNING ` + orderColumns

type AssignOrderDeliveryParams struct {
	ID            uuid.UUID
	Status        string
	DeliveryManID pgtype.UUID
	AssignedAt    pgtype.Timestamptz
}

func (q *Queries) AssignOrderDelivery(ctx context.Context, arg AssignOrderDeliveryParams) (Order, error) {
	row := q.db.QueryRow(ctx, assignOrderDelivery, arg.ID, arg.Status, arg.DeliveryManID, arg.AssignedAt)
	return scanOrder(row)
}

const listAssignedOrders = `SELECT ` + orderColumns + `
FROM orders WHERE delivery_man_id = $1 AND status = 'assigned_to_ship'
ORDER BY delivery_assigned_at`

func (q *Queries) ListAssignedOrders(ctx context.Context, deliveryManID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listAssignedOrders, deliveryManID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// getActiveHereOrder finds the caller's open tab on a place, if any.
const getActiveHereOrder = `SELECT ` + orderColumns + `
FROM orders
WHERE place_id = $1 AND user_id = $2 AND delivery_method = 'here'
	AND status NOT IN ('delivered', 'consumed', 'cancelled')
ORDER BY created_at
LIMIT 1`

type GetActiveHereOrderParams struct {
	PlaceID uuid.UUID
	UserID  uuid.UUID
}

func (q *Queries) GetActiveHereOrder(ctx context.Context, arg GetActiveHereOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getActiveHereOrder, arg.PlaceID, arg.UserID))
}

// movePendingHereOrdersToProcessing is the place-confirmation cascade.
const movePendingHereOrdersToProcessing = `
UPDATE orders SET status = 'processing', updated_at = now()
WHERE place_id = $1 AND delivery_method = 'here' AND status = 'pending'
`

func (q *Queries) MovePendingHereOrdersToProcessing(ctx context.Context, placeID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, movePendingHereOrdersToProcessing, placeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// countUnpaidHereOrders drives place auto-release: cancelled orders do not
// hold a table.
const countUnpaidHereOrders = `
SELECT count(*) FROM orders
WHERE place_id = $1 AND delivery_method = 'here'
	AND payment_status <> 'paid' AND status <> 'cancelled'
`

func (q *Queries) CountUnpaidHereOrders(ctx context.Context, placeID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countUnpaidHereOrders, placeID).Scan(&n)
	return n, err
}

func collectOrders(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderGroup, &o.OrderNumber, &o.BusinessID, &o.UserID,
			&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Status, &o.DeliveryMethod,
			&o.PlaceID, &o.DeliveryManID, &o.DeliveryAssignedAt,
			&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
			&o.ShippingAddress, &o.ShippingCity, &o.ShippingPostalCode, &o.ShippingCountry,
			&o.PaymentMethod, &o.PaymentStatus, &o.PaymentRef, &o.PaymentProvider, &o.PaidAt,
			&o.AmountGiven, &o.ChangeDue, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// --- Order items ---

const orderItemColumns = `id, order_id, product_id, title, slug, price, quantity,
is_combo_component, combo_group, status, notes, ready_at, created_at`

func scanOrderItem(row rowScanner) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Slug, &it.Price,
		&it.Quantity, &it.IsComboComponent, &it.ComboGroup, &it.Status, &it.Notes,
		&it.ReadyAt, &it.CreatedAt)
	return it, err
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, title, slug, price, quantity,
	is_combo_component, combo_group, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID          uuid.UUID
	ProductID        uuid.UUID
	Title            string
	Slug             string
	Price            pgtype.Numeric
	Quantity         int32
	IsComboComponent bool
	ComboGroup       pgtype.UUID
	Status           string
	Notes            pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Title, arg.Slug, arg.Price, arg.Quantity,
		arg.IsComboComponent, arg.ComboGroup, arg.Status, arg.Notes)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY created_at, id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Slug, &it.Price,
			&it.Quantity, &it.IsComboComponent, &it.ComboGroup, &it.Status, &it.Notes,
			&it.ReadyAt, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const getOrderItem = `SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1 AND order_id = $2`

type GetOrderItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) GetOrderItem(ctx context.Context, arg GetOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, arg.ID, arg.OrderID))
}

const updateOrderItemStatus = `
UPDATE order_items SET status = $2, ready_at = $3
WHERE id = $1 AND status = $4
RETURNING ` + orderItemColumns

type UpdateOrderItemStatusParams struct {
	ID         uuid.UUID
	Status     string
	ReadyAt    pgtype.Timestamptz
	FromStatus string
}

func (q *Queries) UpdateOrderItemStatus(ctx context.Context, arg UpdateOrderItemStatusParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, updateOrderItemStatus, arg.ID, arg.Status, arg.ReadyAt, arg.FromStatus))
}

const createOrderItemStatusLog = `
INSERT INTO order_item_status_log (order_item_id, status, set_by)
VALUES ($1, $2, $3)
RETURNING id, order_item_id, status, set_by, set_at
`

type CreateOrderItemStatusLogParams struct {
	OrderItemID uuid.UUID
	Status      string
	SetBy       uuid.UUID
}

func (q *Queries) CreateOrderItemStatusLog(ctx context.Context, arg CreateOrderItemStatusLogParams) (OrderItemStatusLog, error) {
	row := q.db.QueryRow(ctx, createOrderItemStatusLog, arg.OrderItemID, arg.Status, arg.SetBy)
	var l OrderItemStatusLog
	err := row.Scan(&l.ID, &l.OrderItemID, &l.Status, &l.SetBy, &l.SetAt)
	return l, err
}

// --- Kitchen read side ---

const listKitchenItems = `
SELECT oi.id, oi.order_id, o.order_number, oi.product_id, oi.title, oi.quantity,
	oi.notes, oi.status, oi.created_at, o.delivery_method, o.place_id, p.name
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
LEFT JOIN places p ON p.id = o.place_id
WHERE o.business_id = $1 AND o.status <> 'cancelled' AND oi.status = $2
`

type ListKitchenItemsParams struct {
	BusinessID uuid.UUID
	ItemStatus string
}

// KitchenItemRow is one order line joined with its order and place, the raw
// input of the kitchen queue projector.
type KitchenItemRow struct {
	ItemID         uuid.UUID
	OrderID        uuid.UUID
	OrderNumber    string
	ProductID      uuid.UUID
	ProductTitle   string
	Quantity       int32
	Notes          pgtype.Text
	Status         string
	CreatedAt      time.Time
	DeliveryMethod string
	PlaceID        pgtype.UUID
	PlaceName      pgtype.Text
}

func (q *Queries) ListKitchenItems(ctx context.Context, arg ListKitchenItemsParams) ([]KitchenItemRow, error) {
	rows, err := q.db.Query(ctx, listKitchenItems, arg.BusinessID, arg.ItemStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KitchenItemRow
	for rows.Next() {
		var k KitchenItemRow
		if err := rows.Scan(&k.ItemID, &k.OrderID, &k.OrderNumber, &k.ProductID, &k.ProductTitle,
			&k.Quantity, &k.Notes, &k.Status, &k.CreatedAt, &k.DeliveryMethod, &k.PlaceID, &k.PlaceName); err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	return items, rows.Err()
}
