package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createProduct = `
INSERT INTO products (business_id, title, slug, price, stock, is_combo)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
`

type CreateProductParams struct {
	BusinessID uuid.UUID
	Title      string
	Slug       string
	Price      pgtype.Numeric
	Stock      int32
	IsCombo    bool
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.BusinessID, arg.Title, arg.Slug, arg.Price, arg.Stock, arg.IsCombo)
	return scanProduct(row)
}

const getProduct = `
SELECT id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
FROM products WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const listProductsByIDs = `
SELECT id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
FROM products WHERE id = ANY($1)
`

func (q *Queries) ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProductsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

const listProductsByBusiness = `
SELECT id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
FROM products WHERE business_id = $1 AND is_active
ORDER BY title
`

func (q *Queries) ListProductsByBusiness(ctx context.Context, businessID uuid.UUID) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProductsByBusiness, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// decrementProductStock only succeeds when enough stock remains; the WHERE
// clause re-validates availability at the moment of the decrement so two
// concurrent checkouts cannot both take the last unit.
const decrementProductStock = `
UPDATE products SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND NOT is_combo AND stock >= $2
RETURNING id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
`

type AdjustProductStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) DecrementProductStock(ctx context.Context, arg AdjustProductStockParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, decrementProductStock, arg.ID, arg.Quantity))
}

const incrementProductStock = `
UPDATE products SET stock = stock + $2, updated_at = now()
WHERE id = $1 AND NOT is_combo
RETURNING id, business_id, title, slug, price, stock, is_combo, is_active, created_at, updated_at
`

func (q *Queries) IncrementProductStock(ctx context.Context, arg AdjustProductStockParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, incrementProductStock, arg.ID, arg.Quantity))
}

const listComboItemsByCombo = `
SELECT id, combo_id, product_id, quantity, sort_order
FROM combo_items WHERE combo_id = $1
ORDER BY sort_order, id
`

func (q *Queries) ListComboItemsByCombo(ctx context.Context, comboID uuid.UUID) ([]ComboItem, error) {
	rows, err := q.db.Query(ctx, listComboItemsByCombo, comboID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ComboItem
	for rows.Next() {
		var ci ComboItem
		if err := rows.Scan(&ci.ID, &ci.ComboID, &ci.ProductID, &ci.Quantity, &ci.SortOrder); err != nil {
			return nil, err
		}
		items = append(items, ci)
	}
	return items, rows.Err()
}

const createComboItem = `
INSERT INTO combo_items (combo_id, product_id, quantity, sort_order)
VALUES ($1, $2, $3, $4)
RETURNING id, combo_id, product_id, quantity, sort_order
`

type CreateComboItemParams struct {
	ComboID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	SortOrder int32
}

func (q *Queries) CreateComboItem(ctx context.Context, arg CreateComboItemParams) (ComboItem, error) {
	row := q.db.QueryRow(ctx, createComboItem, arg.ComboID, arg.ProductID, arg.Quantity, arg.SortOrder)
	var ci ComboItem
	err := row.Scan(&ci.ID, &ci.ComboID, &ci.ProductID, &ci.Quantity, &ci.SortOrder)
	return ci, err
}

const deleteComboItem = `
DELETE FROM combo_items WHERE id = $1 AND combo_id = $2
`

type DeleteComboItemParams struct {
	ID      uuid.UUID
	ComboID uuid.UUID
}

func (q *Queries) DeleteComboItem(ctx context.Context, arg DeleteComboItemParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteComboItem, arg.ID, arg.ComboID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.Title, &p.Slug, &p.Price,
		&p.Stock, &p.IsCombo, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProducts(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Title, &p.Slug, &p.Price,
			&p.Stock, &p.IsCombo, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
