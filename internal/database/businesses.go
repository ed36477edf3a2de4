package database

import (
	"context"

	"github.com/google/uuid"
)

const createBusiness = `
INSERT INTO businesses (name, owner_id, email, phone_number, address, city, state, country, postal_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, name, owner_id, email, phone_number, address, city, state, country, postal_code, is_active, created_at, updated_at
`

type CreateBusinessParams struct {
	Name        string
	OwnerID     uuid.UUID
	Email       string
	PhoneNumber string
	Address     string
	City        string
	State       string
	Country     string
	PostalCode  string
}

func (q *Queries) CreateBusiness(ctx context.Context, arg CreateBusinessParams) (Business, error) {
	row := q.db.QueryRow(ctx, createBusiness,
		arg.Name, arg.OwnerID, arg.Email, arg.PhoneNumber,
		arg.Address, arg.City, arg.State, arg.Country, arg.PostalCode)
	return scanBusiness(row)
}

const getBusiness = `
SELECT id, name, owner_id, email, phone_number, address, city, state, country, postal_code, is_active, created_at, updated_at
FROM businesses WHERE id = $1
`

func (q *Queries) GetBusiness(ctx context.Context, id uuid.UUID) (Business, error) {
	return scanBusiness(q.db.QueryRow(ctx, getBusiness, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusiness(row rowScanner) (Business, error) {
	var b Business
	err := row.Scan(&b.ID, &b.Name, &b.OwnerID, &b.Email, &b.PhoneNumber,
		&b.Address, &b.City, &b.State, &b.Country, &b.PostalCode,
		&b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const listBusinessStaff = `
SELECT business_id, user_id, roles, is_active, added_at
FROM business_staff WHERE business_id = $1
`

func (q *Queries) ListBusinessStaff(ctx context.Context, businessID uuid.UUID) ([]BusinessStaff, error) {
	rows, err := q.db.Query(ctx, listBusinessStaff, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var staff []BusinessStaff
	for rows.Next() {
		var s BusinessStaff
		if err := rows.Scan(&s.BusinessID, &s.UserID, &s.Roles, &s.IsActive, &s.AddedAt); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

const getBusinessStaff = `
SELECT business_id, user_id, roles, is_active, added_at
FROM business_staff WHERE business_id = $1 AND user_id = $2
`

type GetBusinessStaffParams struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
}

func (q *Queries) GetBusinessStaff(ctx context.Context, arg GetBusinessStaffParams) (BusinessStaff, error) {
	row := q.db.QueryRow(ctx, getBusinessStaff, arg.BusinessID, arg.UserID)
	var s BusinessStaff
	err := row.Scan(&s.BusinessID, &s.UserID, &s.Roles, &s.IsActive, &s.AddedAt)
	return s, err
}

const upsertBusinessStaff = `
INSERT INTO business_staff (business_id, user_id, roles, is_active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (business_id, user_id)
DO UPDATE SET roles = EXCLUDED.roles, is_active = EXCLUDED.is_active
RETURNING business_id, user_id, roles, is_active, added_at
`

type UpsertBusinessStaffParams struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	Roles      []string
	IsActive   bool
}

func (q *Queries) UpsertBusinessStaff(ctx context.Context, arg UpsertBusinessStaffParams) (BusinessStaff, error) {
	row := q.db.QueryRow(ctx, upsertBusinessStaff, arg.BusinessID, arg.UserID, arg.Roles, arg.IsActive)
	var s BusinessStaff
	err := row.Scan(&s.BusinessID, &s.UserID, &s.Roles, &s.IsActive, &s.AddedAt)
	return s, err
}

const listBusinessHours = `
SELECT business_id, day, start_time, end_time
FROM business_hours WHERE business_id = $1
ORDER BY day, start_time
`

func (q *Queries) ListBusinessHours(ctx context.Context, businessID uuid.UUID) ([]BusinessHour, error) {
	rows, err := q.db.Query(ctx, listBusinessHours, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hours []BusinessHour
	for rows.Next() {
		var h BusinessHour
		if err := rows.Scan(&h.BusinessID, &h.Day, &h.StartTime, &h.EndTime); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

const createBusinessHour = `
INSERT INTO business_hours (business_id, day, start_time, end_time)
VALUES ($1, $2, $3, $4)
RETURNING business_id, day, start_time, end_time
`

type CreateBusinessHourParams struct {
	BusinessID uuid.UUID
	Day        int32
	StartTime  string
	EndTime    string
}

func (q *Queries) CreateBusinessHour(ctx context.Context, arg CreateBusinessHourParams) (BusinessHour, error) {
	row := q.db.QueryRow(ctx, createBusinessHour, arg.BusinessID, arg.Day, arg.StartTime, arg.EndTime)
	var h BusinessHour
	err := row.Scan(&h.BusinessID, &h.Day, &h.StartTime, &h.EndTime)
	return h, err
}
