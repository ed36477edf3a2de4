package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const placeColumns = `id, business_id, name, status, confirmed_by, confirmed_at, created_at, updated_at`

func scanPlace(row rowScanner) (Place, error) {
	var p Place
	err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Status,
		&p.ConfirmedBy, &p.ConfirmedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const createPlace = `
INSERT INTO places (business_id, name)
VALUES ($1, $2)
RETURNING ` + placeColumns

type CreatePlaceParams struct {
	BusinessID uuid.UUID
	Name       string
}

func (q *Queries) CreatePlace(ctx context.Context, arg CreatePlaceParams) (Place, error) {
	return scanPlace(q.db.QueryRow(ctx, createPlace, arg.BusinessID, arg.Name))
}

const getPlace = `SELECT ` + placeColumns + ` FROM places WHERE id = $1`

func (q *Queries) GetPlace(ctx context.Context, id uuid.UUID) (Place, error) {
	return scanPlace(q.db.QueryRow(ctx, getPlace, id))
}

const listPlacesByBusiness = `SELECT ` + placeColumns + ` FROM places WHERE business_id = $1 ORDER BY name`

func (q *Queries) ListPlacesByBusiness(ctx context.Context, businessID uuid.UUID) ([]Place, error) {
	rows, err := q.db.Query(ctx, listPlacesByBusiness, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var places []Place
	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Status,
			&p.ConfirmedBy, &p.ConfirmedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

const markPlacePending = `
UPDATE places SET status = 'pending', updated_at = now()
WHERE id = $1
RETURNING ` + placeColumns

func (q *Queries) MarkPlacePending(ctx context.Context, id uuid.UUID) (Place, error) {
	return scanPlace(q.db.QueryRow(ctx, markPlacePending, id))
}

const confirmPlace = `
UPDATE places SET status = 'confirmed', confirmed_by = $2, confirmed_at = $3, updated_at = now()
WHERE id = $1
RETURNING ` + placeColumns

type ConfirmPlaceParams struct {
	ID          uuid.UUID
	ConfirmedBy pgtype.UUID
	ConfirmedAt pgtype.Timestamptz
}

func (q *Queries) ConfirmPlace(ctx context.Context, arg ConfirmPlaceParams) (Place, error) {
	return scanPlace(q.db.QueryRow(ctx, confirmPlace, arg.ID, arg.ConfirmedBy, arg.ConfirmedAt))
}

const releasePlace = `
UPDATE places SET status = 'available', confirmed_by = NULL, confirmed_at = NULL, updated_at = now()
WHERE id = $1
RETURNING ` + placeColumns

func (q *Queries) ReleasePlace(ctx context.Context, id uuid.UUID) (Place, error) {
	return scanPlace(q.db.QueryRow(ctx, releasePlace, id))
}

// addPlaceOccupant is idempotent: seating an already-seated user is a no-op.
const addPlaceOccupant = `
INSERT INTO place_occupants (place_id, user_id)
VALUES ($1, $2)
ON CONFLICT (place_id, user_id) DO NOTHING
`

type AddPlaceOccupantParams struct {
	PlaceID uuid.UUID
	UserID  uuid.UUID
}

func (q *Queries) AddPlaceOccupant(ctx context.Context, arg AddPlaceOccupantParams) error {
	_, err := q.db.Exec(ctx, addPlaceOccupant, arg.PlaceID, arg.UserID)
	return err
}

const listPlaceOccupants = `
SELECT user_id FROM place_occupants WHERE place_id = $1 ORDER BY seated_at
`

func (q *Queries) ListPlaceOccupants(ctx context.Context, placeID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listPlaceOccupants, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

const clearPlaceOccupants = `DELETE FROM place_occupants WHERE place_id = $1`

func (q *Queries) ClearPlaceOccupants(ctx context.Context, placeID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearPlaceOccupants, placeID)
	return err
}
