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
	ErrPlaceNotAvailable = errors.New("place is not available")
	ErrPlaceNotPending   = errors.New("place has no pending selection")
)

// PlaceStore defines the DB methods used by place coordination. Satisfied
// by *database.Queries.
type PlaceStore interface {
	AccessStore
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	GetPlace(ctx context.Context, id uuid.UUID) (database.Place, error)
	CreatePlace(ctx context.Context, arg database.CreatePlaceParams) (database.Place, error)
	ListPlacesByBusiness(ctx context.Context, businessID uuid.UUID) ([]database.Place, error)
	MarkPlacePending(ctx context.Context, id uuid.UUID) (database.Place, error)
	ConfirmPlace(ctx context.Context, arg database.ConfirmPlaceParams) (database.Place, error)
	ReleasePlace(ctx context.Context, id uuid.UUID) (database.Place, error)
	AddPlaceOccupant(ctx context.Context, arg database.AddPlaceOccupantParams) error
	ListPlaceOccupants(ctx context.Context, placeID uuid.UUID) ([]uuid.UUID, error)
	ClearPlaceOccupants(ctx context.Context, placeID uuid.UUID) error
	MovePendingHereOrdersToProcessing(ctx context.Context, placeID uuid.UUID) (int64, error)
}

type NewPlaceStore func(db database.DBTX) PlaceStore

// PlaceService coordinates physical place occupancy: customers select a
// place, staff confirm or release it.
type PlaceService struct {
	pool     TxBeginner
	newStore NewPlaceStore
	now      func() time.Time
}

func NewPlaceService(pool TxBeginner, newStore NewPlaceStore) *PlaceService {
	return &PlaceService{pool: pool, newStore: newStore, now: time.Now}
}

// Create adds a place to a business. Owner, manager, or admin only.
func (s *PlaceService) Create(ctx context.Context, actor Actor, businessID uuid.UUID, name string) (database.Place, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Place{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	business, err := store.GetBusiness(ctx, businessID)
	if err != nil {
		return database.Place{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, store, business, actor)
	if err != nil {
		return database.Place{}, err
	}
	if !access.HasAnyRole(enum.StaffRoleManager) {
		return database.Place{}, ErrAccessDenied
	}

	place, err := store.CreatePlace(ctx, database.CreatePlaceParams{BusinessID: businessID, Name: name})
	if err != nil {
		return database.Place{}, fmt.Errorf("create place: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Place{}, fmt.Errorf("commit tx: %w", err)
	}
	return place, nil
}

// List returns all places of a business with their current status.
func (s *PlaceService) List(ctx context.Context, store PlaceStore, businessID uuid.UUID) ([]database.Place, error) {
	return store.ListPlacesByBusiness(ctx, businessID)
}

// Select marks a place as pending for the calling customer and seats them
// at it. Selecting an already-pending place seats an additional occupant;
// selecting the same place twice is a no-op. A confirmed place cannot be
// selected.
func (s *PlaceService) Select(ctx context.Context, actor Actor, placeID uuid.UUID) (database.Place, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Place{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	place, err := store.GetPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Place{}, ErrPlaceNotFound
		}
		return database.Place{}, fmt.Errorf("get place: %w", err)
	}
	if place.Status == enum.PlaceStatusConfirmed {
		return database.Place{}, ErrPlaceNotAvailable
	}

	if err := store.AddPlaceOccupant(ctx, database.AddPlaceOccupantParams{
		PlaceID: place.ID,
		UserID:  actor.ID,
	}); err != nil {
		return database.Place{}, fmt.Errorf("add place occupant: %w", err)
	}
	if place.Status == enum.PlaceStatusAvailable {
		place, err = store.MarkPlacePending(ctx, place.ID)
		if err != nil {
			return database.Place{}, fmt.Errorf("mark place pending: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Place{}, fmt.Errorf("commit tx: %w", err)
	}
	return place, nil
}

// ConfirmResult is the outcome of a place confirmation.
type ConfirmResult struct {
	Place       database.Place
	MovedOrders int64
}

// Confirm locks in a pending place and cascades: every pending dine-in
// order on the place moves to processing in the same transaction.
func (s *PlaceService) Confirm(ctx context.Context, actor Actor, placeID uuid.UUID) (ConfirmResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	place, err := s.staffPlace(ctx, store, actor, placeID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if place.Status != enum.PlaceStatusPending {
		return ConfirmResult{}, ErrPlaceNotPending
	}

	confirmed, err := store.ConfirmPlace(ctx, database.ConfirmPlaceParams{
		ID:          place.ID,
		ConfirmedBy: pgtype.UUID{Bytes: actor.ID, Valid: true},
		ConfirmedAt: pgtype.Timestamptz{Time: s.now(), Valid: true},
	})
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("confirm place: %w", err)
	}
	moved, err := store.MovePendingHereOrdersToProcessing(ctx, place.ID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("move pending orders: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ConfirmResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return ConfirmResult{Place: confirmed, MovedOrders: moved}, nil
}

// Release frees a place and clears its occupants regardless of outstanding
// orders. Staff use it when a table is abandoned.
func (s *PlaceService) Release(ctx context.Context, actor Actor, placeID uuid.UUID) (database.Place, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Place{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := s.newStore(tx)
	if _, err := s.staffPlace(ctx, store, actor, placeID); err != nil {
		return database.Place{}, err
	}
	released, err := store.ReleasePlace(ctx, placeID)
	if err != nil {
		return database.Place{}, fmt.Errorf("release place: %w", err)
	}
	if err := store.ClearPlaceOccupants(ctx, placeID); err != nil {
		return database.Place{}, fmt.Errorf("clear place occupants: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Place{}, fmt.Errorf("commit tx: %w", err)
	}
	return released, nil
}

// staffPlace loads a place and verifies the caller works the business.
func (s *PlaceService) staffPlace(ctx context.Context, store PlaceStore, actor Actor, placeID uuid.UUID) (database.Place, error) {
	place, err := store.GetPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Place{}, ErrPlaceNotFound
		}
		return database.Place{}, fmt.Errorf("get place: %w", err)
	}
	business, err := store.GetBusiness(ctx, place.BusinessID)
	if err != nil {
		return database.Place{}, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, store, business, actor)
	if err != nil {
		return database.Place{}, err
	}
	if !access.Allowed() {
		return database.Place{}, ErrAccessDenied
	}
	return place, nil
}

// placeSettlementStore is the slice of store methods needed to auto-release
// a place once every tab on it is settled.
type placeSettlementStore interface {
	CountUnpaidHereOrders(ctx context.Context, placeID uuid.UUID) (int64, error)
	ReleasePlace(ctx context.Context, id uuid.UUID) (database.Place, error)
	ClearPlaceOccupants(ctx context.Context, placeID uuid.UUID) error
}

// releasePlaceIfSettled frees the place when no unpaid dine-in orders
// remain on it. Called inside the payment transaction.
func releasePlaceIfSettled(ctx context.Context, store placeSettlementStore, placeID uuid.UUID) (bool, error) {
	unpaid, err := store.CountUnpaidHereOrders(ctx, placeID)
	if err != nil {
		return false, fmt.Errorf("count unpaid here orders: %w", err)
	}
	if unpaid > 0 {
		return false, nil
	}
	if _, err := store.ReleasePlace(ctx, placeID); err != nil {
		return false, fmt.Errorf("release place: %w", err)
	}
	if err := store.ClearPlaceOccupants(ctx, placeID); err != nil {
		return false, fmt.Errorf("clear place occupants: %w", err)
	}
	return true, nil
}
