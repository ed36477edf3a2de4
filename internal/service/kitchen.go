package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/enum"
)

// KitchenStore defines the DB methods used for the kitchen queue.
// Satisfied by *database.Queries.
type KitchenStore interface {
	AccessStore
	GetBusiness(ctx context.Context, id uuid.UUID) (database.Business, error)
	ListKitchenItems(ctx context.Context, arg database.ListKitchenItemsParams) ([]database.KitchenItemRow, error)
}

// KitchenService projects open order lines into the queue kitchen screens
// render.
type KitchenService struct {
	store KitchenStore
}

func NewKitchenService(store KitchenStore) *KitchenService {
	return &KitchenService{store: store}
}

// KitchenLine is one order line on the kitchen screen.
type KitchenLine struct {
	ItemID         uuid.UUID `json:"itemId"`
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	Quantity       int32     `json:"quantity"`
	Notes          string    `json:"notes,omitempty"`
	DeliveryMethod string    `json:"deliveryMethod"`
	CreatedAt      time.Time `json:"createdAt"`
}

// KitchenProductGroup batches lines of the same product so the kitchen can
// cook them together.
type KitchenProductGroup struct {
	ProductID uuid.UUID     `json:"productId"`
	Title     string        `json:"title"`
	Lines     []KitchenLine `json:"lines"`
}

// KitchenPlaceGroup is one station of the queue: a place for dine-in
// orders, or a delivery method bucket for everything else.
type KitchenPlaceGroup struct {
	PlaceID  *uuid.UUID            `json:"placeId,omitempty"`
	Label    string                `json:"label"`
	Products []KitchenProductGroup `json:"products"`
}

// Queue returns the kitchen queue of a business for one item status
// (pending by default). Staff only.
func (s *KitchenService) Queue(ctx context.Context, actor Actor, businessID uuid.UUID, itemStatus string) ([]KitchenPlaceGroup, error) {
	if itemStatus == "" {
		itemStatus = enum.OrderItemStatusPending
	}
	if !isOrderItemStatus(itemStatus) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, itemStatus)
	}

	business, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	access, err := businessAccess(ctx, s.store, business, actor)
	if err != nil {
		return nil, err
	}
	if !access.Allowed() {
		return nil, ErrAccessDenied
	}

	rows, err := s.store.ListKitchenItems(ctx, database.ListKitchenItemsParams{
		BusinessID: businessID,
		ItemStatus: itemStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("list kitchen items: %w", err)
	}
	return ProjectKitchenQueue(rows), nil
}

// ProjectKitchenQueue orders open lines for the kitchen. Dine-in lines come
// first because those customers are waiting at a table, then everything
// else, oldest first. Lines are grouped by place (or delivery method when
// there is no place) and by product within each group. The projection is
// deterministic: equal timestamps fall back to item id.
func ProjectKitchenQueue(rows []database.KitchenItemRow) []KitchenPlaceGroup {
	sorted := make([]database.KitchenItemRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := kitchenPriority(sorted[i]), kitchenPriority(sorted[j])
		if pi != pj {
			return pi < pj
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ItemID.String() < sorted[j].ItemID.String()
	})

	var groups []KitchenPlaceGroup
	groupIndex := make(map[string]int)
	productIndex := make(map[string]map[uuid.UUID]int)

	for _, row := range sorted {
		key, label, placeID := kitchenGroupKey(row)
		gi, ok := groupIndex[key]
		if !ok {
			gi = len(groups)
			groupIndex[key] = gi
			groups = append(groups, KitchenPlaceGroup{PlaceID: placeID, Label: label})
			productIndex[key] = make(map[uuid.UUID]int)
		}
		pi, ok := productIndex[key][row.ProductID]
		if !ok {
			pi = len(groups[gi].Products)
			productIndex[key][row.ProductID] = pi
			groups[gi].Products = append(groups[gi].Products, KitchenProductGroup{
				ProductID: row.ProductID,
				Title:     row.ProductTitle,
			})
		}
		groups[gi].Products[pi].Lines = append(groups[gi].Products[pi].Lines, KitchenLine{
			ItemID:         row.ItemID,
			OrderID:        row.OrderID,
			OrderNumber:    row.OrderNumber,
			Quantity:       row.Quantity,
			Notes:          row.Notes.String,
			DeliveryMethod: row.DeliveryMethod,
			CreatedAt:      row.CreatedAt,
		})
	}
	return groups
}

// kitchenPriority ranks dine-in lines ahead of everything else.
func kitchenPriority(row database.KitchenItemRow) int {
	if row.DeliveryMethod == enum.DeliveryMethodHere {
		return 0
	}
	return 1
}

func kitchenGroupKey(row database.KitchenItemRow) (key, label string, placeID *uuid.UUID) {
	if row.PlaceID.Valid {
		id := uuid.UUID(row.PlaceID.Bytes)
		label := row.PlaceName.String
		if label == "" {
			label = id.String()
		}
		return "place:" + id.String(), label, &id
	}
	return "method:" + row.DeliveryMethod, row.DeliveryMethod, nil
}
