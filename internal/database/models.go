package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	UserName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

type Business struct {
	ID          uuid.UUID
	Name        string
	OwnerID     uuid.UUID
	Email       string
	PhoneNumber string
	Address     string
	City        string
	State       string
	Country     string
	PostalCode  string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BusinessStaff struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	Roles      []string
	IsActive   bool
	AddedAt    time.Time
}

// BusinessHour is one opening range for one weekday. Day 0 is Sunday.
// StartTime/EndTime are "HH:MM"; a range with StartTime > EndTime wraps
// past midnight.
type BusinessHour struct {
	BusinessID uuid.UUID
	Day        int32
	StartTime  string
	EndTime    string
}

type Product struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Title      string
	Slug       string
	Price      pgtype.Numeric
	Stock      int32
	IsCombo    bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ComboItem struct {
	ID        uuid.UUID
	ComboID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	SortOrder int32
}

type Counter struct {
	BusinessID    uuid.UUID
	SequenceValue int64
}

type Order struct {
	ID                 uuid.UUID
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
	DeliveryManID      pgtype.UUID
	DeliveryAssignedAt pgtype.Timestamptz
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
	PaymentRef         pgtype.Text
	PaymentProvider    pgtype.Text
	PaidAt             pgtype.Timestamptz
	AmountGiven        pgtype.Numeric
	ChangeDue          pgtype.Numeric
	Notes              pgtype.Text
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type OrderItem struct {
	ID               uuid.UUID
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
	ReadyAt          pgtype.Timestamptz
	CreatedAt        time.Time
}

type OrderItemStatusLog struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	Status      string
	SetBy       uuid.UUID
	SetAt       time.Time
}

type Place struct {
	ID          uuid.UUID
	BusinessID  uuid.UUID
	Name        string
	Status      string
	ConfirmedBy pgtype.UUID
	ConfirmedAt pgtype.Timestamptz
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PlaceOccupant struct {
	PlaceID  uuid.UUID
	UserID   uuid.UUID
	SeatedAt time.Time
}
