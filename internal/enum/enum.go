package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending        = "pending"
	OrderStatusProcessing     = "processing"
	OrderStatusReady          = "ready"
	OrderStatusAssignedToShip = "assigned_to_ship"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusConsumed       = "consumed"
	OrderStatusCancelled      = "cancelled"
)

const (
	OrderItemStatusPending   = "pending"
	OrderItemStatusProcess   = "process"
	OrderItemStatusReady     = "ready"
	OrderItemStatusCancelled = "cancelled"
)

const (
	PlaceStatusAvailable = "available"
	PlaceStatusPending   = "pending"
	PlaceStatusConfirmed = "confirmed"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin    = "admin"
	UserRoleCustomer = "customer"
)

const (
	StaffRoleOwner     = "owner"
	StaffRoleManager   = "manager"
	StaffRoleReception = "reception"
	StaffRoleWaiter    = "waiter"
	StaffRoleKitchen   = "kitchen"
	StaffRoleDelivery  = "delivery"
	StaffRoleCashier   = "cashier"
)

// StaffRoles is the recognized functional-role set for business rosters.
var StaffRoles = []string{
	StaffRoleOwner,
	StaffRoleManager,
	StaffRoleReception,
	StaffRoleWaiter,
	StaffRoleKitchen,
	StaffRoleDelivery,
	StaffRoleCashier,
}

const (
	DeliveryMethodDelivery = "delivery"
	DeliveryMethodPickup   = "pickup"
	DeliveryMethodHere     = "here"
	DeliveryMethodToGo     = "togo"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCard          = "card"
	PaymentMethodCash          = "cash"
	PaymentMethodPickupPayment = "pickup_payment"
)
