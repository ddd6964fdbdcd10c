package enum

// ── Order status state machine ──

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPreparing  OrderStatus = "PREPARING"
	OrderStatusReady      OrderStatus = "READY"
	OrderStatusDelivering OrderStatus = "DELIVERING"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// ── Payment methods ──

type PaymentMethod string

const (
	PaymentMethodPix    PaymentMethod = "PIX"
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCredit PaymentMethod = "CREDIT"
	PaymentMethodDebit  PaymentMethod = "DEBIT"
)

// ── Roles ──

const (
	RoleAdmin  = "ADMIN"
	RoleDriver = "DRIVER"
)
