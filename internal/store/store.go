// Package store holds the persistent entities of the delivery app and the
// Store contract its two implementations (in-memory, Postgres) satisfy.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/entrega-local/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by Store implementations.
var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")

	// ErrStatusConflict means the order's status changed between the
	// caller's read and its compare-and-swap write.
	ErrStatusConflict = errors.New("order status changed")
)

// OrderItem is a line of an order. Name and UnitPrice are snapshotted from
// the menu at order time and never re-read from the live catalog.
type OrderItem struct {
	MenuItemID string
	Name       string
	Quantity   int32
	UnitPrice  decimal.Decimal
}

// Order is the order record. Status is the only field that changes after
// creation.
type Order struct {
	ID             string
	Items          []OrderItem
	Total          decimal.Decimal
	CustomerName   string
	Address        string
	AddressNumber  string
	CEP            string
	ReferencePoint string
	PaymentMethod  enum.PaymentMethod
	ChangeFor      decimal.NullDecimal // cash orders only
	Status         enum.OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MenuItem is a sellable product.
type MenuItem struct {
	ID          string
	Name        string
	Description string
	Category    string
	ImageURL    string
	Price       decimal.Decimal
}

// Driver is a delivery-driver account.
type Driver struct {
	ID             string
	Name           string
	HashedPassword string
	Active         bool
}

// ListOrdersParams filters ListOrders. An empty Statuses slice means all.
type ListOrdersParams struct {
	Statuses []enum.OrderStatus
}

// Store is the durable state keyed by entity id. All methods return copies;
// mutating a returned value never affects stored state.
type Store interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error)
	// UpdateOrderStatus replaces the status only if it still equals expect.
	// Returns ErrNotFound for unknown ids and ErrStatusConflict when the
	// stored status no longer matches expect.
	UpdateOrderStatus(ctx context.Context, id string, expect, next enum.OrderStatus) (Order, error)

	ListMenu(ctx context.Context) ([]MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (MenuItem, error)
	CreateMenuItem(ctx context.Context, m MenuItem) error
	UpdateMenuItem(ctx context.Context, m MenuItem) error
	DeleteMenuItem(ctx context.Context, id string) error

	GetDriver(ctx context.Context, id string) (Driver, error)
	ListDrivers(ctx context.Context) ([]Driver, error)
	CreateDriver(ctx context.Context, d Driver) error
	UpdateDriver(ctx context.Context, d Driver) error
}
