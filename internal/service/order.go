package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/pix"
	"github.com/entrega-local/api/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// A transition can lose a compare-and-swap race with another staff client;
// each retry re-reads and re-validates against the fresh status.
const maxTransitionRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrMenuItemNotFound     = errors.New("menu item not found")
	ErrCustomerNameRequired = errors.New("customer_name is required")
	ErrAddressRequired      = errors.New("address is required")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidChange        = errors.New("invalid change_for")
	ErrChangeTooSmall       = errors.New("change_for must be >= order total")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// PixConfig is the static receiving-account configuration for Pix charges.
type PixConfig struct {
	Key        string
	HolderName string
	City       string
}

// PlaceOrderRequest is the validated checkout input.
type PlaceOrderRequest struct {
	CustomerName   string
	Address        string
	AddressNumber  string
	CEP            string
	ReferencePoint string
	PaymentMethod  string
	ChangeFor      string // cash orders: bill the customer will pay with
	Items          []PlaceOrderItem
}

// PlaceOrderItem is a single cart line.
type PlaceOrderItem struct {
	MenuItemID string
	Quantity   int32
}

// PlaceOrderResult is the admitted order plus the derived Pix payload for
// instant-transfer orders. The payload is never stored.
type PlaceOrderResult struct {
	Order      store.Order
	PixPayload string
}

// OrderService owns the order lifecycle: it admits orders in Pending and is
// the only writer of status transitions.
type OrderService struct {
	store store.Store
	pix   PixConfig
}

// NewOrderService creates a new OrderService.
func NewOrderService(st store.Store, pixCfg PixConfig) *OrderService {
	return &OrderService{store: st, pix: pixCfg}
}

// PlaceOrder validates the checkout request, snapshots menu prices, and
// admits the order with status Pending. For Pix orders it also encodes the
// payment payload, exactly once, from the order total and id.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, ErrCustomerNameRequired
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, ErrAddressRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	method := enum.PaymentMethod(req.PaymentMethod)
	if !isValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	// Snapshot name and unit price per line; the stored order never re-reads
	// the live menu.
	total := decimal.Zero
	items := make([]store.OrderItem, 0, len(req.Items))
	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		mi, err := s.store.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}
		items = append(items, store.OrderItem{
			MenuItemID: mi.ID,
			Name:       mi.Name,
			Quantity:   line.Quantity,
			UnitPrice:  mi.Price,
		})
		total = total.Add(mi.Price.Mul(decimal.NewFromInt32(line.Quantity)))
	}

	var changeFor decimal.NullDecimal
	if method == enum.PaymentMethodCash && req.ChangeFor != "" {
		cf, err := decimal.NewFromString(req.ChangeFor)
		if err != nil {
			return nil, ErrInvalidChange
		}
		if cf.LessThan(total) {
			return nil, ErrChangeTooSmall
		}
		changeFor = decimal.NewNullDecimal(cf)
	}

	now := time.Now()
	order := store.Order{
		ID:             newOrderID(),
		Items:          items,
		Total:          total,
		CustomerName:   req.CustomerName,
		Address:        req.Address,
		AddressNumber:  req.AddressNumber,
		CEP:            req.CEP,
		ReferencePoint: req.ReferencePoint,
		PaymentMethod:  method,
		ChangeFor:      changeFor,
		Status:         enum.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := &PlaceOrderResult{Order: order}
	if method == enum.PaymentMethodPix {
		payload, err := pix.Encode(s.pix.Key, s.pix.HolderName, s.pix.City, total, order.ID)
		if err != nil {
			return nil, fmt.Errorf("encode pix payload: %w", err)
		}
		result.PixPayload = payload
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	result.Order = order
	return result, nil
}

// Get returns the current snapshot of an order.
func (s *OrderService) Get(ctx context.Context, id string) (store.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// List returns all orders, optionally restricted to the given statuses.
// Role policy (which statuses a view may ask for) belongs to the caller.
func (s *OrderService) List(ctx context.Context, statuses ...enum.OrderStatus) ([]store.Order, error) {
	return s.store.ListOrders(ctx, store.ListOrdersParams{Statuses: statuses})
}

// Transition moves an order to next if that is legal from its current
// status. The swap is atomic: readers only ever observe the pre- or
// post-transition status.
func (s *OrderService) Transition(ctx context.Context, id string, next enum.OrderStatus) (store.Order, error) {
	if !isValidOrderStatus(next) {
		return store.Order{}, ErrInvalidStatus
	}

	var lastErr error
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		current, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return store.Order{}, err
		}
		if err := validateTransition(current.Status, next); err != nil {
			return store.Order{}, err
		}
		updated, err := s.store.UpdateOrderStatus(ctx, id, current.Status, next)
		if errors.Is(err, store.ErrStatusConflict) {
			lastErr = err
			continue
		}
		return updated, err
	}
	return store.Order{}, lastErr
}

// ── Transition table ──

// allowedTransitions: key is current status, value the statuses it may move
// to. Terminal statuses have no entry. The chain is forward-only with no
// skipping; Cancelled is reachable from any non-terminal status.
var allowedTransitions = map[enum.OrderStatus][]enum.OrderStatus{
	enum.OrderStatusPending:    {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing:  {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:      {enum.OrderStatusDelivering, enum.OrderStatusCancelled},
	enum.OrderStatusDelivering: {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
}

func validateTransition(current, next enum.OrderStatus) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, next)
}

// ── Helpers ──

func isValidPaymentMethod(pm enum.PaymentMethod) bool {
	switch pm {
	case enum.PaymentMethodPix, enum.PaymentMethodCash,
		enum.PaymentMethodCredit, enum.PaymentMethodDebit:
		return true
	}
	return false
}

func isValidOrderStatus(s enum.OrderStatus) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusPreparing,
		enum.OrderStatusReady, enum.OrderStatusDelivering,
		enum.OrderStatusDelivered, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// newOrderID returns a short human-quotable id like "EL-9F3A2C1B".
func newOrderID() string {
	u := uuid.New()
	return fmt.Sprintf("EL-%X", u[:4])
}
