package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/entrega-local/api/internal/enum"
	"github.com/entrega-local/api/internal/store"
	"github.com/shopspring/decimal"
)

var testPixConfig = PixConfig{
	Key:        "abc@bank",
	HolderName: "Entrega Local",
	City:       "SAO PAULO",
}

func newTestService(t *testing.T) (*OrderService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	items := []store.MenuItem{
		{ID: "burger", Name: "Burger", Category: "Lanches", Price: decimal.NewFromFloat(28.90)},
		{ID: "fries", Name: "Fritas", Category: "Acompanhamentos", Price: decimal.NewFromFloat(14.50)},
		{ID: "soda", Name: "Refrigerante", Category: "Bebidas", Price: decimal.NewFromFloat(6.00)},
	}
	for _, m := range items {
		if err := mem.CreateMenuItem(ctx, m); err != nil {
			t.Fatalf("seed menu item %s: %v", m.ID, err)
		}
	}
	return NewOrderService(mem, testPixConfig), mem
}

func validRequest() PlaceOrderRequest {
	return PlaceOrderRequest{
		CustomerName:  "Maria",
		Address:       "Rua das Flores",
		AddressNumber: "123",
		PaymentMethod: "CASH",
		Items: []PlaceOrderItem{
			{MenuItemID: "burger", Quantity: 2},
			{MenuItemID: "soda", Quantity: 1},
		},
	}
}

// --- PlaceOrder ---

func TestPlaceOrderComputesTotalFromMenuPrices(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// 2 x 28.90 + 1 x 6.00
	want := decimal.NewFromFloat(63.80)
	if !result.Order.Total.Equal(want) {
		t.Errorf("total: got %s, want %s", result.Order.Total, want)
	}
	if result.Order.Status != enum.OrderStatusPending {
		t.Errorf("status: got %s, want PENDING", result.Order.Status)
	}
	if !strings.HasPrefix(result.Order.ID, "EL-") {
		t.Errorf("order id %q missing EL- prefix", result.Order.ID)
	}
	if result.PixPayload != "" {
		t.Error("cash order should not carry a pix payload")
	}
}

func TestPlaceOrderSnapshotsPrices(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	result, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// Reprice the menu after the order was admitted.
	if err := mem.UpdateMenuItem(ctx, store.MenuItem{
		ID: "burger", Name: "Burger", Category: "Lanches", Price: decimal.NewFromFloat(99.00),
	}); err != nil {
		t.Fatalf("UpdateMenuItem: %v", err)
	}

	got, err := svc.Get(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Items[0].UnitPrice.Equal(decimal.NewFromFloat(28.90)) {
		t.Errorf("unit price not snapshotted: got %s", got.Items[0].UnitPrice)
	}
	if !got.Total.Equal(decimal.NewFromFloat(63.80)) {
		t.Errorf("total changed after reprice: got %s", got.Total)
	}
}

func TestPlaceOrderPixPayload(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.PaymentMethod = "PIX"
	result, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if result.PixPayload == "" {
		t.Fatal("pix order should carry a payload")
	}
	if !strings.HasPrefix(result.PixPayload, "000201") {
		t.Errorf("payload missing format indicator: %q", result.PixPayload)
	}
	if !strings.Contains(result.PixPayload, "br.gov.bcb.pix") {
		t.Errorf("payload missing pix GUI: %q", result.PixPayload)
	}
	if !strings.Contains(result.PixPayload, "540563.80") {
		t.Errorf("payload missing amount field: %q", result.PixPayload)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*PlaceOrderRequest)
		wantErr error
	}{
		{
			name:    "missing customer name",
			mutate:  func(r *PlaceOrderRequest) { r.CustomerName = "  " },
			wantErr: ErrCustomerNameRequired,
		},
		{
			name:    "missing address",
			mutate:  func(r *PlaceOrderRequest) { r.Address = "" },
			wantErr: ErrAddressRequired,
		},
		{
			name:    "empty cart",
			mutate:  func(r *PlaceOrderRequest) { r.Items = nil },
			wantErr: ErrEmptyItems,
		},
		{
			name:    "unknown payment method",
			mutate:  func(r *PlaceOrderRequest) { r.PaymentMethod = "CHEQUE" },
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name:    "zero quantity",
			mutate:  func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			mutate:  func(r *PlaceOrderRequest) { r.Items[0].Quantity = -1 },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "unknown menu item",
			mutate:  func(r *PlaceOrderRequest) { r.Items[0].MenuItemID = "ghost" },
			wantErr: ErrMenuItemNotFound,
		},
		{
			name:    "malformed change",
			mutate:  func(r *PlaceOrderRequest) { r.ChangeFor = "abc" },
			wantErr: ErrInvalidChange,
		},
		{
			name:    "change below total",
			mutate:  func(r *PlaceOrderRequest) { r.ChangeFor = "10.00" },
			wantErr: ErrChangeTooSmall,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.PlaceOrder(ctx, req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPlaceOrderCashChange(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.ChangeFor = "100.00"
	result, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !result.Order.ChangeFor.Valid {
		t.Fatal("change_for should be set")
	}
	if !result.Order.ChangeFor.Decimal.Equal(decimal.NewFromFloat(100)) {
		t.Errorf("change_for: got %s", result.Order.ChangeFor.Decimal)
	}
}

func TestPlaceOrderChangeIgnoredForNonCash(t *testing.T) {
	svc, _ := newTestService(t)

	req := validRequest()
	req.PaymentMethod = "CREDIT"
	req.ChangeFor = "100.00"
	result, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Order.ChangeFor.Valid {
		t.Error("change_for should be ignored for card payments")
	}
}

// --- Transition ---

// placeAt admits an order and walks it to the given status.
func placeAt(t *testing.T, svc *OrderService, status enum.OrderStatus) string {
	t.Helper()
	ctx := context.Background()
	result, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	id := result.Order.ID

	chain := []enum.OrderStatus{
		enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusDelivering, enum.OrderStatusDelivered,
	}
	for _, next := range chain {
		if result.Order.Status == status {
			break
		}
		if status == enum.OrderStatusCancelled {
			if _, err := svc.Transition(ctx, id, enum.OrderStatusCancelled); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			result.Order.Status = enum.OrderStatusCancelled
			break
		}
		updated, err := svc.Transition(ctx, id, next)
		if err != nil {
			t.Fatalf("walk to %s: %v", next, err)
		}
		result.Order.Status = updated.Status
	}
	if result.Order.Status != status {
		t.Fatalf("could not walk order to %s, stuck at %s", status, result.Order.Status)
	}
	return id
}

func TestTransitionMatrix(t *testing.T) {
	all := []enum.OrderStatus{
		enum.OrderStatusPending, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusDelivering, enum.OrderStatusDelivered, enum.OrderStatusCancelled,
	}
	legal := map[enum.OrderStatus]map[enum.OrderStatus]bool{
		enum.OrderStatusPending:    {enum.OrderStatusPreparing: true, enum.OrderStatusCancelled: true},
		enum.OrderStatusPreparing:  {enum.OrderStatusReady: true, enum.OrderStatusCancelled: true},
		enum.OrderStatusReady:      {enum.OrderStatusDelivering: true, enum.OrderStatusCancelled: true},
		enum.OrderStatusDelivering: {enum.OrderStatusDelivered: true, enum.OrderStatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				svc, _ := newTestService(t)
				id := placeAt(t, svc, from)

				updated, err := svc.Transition(context.Background(), id, to)
				if legal[from][to] {
					if err != nil {
						t.Fatalf("legal transition rejected: %v", err)
					}
					if updated.Status != to {
						t.Fatalf("status: got %s, want %s", updated.Status, to)
					}
					return
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("illegal transition: got %v, want ErrInvalidTransition", err)
				}
			})
		}
	}
}

func TestTransitionTerminalStatusLocked(t *testing.T) {
	for _, terminal := range []enum.OrderStatus{enum.OrderStatusDelivered, enum.OrderStatusCancelled} {
		svc, _ := newTestService(t)
		id := placeAt(t, svc, terminal)

		_, err := svc.Transition(context.Background(), id, enum.OrderStatusPending)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", terminal, err)
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(t)
	id := placeAt(t, svc, enum.OrderStatusPending)

	_, err := svc.Transition(context.Background(), id, enum.OrderStatus("SHIPPED"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestTransitionOrderNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Transition(context.Background(), "missing", enum.OrderStatusPreparing)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// conflictingStore fails the first CAS attempts to exercise the retry loop.
type conflictingStore struct {
	*store.Memory
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) UpdateOrderStatus(ctx context.Context, id string, expect, next enum.OrderStatus) (store.Order, error) {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return store.Order{}, store.ErrStatusConflict
	}
	return s.Memory.UpdateOrderStatus(ctx, id, expect, next)
}

func TestTransitionRetriesOnConflict(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.CreateMenuItem(ctx, store.MenuItem{ID: "burger", Name: "Burger", Price: decimal.NewFromFloat(28.90)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cs := &conflictingStore{Memory: mem, conflicts: 2}
	svc := NewOrderService(cs, testPixConfig)

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
		CustomerName:  "Maria",
		Address:       "Rua A",
		PaymentMethod: "CASH",
		Items:         []PlaceOrderItem{{MenuItemID: "burger", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	updated, err := svc.Transition(ctx, result.Order.ID, enum.OrderStatusPreparing)
	if err != nil {
		t.Fatalf("Transition should succeed after retries: %v", err)
	}
	if updated.Status != enum.OrderStatusPreparing {
		t.Errorf("status: got %s", updated.Status)
	}
}

func TestTransitionGivesUpAfterMaxRetries(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.CreateMenuItem(ctx, store.MenuItem{ID: "burger", Name: "Burger", Price: decimal.NewFromFloat(28.90)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cs := &conflictingStore{Memory: mem, conflicts: maxTransitionRetries + 1}
	svc := NewOrderService(cs, testPixConfig)

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
		CustomerName:  "Maria",
		Address:       "Rua A",
		PaymentMethod: "CASH",
		Items:         []PlaceOrderItem{{MenuItemID: "burger", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	_, err = svc.Transition(ctx, result.Order.ID, enum.OrderStatusPreparing)
	if !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict after exhausted retries, got %v", err)
	}
}

func TestConcurrentReadsSeeConsistentSnapshots(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := placeAt(t, svc, enum.OrderStatusPending)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers poll while the writer walks the chain.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				o, err := svc.Get(ctx, id)
				if err != nil {
					t.Errorf("Get: %v", err)
					return
				}
				switch o.Status {
				case enum.OrderStatusPending, enum.OrderStatusPreparing,
					enum.OrderStatusReady, enum.OrderStatusDelivering,
					enum.OrderStatusDelivered:
				default:
					t.Errorf("observed impossible status %q", o.Status)
					return
				}
			}
		}()
	}

	chain := []enum.OrderStatus{
		enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusDelivering, enum.OrderStatusDelivered,
	}
	for _, next := range chain {
		if _, err := svc.Transition(ctx, id, next); err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	placeAt(t, svc, enum.OrderStatusPending)
	placeAt(t, svc, enum.OrderStatusReady)
	placeAt(t, svc, enum.OrderStatusDelivering)

	ready, err := svc.List(ctx, enum.OrderStatusReady, enum.OrderStatusDelivering)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ready) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(ready))
	}

	all, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}
}
