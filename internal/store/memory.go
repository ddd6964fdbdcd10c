package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/entrega-local/api/internal/enum"
)

// Memory is the default Store: a mutex-guarded map per entity. Reads hand out
// deep copies, so every caller sees an immutable snapshot and a concurrent
// status swap is never observable half-applied.
type Memory struct {
	mu      sync.RWMutex
	orders  map[string]Order
	menu    map[string]MenuItem
	drivers map[string]Driver
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:  make(map[string]Order),
		menu:    make(map[string]MenuItem),
		drivers: make(map[string]Driver),
	}
}

var _ Store = (*Memory)(nil)

// ── Orders ──

func (s *Memory) CreateOrder(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrDuplicateID
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Memory) GetOrder(_ context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Memory) ListOrders(_ context.Context, arg ListOrdersParams) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if len(arg.Statuses) > 0 && !statusIn(o.Status, arg.Statuses) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	// Newest first, matching the dashboard expectation.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Memory) UpdateOrderStatus(_ context.Context, id string, expect, next enum.OrderStatus) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Status != expect {
		return Order{}, ErrStatusConflict
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	s.orders[id] = o
	return cloneOrder(o), nil
}

// ── Menu ──

func (s *Memory) ListMenu(_ context.Context) ([]MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MenuItem, 0, len(s.menu))
	for _, m := range s.menu {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category == out[j].Category {
			return out[i].Name < out[j].Name
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Memory) GetMenuItem(_ context.Context, id string) (MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.menu[id]
	if !ok {
		return MenuItem{}, ErrNotFound
	}
	return m, nil
}

func (s *Memory) CreateMenuItem(_ context.Context, m MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menu[m.ID]; ok {
		return ErrDuplicateID
	}
	s.menu[m.ID] = m
	return nil
}

func (s *Memory) UpdateMenuItem(_ context.Context, m MenuItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menu[m.ID]; !ok {
		return ErrNotFound
	}
	s.menu[m.ID] = m
	return nil
}

func (s *Memory) DeleteMenuItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.menu[id]; !ok {
		return ErrNotFound
	}
	delete(s.menu, id)
	return nil
}

// ── Drivers ──

func (s *Memory) GetDriver(_ context.Context, id string) (Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return Driver{}, ErrNotFound
	}
	return d, nil
}

func (s *Memory) ListDrivers(_ context.Context) ([]Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) CreateDriver(_ context.Context, d Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; ok {
		return ErrDuplicateID
	}
	s.drivers[d.ID] = d
	return nil
}

func (s *Memory) UpdateDriver(_ context.Context, d Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drivers[d.ID]; !ok {
		return ErrNotFound
	}
	s.drivers[d.ID] = d
	return nil
}

// ── Helpers ──

func cloneOrder(o Order) Order {
	items := make([]OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

func statusIn(s enum.OrderStatus, set []enum.OrderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
