package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skinversity/storefront-go/internal/order/domain"
)

// MemoryTable keeps orders in process memory. It has no transactions, so the
// repository falls back to compensating deletes on top of it.
type MemoryTable struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	items  map[string][]domain.OrderItem

	Now func() time.Time
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		orders: make(map[string]domain.Order),
		items:  make(map[string][]domain.OrderItem),
		Now:    time.Now,
	}
}

func (m *MemoryTable) InsertOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	o.ID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now
	m.orders[o.ID] = o
	return o, nil
}

func (m *MemoryTable) InsertItem(_ context.Context, it domain.OrderItem) (domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[it.OrderID]; !ok {
		return domain.OrderItem{}, domain.ErrNotFound
	}
	it.ID = uuid.NewString()
	it.CreatedAt = m.Now().UTC()
	m.items[it.OrderID] = append(m.items[it.OrderID], it)
	return it, nil
}

func (m *MemoryTable) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.orders, id)
	delete(m.items, id)
	return nil
}

func (m *MemoryTable) SelectOrders(_ context.Context, f Filter) ([]domain.OrderWithItems, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.OrderWithItems
	for id, o := range m.orders {
		if f.OrderID != "" && id != f.OrderID {
			continue
		}
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, domain.OrderWithItems{
			Order: o,
			Items: append([]domain.OrderItem(nil), m.items[id]...),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryTable) CompareAndSetStatus(_ context.Context, id string, from, to domain.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = m.Now().UTC()
	m.orders[id] = o
	return true, nil
}
