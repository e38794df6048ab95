package repository

import (
	"context"

	"github.com/skinversity/storefront-go/internal/order/domain"
)

// Filter narrows SelectOrders. Empty fields match everything.
type Filter struct {
	OrderID string
	UserID  string
}

// Table is the row-level contract of the backing order store. Each call either
// returns data or an error, never both.
type Table interface {
	// InsertOrder stores o and returns it with the server-assigned id and timestamps.
	InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	InsertItem(ctx context.Context, it domain.OrderItem) (domain.OrderItem, error)
	// DeleteOrder removes an order and its items. Deleting a missing order is not an error.
	DeleteOrder(ctx context.Context, id string) error
	// SelectOrders returns matching orders joined with their items, newest first.
	SelectOrders(ctx context.Context, f Filter) ([]domain.OrderWithItems, error)
	// CompareAndSetStatus writes to only while the stored status equals from.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.Status) (bool, error)
}

// Transactor is implemented by tables that can run several writes atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(Table) error) error
}
