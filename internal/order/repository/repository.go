// Package repository creates orders with their line items and reads them back.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/skinversity/storefront-go/internal/order/domain"
	"github.com/skinversity/storefront-go/pkg/logging"
)

var (
	ErrMissingUser        = errors.New("order needs an owning user")
	ErrOrderInsertFailed  = errors.New("order insert failed")
	ErrItemInsertFailed   = errors.New("order item insert failed")
	ErrCompensationFailed = errors.New("compensating delete failed")
)

const (
	service                  = "order-repository"
	defaultCompensationTries = 5
	compensationTimeout      = 10 * time.Second
)

type Repository struct {
	table Table

	compensationTries   uint
	compensationBackOff func() backoff.BackOff
}

type Option func(*Repository)

// WithCompensation sets how the compensating delete is retried.
func WithCompensation(tries uint, newBackOff func() backoff.BackOff) Option {
	return func(r *Repository) {
		r.compensationTries = tries
		r.compensationBackOff = newBackOff
	}
}

func New(table Table, opts ...Option) *Repository {
	r := &Repository{
		table:             table,
		compensationTries: defaultCompensationTries,
		compensationBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOrder stores a pending order and one item per line. Either the order and
// all its items persist, or nothing does.
func (r *Repository) CreateOrder(ctx context.Context, userID string, lines []domain.Line, total decimal.Decimal) (domain.OrderWithItems, error) {
	if userID == "" {
		return domain.OrderWithItems{}, ErrMissingUser
	}
	if err := domain.ValidateLines(lines, total); err != nil {
		return domain.OrderWithItems{}, err
	}

	if tx, ok := r.table.(Transactor); ok {
		var out domain.OrderWithItems
		err := tx.InTx(ctx, func(t Table) error {
			order, err := insertOrder(ctx, t, userID, total)
			if err != nil {
				return err
			}
			out, err = insertItems(ctx, t, order, lines)
			return err
		})
		if err != nil {
			return domain.OrderWithItems{}, err
		}
		return out, nil
	}

	order, err := insertOrder(ctx, r.table, userID, total)
	if err != nil {
		return domain.OrderWithItems{}, err
	}
	out, err := insertItems(ctx, r.table, order, lines)
	if err != nil {
		if cerr := r.compensate(ctx, order.ID); cerr != nil {
			logging.Err(logging.Fields{Service: service, OrderID: order.ID, UserID: userID, Step: "compensate", Status: "orphaned"}, cerr)
			return domain.OrderWithItems{}, errors.Join(err, fmt.Errorf("%w: order %s: %w", ErrCompensationFailed, order.ID, cerr))
		}
		logging.Err(logging.Fields{Service: service, OrderID: order.ID, UserID: userID, Step: "compensate", Status: "rolled_back"}, err)
		return domain.OrderWithItems{}, err
	}
	return out, nil
}

func insertOrder(ctx context.Context, t Table, userID string, total decimal.Decimal) (domain.Order, error) {
	order, err := t.InsertOrder(ctx, domain.Order{UserID: userID, Total: total, Status: domain.StatusPending})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", ErrOrderInsertFailed, err)
	}
	return order, nil
}

func insertItems(ctx context.Context, t Table, order domain.Order, lines []domain.Line) (domain.OrderWithItems, error) {
	out := domain.OrderWithItems{Order: order, Items: make([]domain.OrderItem, 0, len(lines))}
	for _, l := range lines {
		it, err := t.InsertItem(ctx, domain.OrderItem{
			OrderID:   order.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		})
		if err != nil {
			return domain.OrderWithItems{}, fmt.Errorf("%w: product %s: %w", ErrItemInsertFailed, l.ProductID, err)
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}

// compensate deletes a half-written order. The delete is idempotent, so it is
// retried, and it outlives cancellation of the caller's context.
func (r *Repository) compensate(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.table.DeleteOrder(ctx, orderID)
	}, backoff.WithBackOff(r.compensationBackOff()), backoff.WithMaxTries(r.compensationTries))
	return err
}

// committed drops orders without items: they are either mid-creation or
// orphans of a failed compensation.
func committed(orders []domain.OrderWithItems) []domain.OrderWithItems {
	out := make([]domain.OrderWithItems, 0, len(orders))
	for _, o := range orders {
		if len(o.Items) > 0 {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.OrderWithItems) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (r *Repository) FetchOrder(ctx context.Context, orderID string) (domain.OrderWithItems, error) {
	if orderID == "" {
		return domain.OrderWithItems{}, domain.ErrNotFound
	}
	orders, err := r.table.SelectOrders(ctx, Filter{OrderID: orderID})
	if err != nil {
		return domain.OrderWithItems{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	orders = committed(orders)
	if len(orders) == 0 {
		return domain.OrderWithItems{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return orders[0], nil
}

// FetchOrdersForUser returns the user's orders, newest first.
func (r *Repository) FetchOrdersForUser(ctx context.Context, userID string) ([]domain.OrderWithItems, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	orders, err := r.table.SelectOrders(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("fetch orders for user %s: %w", userID, err)
	}
	return committed(orders), nil
}

// FetchAllOrders returns every order, newest first.
func (r *Repository) FetchAllOrders(ctx context.Context) ([]domain.OrderWithItems, error) {
	orders, err := r.table.SelectOrders(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("fetch all orders: %w", err)
	}
	return committed(orders), nil
}

// UpdateStatus moves an order to status. Only transitions allowed by
// domain.CanTransition are written, and only if nobody changed the status meanwhile.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, status domain.Status) error {
	current, err := r.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(current.Status, status) {
		return &domain.TransitionError{OrderID: orderID, From: current.Status, To: status}
	}

	ok, err := r.table.CompareAndSetStatus(ctx, orderID, current.Status, status)
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	if ok {
		return nil
	}

	latest, err := r.FetchOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return &domain.TransitionError{OrderID: orderID, From: latest.Status, To: status}
}
