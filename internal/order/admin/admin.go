// Package admin is the read side of the back office: the dashboard summary and
// the order list with the status changes each order still allows.
package admin

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/order/domain"
)

type OrderStore interface {
	FetchAllOrders(ctx context.Context) ([]domain.OrderWithItems, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.Status) error
}

type Summary struct {
	Revenue  decimal.Decimal `json:"total_revenue"`
	Orders   int             `json:"total_orders"`
	Pending  int             `json:"pending_orders"`
	Open     int             `json:"open_orders"`
	Products int             `json:"total_products"`
}

type Dashboard struct {
	Catalog catalog.Provider
	Orders  OrderStore
}

// Summary loads products and orders concurrently and merges them once both
// have arrived. Cancelled orders do not count towards revenue.
func (d *Dashboard) Summary(ctx context.Context) (Summary, error) {
	var (
		products []catalog.Product
		orders   []domain.OrderWithItems
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = d.Catalog.List(gctx)
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		orders, err = d.Orders.FetchAllOrders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	s := Summary{Revenue: decimal.Zero, Orders: len(orders), Products: len(products)}
	for _, o := range orders {
		if o.Status != domain.StatusCancelled {
			s.Revenue = s.Revenue.Add(o.Total)
		}
		if o.Status == domain.StatusPending {
			s.Pending++
		}
		if !o.Status.IsTerminal() {
			s.Open++
		}
	}
	return s, nil
}

type OrderView struct {
	domain.OrderWithItems
	NextStatuses []domain.Status `json:"next_statuses"`
}

type Orders struct {
	Store OrderStore
}

// List returns every order, newest first. A non-empty status narrows the list.
func (o *Orders) List(ctx context.Context, status string) ([]OrderView, error) {
	var want domain.Status
	if status != "" {
		s, err := domain.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		want = s
	}
	orders, err := o.Store.FetchAllOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OrderView, 0, len(orders))
	for _, ord := range orders {
		if want != "" && ord.Status != want {
			continue
		}
		next := domain.NextStatuses(ord.Status)
		if next == nil {
			next = []domain.Status{}
		}
		out = append(out, OrderView{OrderWithItems: ord, NextStatuses: next})
	}
	return out, nil
}

func (o *Orders) SetStatus(ctx context.Context, orderID, status string) error {
	s, err := domain.ParseStatus(status)
	if err != nil {
		return err
	}
	return o.Store.UpdateStatus(ctx, orderID, s)
}
