package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skinversity/storefront-go/internal/cart"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/httpapi"
	"github.com/skinversity/storefront-go/internal/order/checkout"
	"github.com/skinversity/storefront-go/internal/order/domain"
	"github.com/skinversity/storefront-go/pkg/idempotency"
)

type cartView struct {
	Items      []cart.Line     `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// client talks to order-service as one shopper with one cart.
type client struct {
	baseURL    string
	paymentURL string
	token      string
	http       *http.Client

	mu     sync.Mutex
	cartID string
}

func (c *client) do(ctx context.Context, method, url string, body, out any, headers map[string]string) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Lock()
	if c.cartID != "" {
		req.Header.Set(httpapi.CartHeader, c.cartID)
	}
	c.mu.Unlock()
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if id := resp.Header.Get(httpapi.CartHeader); id != "" {
		c.mu.Lock()
		c.cartID = id
		c.mu.Unlock()
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *client) url(path string) string { return strings.TrimRight(c.baseURL, "/") + path }

func (c *client) products(ctx context.Context) ([]catalog.Product, error) {
	var out struct {
		Products []catalog.Product `json:"products"`
	}
	err := c.do(ctx, http.MethodGet, c.url("/products"), nil, &out, nil)
	return out.Products, err
}

func (c *client) addToCart(ctx context.Context, productID string, qty int) (cartView, error) {
	var out cartView
	err := c.do(ctx, http.MethodPost, c.url("/cart/items"), map[string]any{"product_id": productID, "quantity": qty}, &out, nil)
	return out, err
}

func (c *client) cart(ctx context.Context) (cartView, error) {
	var out cartView
	err := c.do(ctx, http.MethodGet, c.url("/cart"), nil, &out, nil)
	return out, err
}

func (c *client) checkout(ctx context.Context) (checkout.Placement, error) {
	var out checkout.Placement
	err := c.do(ctx, http.MethodPost, c.url("/checkout"), nil, &out, map[string]string{idempotency.Header: uuid.NewString()})
	return out, err
}

// settle drives the sandbox gateway UI: outcome is "complete" or "close".
func (c *client) settle(ctx context.Context, reference, outcome string) error {
	url := strings.TrimRight(c.paymentURL, "/") + "/sandbox/" + reference + "/" + outcome
	return c.do(ctx, http.MethodPost, url, nil, nil, nil)
}

func (c *client) callback(ctx context.Context, orderID, reference, outcome string) (checkout.Result, error) {
	c.mu.Lock()
	cartID := c.cartID
	c.mu.Unlock()
	var out checkout.Result
	err := c.do(ctx, http.MethodPost, c.url("/payments/callback"), map[string]any{
		"order_id":  orderID,
		"reference": reference,
		"cart_id":   cartID,
		"outcome":   outcome,
	}, &out, nil)
	return out, err
}

func (c *client) orders(ctx context.Context) ([]domain.OrderWithItems, error) {
	var out struct {
		Orders []domain.OrderWithItems `json:"orders"`
	}
	err := c.do(ctx, http.MethodGet, c.url("/orders"), nil, &out, nil)
	return out.Orders, err
}

// pay completes or closes the payment for a placement the way the browser would:
// settle in the gateway, then report the outcome.
func (c *client) pay(ctx context.Context, pl checkout.Placement, success bool) (checkout.Result, error) {
	action, outcome := "close", "closed"
	if success {
		action, outcome = "complete", "success"
	}
	if err := c.settle(ctx, pl.Payment.Reference, action); err != nil {
		return checkout.Result{}, fmt.Errorf("gateway %s: %w", action, err)
	}
	return c.callback(ctx, pl.Order.ID, pl.Payment.Reference, outcome)
}
