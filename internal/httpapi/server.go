// Package httpapi is the order-service HTTP surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/cart"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/order/admin"
	"github.com/skinversity/storefront-go/internal/order/checkout"
	"github.com/skinversity/storefront-go/internal/order/domain"
	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/idempotency"
	"github.com/skinversity/storefront-go/pkg/logging"
	"github.com/skinversity/storefront-go/pkg/metrics"
	"github.com/skinversity/storefront-go/pkg/tracing"
)

const CartHeader = "X-Cart-ID"

type CartStore interface {
	Load(ctx context.Context, id string) (cart.Cart, error)
	Mutate(ctx context.Context, id string, fn func(*cart.Cart) error) (cart.Cart, error)
	Clear(ctx context.Context, id string) error
}

type OrderReader interface {
	FetchOrder(ctx context.Context, orderID string) (domain.OrderWithItems, error)
	FetchOrdersForUser(ctx context.Context, userID string) ([]domain.OrderWithItems, error)
}

type Server struct {
	Service       string
	Catalog       catalog.Provider
	Carts         CartStore
	Orders        OrderReader
	Checkout      *checkout.Workflow
	AdminOrders   *admin.Orders
	Dashboard     *admin.Dashboard
	Idempotency   idempotency.Store
	Auth          *auth.Verifier
	WebhookSecret string
	Metrics       *metrics.ServerMetrics
	Gatherer      prometheus.Gatherer

	// RequestTimeout bounds every handler; zero means 15s.
	RequestTimeout time.Duration
}

var (
	errBadRequest      = errors.New("bad request")
	errProductNotFound = errors.New("product not found")
)

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /health", "health", s.health)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.Gatherer))
	}

	s.handle(mux, "GET /products", "products_list", s.listProducts)
	s.handle(mux, "GET /products/{id}", "products_get", s.getProduct)

	s.handle(mux, "GET /cart", "cart_get", s.getCart)
	s.handle(mux, "POST /cart/items", "cart_add", s.addCartItem)
	s.handle(mux, "PUT /cart/items/{productID}", "cart_update", s.updateCartItem)
	s.handle(mux, "DELETE /cart/items/{productID}", "cart_remove", s.removeCartItem)
	s.handle(mux, "DELETE /cart", "cart_clear", s.clearCart)

	s.handle(mux, "POST /checkout", "checkout", s.placeOrder)
	s.handle(mux, "POST /orders/{id}/payment", "payment_retry", s.retryPayment)
	s.handle(mux, "POST /payments/callback", "payment_callback", s.paymentCallback)
	s.handle(mux, "POST /payments/webhook", "payment_webhook", s.paymentWebhook)
	s.handle(mux, "GET /orders", "orders_list", s.listOrders)
	s.handle(mux, "GET /orders/{id}", "orders_get", s.getOrder)

	s.handleAdmin(mux, "GET /admin/orders", "admin_orders", s.adminListOrders)
	s.handleAdmin(mux, "PATCH /admin/orders/{id}/status", "admin_order_status", s.adminSetStatus)
	s.handleAdmin(mux, "GET /admin/dashboard", "admin_dashboard", s.adminDashboard)

	return s.Auth.Optional(mux)
}

func (s *Server) wrap(name string, h http.Handler) http.Handler {
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	h = http.TimeoutHandler(h, timeout, `{"error":"request timed out"}`)
	h = tracing.Handler(h, name)
	if s.Metrics != nil {
		h = s.Metrics.Instrument(name, h)
	}
	return h
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.wrap(name, fn))
}

func (s *Server) handleAdmin(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	mux.Handle(pattern, auth.RequireAdmin(s.wrap(name, fn)))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps workflow and repository errors to HTTP status codes and the
// message the client sees.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrPaymentUpdateFailed):
		return http.StatusBadGateway, checkout.ErrPaymentUpdateFailed.Error()
	case errors.Is(err, checkout.ErrOrderCreationFailed):
		return http.StatusBadGateway, checkout.ErrOrderCreationFailed.Error()
	case errors.Is(err, checkout.ErrPaymentInitFailed):
		return http.StatusBadGateway, checkout.ErrPaymentInitFailed.Error()
	case errors.Is(err, checkout.ErrPaymentNotVerified):
		return http.StatusPaymentRequired, checkout.ErrPaymentNotVerified.Error()
	case errors.Is(err, checkout.ErrAuthRequired):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, errProductNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, checkout.ErrOrderNotPending),
		errors.Is(err, cart.ErrConcurrentUpdate),
		errors.Is(err, idempotency.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, errBadRequest),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrProductUnavailable),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, payment.ErrUnknownOutcome):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	code, msg := statusFor(err)
	if code >= 500 {
		logging.Err(logging.Fields{
			Service: s.Service,
			UserID:  auth.FromContext(r.Context()).UserID,
			Step:    r.Method + " " + r.URL.Path,
			Status:  http.StatusText(code),
		}, err)
	}
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, code, body)
}
