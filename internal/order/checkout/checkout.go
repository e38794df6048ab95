// Package checkout coordinates cart, order repository, payment gateway and the
// notification side-channel into the order placement and payment
// confirmation workflow.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/cart"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/notify"
	"github.com/skinversity/storefront-go/internal/order/domain"
	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/logging"
	"github.com/skinversity/storefront-go/pkg/metrics"
)

var (
	ErrAuthRequired        = errors.New("sign in to place an order")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrProductUnavailable  = errors.New("product no longer available")
	ErrOrderCreationFailed = errors.New("order creation failed")
	ErrPaymentInitFailed   = errors.New("payment could not be started")
	ErrPaymentUpdateFailed = errors.New("payment succeeded but the order could not be marked paid; contact support")
	ErrPaymentNotVerified  = errors.New("payment could not be verified")
	ErrOrderNotPending     = errors.New("order is not awaiting payment")
)

// Notice is an informational, non-error outcome shown to the shopper.
type Notice string

const NoticePaymentCancelled Notice = "payment_cancelled"

type OrderStore interface {
	CreateOrder(ctx context.Context, userID string, lines []domain.Line, total decimal.Decimal) (domain.OrderWithItems, error)
	FetchOrder(ctx context.Context, orderID string) (domain.OrderWithItems, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.Status) error
}

type CartStore interface {
	Load(ctx context.Context, id string) (cart.Cart, error)
	Clear(ctx context.Context, id string) error
}

type Config struct {
	Service     string
	Currency    string
	CallbackURL string

	// VerifyPayments asks the gateway to confirm every success callback.
	VerifyPayments bool
	StepTimeout    time.Duration
}

type Deps struct {
	Orders   OrderStore
	Carts    CartStore
	Catalog  catalog.Provider
	Gateway  payment.Gateway
	Notifier notify.Notifier
	Metrics  *metrics.CheckoutMetrics
	Tracer   trace.Tracer
}

type Workflow struct {
	Deps
	cfg Config
}

func New(deps Deps, cfg Config) *Workflow {
	if cfg.Service == "" {
		cfg.Service = "checkout"
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/skinversity/storefront-go/internal/order/checkout")
	}
	return &Workflow{Deps: deps, cfg: cfg}
}

// Placement is a created order with the payment session the shopper must complete.
type Placement struct {
	Order   domain.OrderWithItems `json:"order"`
	Payment payment.Session       `json:"payment"`
}

type Confirmation struct {
	OrderID   string
	Reference string
	CartID    string

	// UserID, when set, must own the order.
	UserID string
}

type Result struct {
	Order     domain.Order `json:"order"`
	Notice    Notice       `json:"notice,omitempty"`
	Duplicate bool         `json:"duplicate,omitempty"`
}

// step runs fn under its own span, timeout, counter and log line.
func (w *Workflow) step(ctx context.Context, name, orderID string, fn func(context.Context) error) error {
	ctx, span := w.Tracer.Start(ctx, "checkout."+name)
	defer span.End()
	if orderID != "" {
		span.SetAttributes(attribute.String("order.id", orderID))
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	fields := logging.Fields{
		Service:    w.cfg.Service,
		OrderID:    orderID,
		Step:       name,
		Status:     "ok",
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields.Status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Err(fields, err)
	} else {
		logging.Log(fields)
	}
	w.Metrics.Record(name, fields.Status)
	return err
}

// PlaceOrder turns the shopper's cart into a pending order and starts a payment
// for it. The cart is left as is; it is cleared only once the order is paid.
// When the payment cannot be started the pending order is still returned
// alongside ErrPaymentInitFailed so the caller can retry the payment.
func (w *Workflow) PlaceOrder(ctx context.Context, s auth.Session, cartID string) (Placement, error) {
	if !s.Authenticated() {
		w.Metrics.Record("auth", "rejected")
		return Placement{}, ErrAuthRequired
	}

	var lines []domain.Line
	err := w.step(ctx, "snapshot", "", func(ctx context.Context) error {
		c, err := w.Carts.Load(ctx, cartID)
		if err != nil {
			return err
		}
		if c.IsEmpty() {
			return ErrEmptyCart
		}
		lines, err = w.snapshot(ctx, c)
		return err
	})
	if err != nil {
		return Placement{}, err
	}

	var order domain.OrderWithItems
	err = w.step(ctx, "create_order", "", func(ctx context.Context) error {
		var err error
		order, err = w.Orders.CreateOrder(ctx, s.UserID, lines, domain.Total(lines))
		return err
	})
	if err != nil {
		return Placement{}, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	sess, err := w.initPayment(ctx, s, order.Order, cartID)
	if err != nil {
		return Placement{Order: order}, err
	}
	return Placement{Order: order, Payment: sess}, nil
}

// snapshot reprices every cart line from the catalog as it is right now.
func (w *Workflow) snapshot(ctx context.Context, c cart.Cart) ([]domain.Line, error) {
	lines := c.OrderLines()
	for i, l := range lines {
		p, ok, err := w.Catalog.Get(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, l.ProductID)
		}
		lines[i].UnitPrice = p.Price
	}
	return lines, nil
}

func (w *Workflow) initPayment(ctx context.Context, s auth.Session, order domain.Order, cartID string) (payment.Session, error) {
	var sess payment.Session
	err := w.step(ctx, "init_payment", order.ID, func(ctx context.Context) error {
		var err error
		sess, err = w.Gateway.Initialize(ctx, payment.InitRequest{
			AmountMinor: domain.ToMinor(order.Total),
			Currency:    w.cfg.Currency,
			Reference:   "ord_" + uuid.NewString(),
			Email:       s.Email,
			CallbackURL: w.cfg.CallbackURL,
			Metadata: map[string]string{
				payment.MetaOrderID: order.ID,
				payment.MetaUserID:  s.UserID,
				payment.MetaCartID:  cartID,
				payment.MetaEmail:   s.Email,
			},
		})
		return err
	})
	if err != nil {
		return payment.Session{}, fmt.Errorf("%w: %w", ErrPaymentInitFailed, err)
	}
	return sess, nil
}

// RetryPayment starts a fresh payment for an order that is still pending. No new
// order is created.
func (w *Workflow) RetryPayment(ctx context.Context, s auth.Session, orderID, cartID string) (Placement, error) {
	if !s.Authenticated() {
		return Placement{}, ErrAuthRequired
	}
	order, err := w.Orders.FetchOrder(ctx, orderID)
	if err != nil {
		return Placement{}, err
	}
	if order.UserID != s.UserID {
		return Placement{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.Status != domain.StatusPending {
		return Placement{Order: order}, fmt.Errorf("%w: order %s is %s", ErrOrderNotPending, orderID, order.Status)
	}
	sess, err := w.initPayment(ctx, s, order.Order, cartID)
	if err != nil {
		return Placement{Order: order}, err
	}
	return Placement{Order: order, Payment: sess}, nil
}

// ConfirmPayment handles a success report from the gateway: it marks the order
// paid, notifies the side-channel and clears the cart. A repeated success for an
// order that is already paid is acknowledged without a second notification.
func (w *Workflow) ConfirmPayment(ctx context.Context, c Confirmation) (Result, error) {
	var order domain.OrderWithItems
	err := w.step(ctx, "load_order", c.OrderID, func(ctx context.Context) error {
		var err error
		order, err = w.Orders.FetchOrder(ctx, c.OrderID)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPaymentUpdateFailed, err)
	}
	if c.UserID != "" && order.UserID != c.UserID {
		return Result{}, fmt.Errorf("order %s: %w", c.OrderID, domain.ErrNotFound)
	}
	if alreadyPaid(order.Status) {
		w.Metrics.Record("mark_paid", "duplicate")
		w.clearCart(ctx, c)
		return Result{Order: order.Order, Duplicate: true}, nil
	}

	if w.cfg.VerifyPayments {
		err := w.step(ctx, "verify_payment", c.OrderID, func(ctx context.Context) error {
			return w.verify(ctx, order.Order, c.Reference)
		})
		if err != nil {
			return Result{Order: order.Order}, err
		}
	}

	err = w.step(ctx, "mark_paid", c.OrderID, func(ctx context.Context) error {
		return w.Orders.UpdateStatus(ctx, c.OrderID, domain.StatusPaid)
	})
	if err != nil {
		var te *domain.TransitionError
		if errors.As(err, &te) && alreadyPaid(te.From) {
			// a concurrent confirmation won the race
			w.clearCart(ctx, c)
			order.Status = te.From
			return Result{Order: order.Order, Duplicate: true}, nil
		}
		return Result{Order: order.Order}, fmt.Errorf("%w: %w", ErrPaymentUpdateFailed, err)
	}
	order.Status = domain.StatusPaid

	w.Notifier.Notify(notify.Notification{
		OrderID:    order.ID,
		PaymentRef: c.Reference,
		Status:     string(payment.OutcomeSuccess),
		Amount:     order.Total.StringFixed(2),
	})
	w.clearCart(ctx, c)
	return Result{Order: order.Order}, nil
}

func alreadyPaid(s domain.Status) bool {
	return s == domain.StatusPaid || s == domain.StatusShipped || s == domain.StatusDelivered
}

func (w *Workflow) verify(ctx context.Context, order domain.Order, reference string) error {
	tx, err := w.Gateway.Verify(ctx, reference)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentNotVerified, err)
	}
	switch {
	case !tx.Succeeded():
		return fmt.Errorf("%w: %w: status %q", ErrPaymentNotVerified, payment.ErrNotSuccessful, tx.Status)
	case tx.AmountMinor != domain.ToMinor(order.Total):
		return fmt.Errorf("%w: paid %s, order total %s", ErrPaymentNotVerified, domain.FromMinor(tx.AmountMinor).StringFixed(2), order.Total.StringFixed(2))
	case tx.Metadata[payment.MetaOrderID] != "" && tx.Metadata[payment.MetaOrderID] != order.ID:
		return fmt.Errorf("%w: reference belongs to order %s", ErrPaymentNotVerified, tx.Metadata[payment.MetaOrderID])
	}
	return nil
}

func (w *Workflow) clearCart(ctx context.Context, c Confirmation) {
	if c.CartID == "" {
		return
	}
	_ = w.step(ctx, "clear_cart", c.OrderID, func(ctx context.Context) error {
		return w.Carts.Clear(ctx, c.CartID)
	})
}

// CancelPayment handles the shopper closing the payment dialog. The order stays
// pending and the cart is untouched.
func (w *Workflow) CancelPayment(ctx context.Context, s auth.Session, orderID string) (Result, error) {
	if !s.Authenticated() {
		return Result{}, ErrAuthRequired
	}
	var order domain.OrderWithItems
	err := w.step(ctx, "cancel_payment", orderID, func(ctx context.Context) error {
		var err error
		order, err = w.Orders.FetchOrder(ctx, orderID)
		if err == nil && order.UserID != s.UserID {
			err = fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Order: order.Order, Notice: NoticePaymentCancelled}, nil
}

// HandleOutcome dispatches the outcome the shopper's browser reported to
// ConfirmPayment or CancelPayment. Only the order's owner may report it.
func (w *Workflow) HandleOutcome(ctx context.Context, s auth.Session, outcome payment.Outcome, c Confirmation) (Result, error) {
	if !s.Authenticated() {
		return Result{}, ErrAuthRequired
	}
	c.UserID = s.UserID
	switch outcome {
	case payment.OutcomeSuccess:
		return w.ConfirmPayment(ctx, c)
	case payment.OutcomeClosed:
		return w.CancelPayment(ctx, s, c.OrderID)
	}
	return Result{}, fmt.Errorf("%w: %q", payment.ErrUnknownOutcome, outcome)
}
