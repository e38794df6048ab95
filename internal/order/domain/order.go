package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidLine       = errors.New("invalid order line")
	ErrTotalMismatch     = errors.New("total does not match line subtotals")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrUnknownStatus     = errors.New("unknown order status")
)

// transitions lists the statuses reachable from each status. Terminal statuses map to nothing.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: nil,
	StatusCancelled: nil,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// NextStatuses returns a copy of the statuses an order may move to from s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	_, known := transitions[s]
	return known && len(transitions[s]) == 0
}

type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// Line is one cart line priced at order time.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ValidateLines checks a set of lines and the total claimed for them.
func ValidateLines(lines []Line, total decimal.Decimal) error {
	if len(lines) == 0 {
		return ErrEmptyOrder
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: product %q quantity %d price %s", ErrInvalidLine, l.ProductID, l.Quantity, l.UnitPrice)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: duplicate product %q", ErrInvalidLine, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	if sum := Total(lines); !sum.Equal(total) {
		return fmt.Errorf("%w: total %s, lines %s", ErrTotalMismatch, total, sum)
	}
	return nil
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

type OrderWithItems struct {
	Order
	Items []OrderItem `json:"order_items"`
}
