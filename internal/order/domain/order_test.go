package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusPending, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, Status("bogus").IsTerminal())
	assert.Empty(t, NextStatuses(StatusDelivered))
	assert.Equal(t, []Status{StatusShipped, StatusCancelled}, NextStatuses(StatusPaid))
}

func TestNextStatusesReturnsCopy(t *testing.T) {
	next := NextStatuses(StatusPending)
	next[0] = StatusDelivered
	assert.Equal(t, StatusPaid, NextStatuses(StatusPending)[0])
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("refunded")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransitionErrorUnwraps(t *testing.T) {
	var err error = &TransitionError{OrderID: "o1", From: StatusDelivered, To: StatusPaid}
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Contains(t, err.Error(), "delivered")
}

func TestTotalAndValidate(t *testing.T) {
	lines := []Line{
		{ProductID: "p1", Quantity: 2, UnitPrice: price("14.00")},
		{ProductID: "p5", Quantity: 1, UnitPrice: price("22.00")},
	}
	assert.True(t, Total(lines).Equal(price("50.00")))
	require.NoError(t, ValidateLines(lines, price("50")))

	assert.ErrorIs(t, ValidateLines(lines, price("49.99")), ErrTotalMismatch)
	assert.ErrorIs(t, ValidateLines(nil, decimal.Zero), ErrEmptyOrder)
	assert.ErrorIs(t, ValidateLines([]Line{{ProductID: "p1", Quantity: 0, UnitPrice: price("1")}}, decimal.Zero), ErrInvalidLine)
	assert.ErrorIs(t, ValidateLines([]Line{{ProductID: "p1", Quantity: 1, UnitPrice: price("-1")}}, price("-1")), ErrInvalidLine)
	dup := []Line{lines[0], lines[0]}
	assert.ErrorIs(t, ValidateLines(dup, Total(dup)), ErrInvalidLine)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000), ToMinor(price("50.00")))
	assert.Equal(t, int64(1999), ToMinor(price("19.99")))
	assert.Equal(t, int64(1), ToMinor(price("0.005")))
	assert.True(t, FromMinor(1999).Equal(price("19.99")))
}

func TestOrderWithItemsJSONShape(t *testing.T) {
	o := OrderWithItems{
		Order: Order{ID: "o1", UserID: "u1", Total: price("14"), Status: StatusPending},
		Items: []OrderItem{{ID: "i1", OrderID: "o1", ProductID: "p1", Quantity: 1, Price: price("14")}},
	}
	data, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "o1", got["id"])
	assert.Equal(t, "pending", got["status"])
	assert.Len(t, got["order_items"], 1)
}
