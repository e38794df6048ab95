package cart

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinversity/storefront-go/internal/catalog"
)

var (
	cleanser = catalog.Product{ID: "p1", Name: "Gentle Foam Cleanser", Category: catalog.CategoryCleansers, Price: decimal.RequireFromString("14.00")}
	cream    = catalog.Product{ID: "p5", Name: "Hydra Cloud Moisturizer", Category: catalog.CategoryMoisturizers, Price: decimal.RequireFromString("22.00")}
)

func TestAddMergesLines(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add(cleanser, 1))
	require.NoError(t, c.Add(cream, 1))
	require.NoError(t, c.Add(cleanser, 1))

	require.Len(t, c.Lines, 2)
	assert.Equal(t, "p1", c.Lines[0].Product.ID)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.Equal(t, 3, c.TotalItems())
	assert.True(t, c.TotalPrice().Equal(decimal.RequireFromString("50.00")))
}

func TestAddRejectsNonPositive(t *testing.T) {
	var c Cart
	assert.ErrorIs(t, c.Add(cleanser, 0), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
}

func TestUpdateQuantityToZeroRemovesLine(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add(cleanser, 1))
	require.NoError(t, c.Add(cream, 3))

	found, err := c.UpdateQuantity("p5", 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, c.Lines[1].Quantity)

	found, err = c.UpdateQuantity("p1", 0)
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p5", c.Lines[0].Product.ID)

	found, err = c.UpdateQuantity("p9", 2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestQuantityIsBounded(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add(cleanser, MaxQuantity-1))
	assert.ErrorIs(t, c.Add(cleanser, math.MaxInt), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(cleanser, 2), ErrInvalidQuantity)
	require.NoError(t, c.Add(cleanser, 1))
	assert.Equal(t, MaxQuantity, c.Lines[0].Quantity)

	assert.ErrorIs(t, c.Add(cream, MaxQuantity+1), ErrInvalidQuantity)
	_, err := c.UpdateQuantity("p1", MaxQuantity+1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, MaxQuantity, c.TotalItems())
}

func TestRemoveAndClear(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add(cleanser, 1))
	require.NoError(t, c.Add(cream, 1))
	c.Remove("p1")
	c.Remove("missing")
	require.Len(t, c.Lines, 1)
	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.TotalPrice().IsZero())
}

func TestOrderLines(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add(cleanser, 2))
	require.NoError(t, c.Add(cream, 1))

	lines := c.OrderLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[1].UnitPrice.Equal(decimal.RequireFromString("22")))
}
