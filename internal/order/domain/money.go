package domain

import "github.com/shopspring/decimal"

// minorExp is the number of minor-unit digits of the store currency.
const minorExp = 2

// ToMinor converts an amount into the gateway's minor currency unit, rounding half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(minorExp).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorExp)
}
