package money

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to cents, halves away from zero.
func Round2(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// Ptr returns a pointer to the cent-rounded amount.
func Ptr(amount float64) *float64 {
	v := Round2(amount)
	return &v
}

// MulRound2 multiplies two amounts exactly and rounds the product to cents.
func MulRound2(amount, factor float64) float64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(factor)).Round(2).InexactFloat64()
}
