// Package units converts between raw on-chain integer token amounts and
// display/economic decimal amounts. Chains disagree on decimal exponents
// (Ethereum native 18, Tezos native and both swap tokens 6), so every
// conversion goes through arbitrary-precision decimals; floats would drift.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Normalize re-expresses a raw integer amount carried at sourceDecimals as a
// raw-denominated decimal at targetDecimals. The result is exact; no digits
// are dropped.
func Normalize(raw *big.Int, sourceDecimals, targetDecimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(targetDecimals - sourceDecimals)
}

// ToDisplay converts a raw integer amount to its display unit, truncated to
// precision fractional digits. Truncation never rounds up, so a displayed or
// quoted amount never overstates what is actually available.
func ToDisplay(raw *big.Int, decimals, precision int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals).Truncate(precision)
}

// FromRaw converts a raw integer amount to its full-precision display value.
func FromRaw(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

// ToRaw converts a display amount back to the chain's raw integer
// representation, truncating any fraction below one raw unit.
func ToRaw(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
