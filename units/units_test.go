package units_test

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/tezexlabs/coordinator/units"
)

func TestNormalize(t *testing.T) {
	// 1 ether in wei, re-expressed in mutez-scale raw units.
	wei := new(big.Int)
	wei.SetString("1000000000000000000", 10)

	got := units.Normalize(wei, 18, 6)
	assert.Equal(t, got.String(), "1000000")

	// Widening direction is exact too.
	back := units.Normalize(big.NewInt(1000000), 6, 18)
	assert.Equal(t, back.String(), "1000000000000000000")
}

func TestToDisplayTruncates(t *testing.T) {
	// 1.2345678 tokens at 7 raw digits, displayed at 6: the trailing 8 is
	// dropped, never rounded up.
	raw := big.NewInt(12345678)
	got := units.ToDisplay(raw, 7, 6)
	assert.Equal(t, got.String(), "1.234567")
}

func TestRawRoundTrip(t *testing.T) {
	for _, rawStr := range []string{"0", "1", "999999", "1000000", "123456789012345678"} {
		raw, ok := new(big.Int).SetString(rawStr, 10)
		assert.True(t, ok)

		display := units.FromRaw(raw, 6)
		assert.Equal(t, units.ToRaw(display, 6).String(), rawStr)
	}
}

func TestToRawTruncatesSubUnitFraction(t *testing.T) {
	// Anything below one raw unit disappears rather than rounding up.
	amount := decimal.RequireFromString("1.0000009")
	assert.Equal(t, units.ToRaw(amount, 6).String(), "1000000")
}
