package session

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	botderr "github.com/inky-tools/inkybot/internal/errors"
)

// Percentage shortcuts offered in the sell flow. The 100% case is capped
// at 99.99% so a full-balance sell survives rounding on the token side.
var percentages = map[int]decimal.Decimal{
	10:  decimal.New(10, -2),
	25:  decimal.New(25, -2),
	50:  decimal.New(50, -2),
	75:  decimal.New(75, -2),
	100: decimal.New(9999, -4),
}

// ParseAmount parses a strictly positive decimal amount in human units.
func ParseAmount(text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, botderr.New(botderr.KindValidation, "please enter a valid numeric amount")
	}
	if d.Sign() <= 0 {
		return decimal.Zero, botderr.New(botderr.KindValidation, "amount must be greater than zero")
	}
	return d, nil
}

// PercentOf applies one of the sell shortcuts to a balance. Results below
// one hundredth of the token's smallest unit are floored to zero.
func PercentOf(balance decimal.Decimal, pct int, decimals int) (decimal.Decimal, bool) {
	factor, ok := percentages[pct]
	if !ok {
		return decimal.Zero, false
	}
	amount := balance.Mul(factor)
	if amount.Cmp(decimal.New(1, int32(-decimals-2))) < 0 {
		amount = decimal.Zero
	}
	return amount, true
}

// ToRaw converts a human-unit amount to the token's smallest unit,
// truncating any precision beyond decimals.
func ToRaw(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromRaw converts a smallest-unit amount to human units.
func FromRaw(raw *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, int32(-decimals))
}

// EthToWei converts an ETH amount to wei.
func EthToWei(amount decimal.Decimal) *big.Int {
	return ToRaw(amount, 18)
}

// WeiToEth converts wei to ETH.
func WeiToEth(wei *big.Int) decimal.Decimal {
	return FromRaw(wei, 18)
}
