// Package money содержит арифметику денежных сумм для биллинга подписок.
package money

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prorate возвращает долю amount, приходящуюся на остаток периода [start, end)
// начиная с момента at. Результат округляется до двух знаков и лежит в [0, amount].
func Prorate(amount decimal.Decimal, at, start, end time.Time) decimal.Decimal {
	total := end.Sub(start)
	if total <= 0 || amount.IsZero() {
		return decimal.Zero
	}

	remaining := end.Sub(at)
	if remaining <= 0 {
		return decimal.Zero
	}
	remaining = min(remaining, total)

	ratio := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
	return amount.Mul(ratio).Round(2)
}
