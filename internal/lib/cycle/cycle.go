// Package cycle вычисляет границы расчётных периодов подписки.
//
// Все функции чистые: они не хранят состояние и не меняют аргументы.
// Прибавление календарных месяцев и лет прижимается к последнему дню
// целевого месяца (31 января + 1 месяц = последний день февраля).
package cycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// ErrUnknownCycle возвращается для неизвестного периода оплаты.
var ErrUnknownCycle = errors.New("unknown billing cycle")

// NextPeriodEnd возвращает конец периода, начинающегося в start.
// Время суток и часовой пояс start сохраняются.
func NextPeriodEnd(start time.Time, c models.Cycle) (time.Time, error) {
	switch c {
	case models.CycleWeekly:
		return start.AddDate(0, 0, 7), nil
	case models.CycleMonthly:
		return AddMonths(start, 1), nil
	case models.CycleQuarterly:
		return AddMonths(start, 3), nil
	case models.CycleYearly:
		return AddMonths(start, 12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownCycle, c)
	}
}

// AddMonths прибавляет календарные месяцы с прижатием дня к концу месяца.
// В отличие от time.AddDate не переполняется в следующий месяц.
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	lastDay := now.With(first).EndOfMonth().Day()
	day := min(t.Day(), lastDay)

	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MonthlyFactor возвращает множитель для приведения цены периода к месяцу.
// Используется только в аналитике (MRR).
func MonthlyFactor(c models.Cycle) (decimal.Decimal, error) {
	switch c {
	case models.CycleWeekly:
		return decimal.NewFromInt(52).Div(decimal.NewFromInt(12)), nil
	case models.CycleMonthly:
		return decimal.NewFromInt(1), nil
	case models.CycleQuarterly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(3)), nil
	case models.CycleYearly:
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(12)), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownCycle, c)
	}
}
