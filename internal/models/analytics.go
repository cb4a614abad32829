package models

import "github.com/shopspring/decimal"

// Summary — агрегированная проекция по подпискам для администратора.
// Только для чтения, решений на её основе движок не принимает.
type Summary struct {
	ByStatus                map[Status]int  `json:"by_status"`
	MonthlyRecurringRevenue decimal.Decimal `json:"monthly_recurring_revenue"`
	BilledTotal             decimal.Decimal `json:"billed_total"`
}
