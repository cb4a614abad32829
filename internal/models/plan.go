// Package models содержит доменные структуры сервиса управления подписками:
// тарифные планы, подписки, записи биллинга и журнал жизненного цикла,
// а также вспомогательные типы для приёма данных из JSON-запросов.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cycle — тип периода оплаты.
type Cycle string

const (
	CycleWeekly    Cycle = "weekly"
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
)

// Valid сообщает, является ли значение известным периодом оплаты.
func (c Cycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// Unlimited — признак безлимитной квоты. Это отдельное значение, а не большое число.
const Unlimited int64 = -1

// Plan представляет запись каталога тарифов.
// Планы с историей подписок никогда не удаляются физически, только деактивируются.
type Plan struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	BillingCycle Cycle           `json:"billing_cycle"`
	Quota        int64           `json:"quota"` // -1 означает безлимит
	TrialDays    int             `json:"trial_days"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Terms возвращает условия плана, которые копируются в подписку.
func (p Plan) Terms() Terms {
	return Terms{
		Price: p.Price,
		Quota: p.Quota,
		Cycle: p.BillingCycle,
	}
}

// Terms — снимок условий тарифа: цена, квота и период оплаты.
type Terms struct {
	Price decimal.Decimal `json:"price"`
	Quota int64           `json:"quota"`
	Cycle Cycle           `json:"cycle"`
}

// QuotaAllows сообщает, укладывается ли usage в квоту quota.
func QuotaAllows(quota, usage int64) bool {
	if quota == Unlimited {
		return true
	}
	return usage <= quota
}

// CompareQuota сравнивает две квоты с учётом безлимита: -1, 0 или 1.
func CompareQuota(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a == Unlimited:
		return 1
	case b == Unlimited:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}
