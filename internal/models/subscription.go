package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status — состояние подписки.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid сообщает, является ли значение допустимым статусом.
func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPaused, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal сообщает, что из статуса нет исходящих переходов.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Live сообщает, что подписка занимает пару (пользователь, план).
func (s Status) Live() bool {
	return s == StatusTrial || s == StatusActive || s == StatusPaused
}

// Subscription — центральная сущность сервиса.
// Цена, квота и период копируются из плана в момент подписки и дальше
// меняются только через операции жизненного цикла.
type Subscription struct {
	ID                 uuid.UUID        `json:"id"`
	UserID             string           `json:"user_id"`
	PlanID             uuid.UUID        `json:"plan_id"`
	Status             Status           `json:"status"`
	BillingCycle       Cycle            `json:"billing_cycle"`
	Price              decimal.Decimal  `json:"price"`
	Quota              int64            `json:"quota"`
	DiscountPercent    int              `json:"discount_percent"`
	CurrentPeriodStart time.Time        `json:"current_period_start"`
	CurrentPeriodEnd   time.Time        `json:"current_period_end"`
	NextBillingDate    *time.Time       `json:"next_billing_date,omitempty"`
	TrialStart         *time.Time       `json:"trial_start,omitempty"`
	TrialEnd           *time.Time       `json:"trial_end,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason       *string          `json:"cancel_reason,omitempty"`
	PausedAt           *time.Time       `json:"paused_at,omitempty"`
	PauseDurationDays  *int             `json:"pause_duration_days,omitempty"`
	AutoRenew          bool             `json:"auto_renew"`
	Scheduled          *ScheduledChange `json:"scheduled_change,omitempty"`
	Version            int              `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ScheduledChange — отложенная смена условий (downgrade до следующей даты списания).
type ScheduledChange struct {
	PlanID      uuid.UUID `json:"plan_id"`
	Terms       Terms     `json:"terms"`
	EffectiveAt time.Time `json:"effective_at"`
}

// Terms возвращает текущий снимок условий подписки.
func (s *Subscription) Terms() Terms {
	return Terms{
		Price: s.Price,
		Quota: s.Quota,
		Cycle: s.BillingCycle,
	}
}

// ApplyTerms заменяет снимок условий.
func (s *Subscription) ApplyTerms(t Terms) {
	s.Price = t.Price
	s.Quota = t.Quota
	s.BillingCycle = t.Cycle
}

// ChargeAmount — сумма списания за период с учётом скидки, округлённая до копеек.
func (s *Subscription) ChargeAmount() decimal.Decimal {
	return DiscountedPrice(s.Price, s.DiscountPercent)
}

// DiscountedPrice применяет процентную скидку к цене.
func DiscountedPrice(price decimal.Decimal, discountPercent int) decimal.Decimal {
	if discountPercent <= 0 {
		return price.Round(2)
	}
	if discountPercent >= 100 {
		return decimal.Zero
	}
	factor := decimal.NewFromInt(int64(100 - discountPercent)).Div(decimal.NewFromInt(100))
	return price.Mul(factor).Round(2)
}

// Clone возвращает глубокую копию подписки.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.NextBillingDate = cloneTime(s.NextBillingDate)
	c.TrialStart = cloneTime(s.TrialStart)
	c.TrialEnd = cloneTime(s.TrialEnd)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.PausedAt = cloneTime(s.PausedAt)
	if s.CancelReason != nil {
		r := *s.CancelReason
		c.CancelReason = &r
	}
	if s.PauseDurationDays != nil {
		d := *s.PauseDurationDays
		c.PauseDurationDays = &d
	}
	if s.Scheduled != nil {
		sc := *s.Scheduled
		c.Scheduled = &sc
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
