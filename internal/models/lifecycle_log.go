package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action — тег операции жизненного цикла.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
	ActionCancel    Action = "cancel"
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
	ActionRenew     Action = "renew"
	ActionActivate  Action = "activate"
	ActionRollover  Action = "rollover"
	ActionExpire    Action = "expire"
)

// LogMetadata — данные, достаточные для восстановления истории подписки.
type LogMetadata struct {
	PreviousStatus Status           `json:"previous_status,omitempty"`
	NextStatus     Status           `json:"next_status,omitempty"`
	PreviousPlanID *uuid.UUID       `json:"previous_plan_id,omitempty"`
	NextPlanID     *uuid.UUID       `json:"next_plan_id,omitempty"`
	EffectiveAt    time.Time        `json:"effective_at"`
	Reason         string           `json:"reason,omitempty"`
	Refund         *decimal.Decimal `json:"refund,omitempty"`
	Usage          *int64           `json:"usage,omitempty"`
	UsageOverride  bool             `json:"usage_override,omitempty"`
	Deferred       bool             `json:"deferred,omitempty"`
	PauseDays      *int             `json:"pause_days,omitempty"`
}

// LifecycleLogEntry — неизменяемая запись журнала, одна на каждый переход.
type LifecycleLogEntry struct {
	ID             uuid.UUID   `json:"id"`
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	Action         Action      `json:"action"`
	Metadata       LogMetadata `json:"metadata"`
	CreatedAt      time.Time   `json:"created_at"`
}
