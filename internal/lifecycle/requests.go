package lifecycle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// CreateRequest описывает параметры оформления подписки.
type CreateRequest struct {
	UserID          string
	PlanID          uuid.UUID
	AutoRenew       bool
	DiscountPercent int
}

// UpgradeRequest описывает повышение тарифа.
type UpgradeRequest struct {
	SubscriptionID uuid.UUID
	TargetPlanID   uuid.UUID
}

// DowngradeRequest описывает понижение тарифа. По умолчанию отложенное.
type DowngradeRequest struct {
	SubscriptionID uuid.UUID
	TargetPlanID   uuid.UUID
	Immediate      bool
	OverrideUsage  bool
}

// CancelRequest описывает отмену подписки.
type CancelRequest struct {
	SubscriptionID uuid.UUID
	Reason         string
	Immediate      bool
}

// PauseRequest описывает приостановку подписки.
type PauseRequest struct {
	SubscriptionID uuid.UUID
	DurationDays   int
	Reason         string
}

// ResumeRequest описывает возобновление подписки.
type ResumeRequest struct {
	SubscriptionID uuid.UUID
}

// RenewRequest описывает продление подписки.
type RenewRequest struct {
	SubscriptionID uuid.UUID
}

// Result содержит итог успешной операции.
type Result struct {
	Subscription *models.Subscription `json:"subscription"`
	EffectiveAt  time.Time            `json:"effective_at"`
	Refund       *decimal.Decimal     `json:"refund,omitempty"`
}
