package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingKind — вид записи биллинга.
type BillingKind string

const (
	BillingKindCharge BillingKind = "charge"
	BillingKindRefund BillingKind = "refund"
)

// BillingStatus — статус записи биллинга. Жизненным циклом записи владеет биллинг.
type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "pending"
	BillingStatusCompleted BillingStatus = "completed"
	BillingStatusFailed    BillingStatus = "failed"
	BillingStatusCancelled BillingStatus = "cancelled"
)

// BillingRequest — запрос на создание записи биллинга, который движок
// отправляет после операций, меняющих условия оплаты.
type BillingRequest struct {
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	UserID          string          `json:"user_id"`
	Kind            BillingKind     `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	BillingDate     time.Time       `json:"billing_date"`
	NextBillingDate *time.Time      `json:"next_billing_date,omitempty"`
	Note            string          `json:"note"`
}

// BillingRecord — запись биллинга, созданная воркером по запросу.
type BillingRecord struct {
	ID              uuid.UUID       `json:"id"`
	SubscriptionID  uuid.UUID       `json:"subscription_id"`
	Kind            BillingKind     `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	BillingDate     time.Time       `json:"billing_date"`
	NextBillingDate *time.Time      `json:"next_billing_date,omitempty"`
	Status          BillingStatus   `json:"status"`
	Note            string          `json:"note"`
	CreatedAt       time.Time       `json:"created_at"`
}
