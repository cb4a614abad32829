package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// PlanCatalog читает каталог тарифов.
type PlanCatalog interface {
	// GetPlan возвращает план по ID или ErrNotFound.
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// Expectation — состояние подписки, которое движок ожидает застать при обновлении.
type Expectation struct {
	Status  models.Status
	Version int
}

// SubscriptionStore хранит подписки.
type SubscriptionStore interface {
	// GetByID возвращает подписку или ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// GetActiveForUserAndPlan возвращает подписку в статусе trial, active или paused
	// для пары (пользователь, план) или ErrNotFound.
	GetActiveForUserAndPlan(ctx context.Context, userID string, planID uuid.UUID) (*models.Subscription, error)
	// Create сохраняет новую подписку. Нарушение уникальности пары даёт ErrDuplicateSubscription.
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	// ConditionalUpdate перечитывает подписку в той же транзакции, что и обновление,
	// и применяет patch только если статус и версия совпадают с expect.
	// Иначе возвращает ErrConflict. Версия увеличивается на единицу.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expect Expectation, patch Patch) (*models.Subscription, error)
}

// UsageAccessor отдаёт текущее потребление по подписке.
type UsageAccessor interface {
	GetCurrentUsage(ctx context.Context, subscriptionID uuid.UUID) (int64, error)
}

// BillingRequester принимает запросы на создание записей биллинга.
type BillingRequester interface {
	RequestBillingRecord(ctx context.Context, req models.BillingRequest) error
}

// LifecycleLog — журнал переходов, только добавление.
type LifecycleLog interface {
	Append(ctx context.Context, entry models.LifecycleLogEntry) error
}

// Recorder получает результат каждой операции для метрик.
type Recorder interface {
	ObserveTransition(action models.Action, result string)
	ObserveBillingRequest(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(models.Action, string) {}
func (nopRecorder) ObserveBillingRequest(string)            {}
