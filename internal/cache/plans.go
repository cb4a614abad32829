package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Store — кеш, используемый декоратором каталога.
type Store interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// PlanCatalog кеширует чтение планов. Ошибки кеша не мешают чтению из источника.
// Потребление и подписки здесь не кешируются.
type PlanCatalog struct {
	next  lifecycle.PlanCatalog
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

// NewPlanCatalog оборачивает next кешем с временем жизни ttl.
func NewPlanCatalog(next lifecycle.PlanCatalog, store Store, ttl time.Duration, log *slog.Logger) *PlanCatalog {
	return &PlanCatalog{
		next:  next,
		store: store,
		ttl:   ttl,
		log:   log,
	}
}

// PlanKey — ключ плана в кеше.
func PlanKey(id uuid.UUID) string {
	return "plan:" + id.String()
}

// GetPlan возвращает план из кеша или из источника.
func (c *PlanCatalog) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const op = "cache.PlanCatalog.GetPlan"
	log := c.log.With(slog.String("op", op), slog.String("plan_id", id.String()))
	key := PlanKey(id)

	var cached models.Plan
	found, err := c.store.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("failed to read plan from cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	plan, err := c.next.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, plan, c.ttl); err != nil {
		log.Warn("failed to cache plan", sl.Err(err))
	}
	return plan, nil
}

// Forget удаляет план из кеша после изменения в каталоге.
func (c *PlanCatalog) Forget(ctx context.Context, id uuid.UUID) {
	if err := c.store.Invalidate(ctx, PlanKey(id)); err != nil {
		c.log.Warn("failed to invalidate plan cache", slog.String("plan_id", id.String()), sl.Err(err))
	}
}
