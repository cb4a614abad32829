// Package plans администрирует каталог тарифов.
package plans

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Repository — хранилище каталога.
type Repository interface {
	CreatePlan(ctx context.Context, p models.Plan) (*models.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error)
	RenamePlan(ctx context.Context, id uuid.UUID, name string) (*models.Plan, error)
	DeactivatePlan(ctx context.Context, id uuid.UUID) error
}

// Cache сбрасывает закэшированный план после изменения.
type Cache interface {
	Forget(ctx context.Context, id uuid.UUID)
}

// Service — операции над каталогом.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// NewService создаёт Service. cache может быть nil.
func NewService(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Create проверяет и сохраняет новый план. План создаётся активным.
func (s *Service) Create(ctx context.Context, req models.DummyPlan) (*models.Plan, error) {
	const op = "plans.Create"

	plan, err := planFrom(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	created, err := s.repo.CreatePlan(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("plan created", slog.String("plan_id", created.ID.String()), slog.String("name", created.Name))
	return created, nil
}

// Get возвращает план по ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const op = "plans.Get"
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// List возвращает планы каталога.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]*models.Plan, error) {
	const op = "plans.List"
	list, err := s.repo.ListPlans(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// Rename меняет только название плана.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Plan, error) {
	const op = "plans.Rename"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: name is required", op, lifecycle.ErrInvalidArgument)
	}
	p, err := s.repo.RenamePlan(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.forget(ctx, id)
	return p, nil
}

// Deactivate снимает план с продажи, если у него нет живых подписок.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	const op = "plans.Deactivate"
	if err := s.repo.DeactivatePlan(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.forget(ctx, id)
	s.log.Info("plan deactivated", slog.String("plan_id", id.String()))
	return nil
}

func (s *Service) forget(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.Forget(ctx, id)
	s.log.Debug("plan cache invalidated", slog.String("plan_id", id.String()))
}

func planFrom(req models.DummyPlan) (models.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.Plan{}, fmt.Errorf("%w: name is required", lifecycle.ErrInvalidArgument)
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return models.Plan{}, fmt.Errorf("%w: price: %w", lifecycle.ErrInvalidArgument, err)
	}
	if price.IsNegative() {
		return models.Plan{}, fmt.Errorf("%w: price must not be negative", lifecycle.ErrInvalidArgument)
	}
	if !price.Equal(price.Round(2)) {
		return models.Plan{}, fmt.Errorf("%w: price has more than two decimal places", lifecycle.ErrInvalidArgument)
	}
	c := models.Cycle(req.BillingCycle)
	if !c.Valid() {
		return models.Plan{}, fmt.Errorf("%w: unknown billing cycle %q", lifecycle.ErrInvalidArgument, req.BillingCycle)
	}
	if req.Quota < models.Unlimited {
		return models.Plan{}, fmt.Errorf("%w: quota must be non-negative or -1 for unlimited", lifecycle.ErrInvalidArgument)
	}
	if req.TrialDays < 0 {
		return models.Plan{}, fmt.Errorf("%w: trial days must not be negative", lifecycle.ErrInvalidArgument)
	}
	return models.Plan{
		Name:         name,
		Price:        price,
		BillingCycle: c,
		Quota:        req.Quota,
		TrialDays:    req.TrialDays,
		IsActive:     true,
	}, nil
}
