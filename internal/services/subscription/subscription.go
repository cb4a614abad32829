// Package subscription — прикладной слой над движком жизненного цикла:
// проверяет владельца подписки, разбирает входные данные и отдаёт проекции для чтения.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// ErrForbidden возвращается, когда пользователь обращается к чужой подписке.
var ErrForbidden = errors.New("access denied")

// Actor — вызывающий пользователь, извлечённый из токена.
type Actor struct {
	UserID string
	Admin  bool
}

// Engine — операции жизненного цикла, доступные через API.
type Engine interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*lifecycle.Result, error)
	Upgrade(ctx context.Context, req lifecycle.UpgradeRequest) (*lifecycle.Result, error)
	Downgrade(ctx context.Context, req lifecycle.DowngradeRequest) (*lifecycle.Result, error)
	Cancel(ctx context.Context, req lifecycle.CancelRequest) (*lifecycle.Result, error)
	Pause(ctx context.Context, req lifecycle.PauseRequest) (*lifecycle.Result, error)
	Resume(ctx context.Context, req lifecycle.ResumeRequest) (*lifecycle.Result, error)
	Renew(ctx context.Context, req lifecycle.RenewRequest) (*lifecycle.Result, error)
}

// SubscriptionRepository определяет чтения, которые не проходят через движок.
type SubscriptionRepository interface {
	// GetByID возвращает подписку по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// ListByUser возвращает подписки пользователя с пагинацией.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Subscription, error)
	// ListAll возвращает все подписки с пагинацией.
	ListAll(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	// History возвращает журнал переходов подписки.
	History(ctx context.Context, subscriptionID uuid.UUID) ([]models.LifecycleLogEntry, error)
	// ListBillingRecords возвращает записи биллинга подписки.
	ListBillingRecords(ctx context.Context, subscriptionID uuid.UUID) ([]*models.BillingRecord, error)
	// Summary считает сводку по всем подпискам.
	Summary(ctx context.Context) (*models.Summary, error)
}

// SubscriptionService объединяет движок и чтения.
type SubscriptionService struct {
	engine Engine
	repo   SubscriptionRepository
}

// NewSubscriptionService создаёт SubscriptionService.
func NewSubscriptionService(engine Engine, repo SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{
		engine: engine,
		repo:   repo,
	}
}

// Create оформляет подписку на вызывающего пользователя. Без явного
// auto_renew подписка продлевается автоматически.
func (s *SubscriptionService) Create(ctx context.Context, actor Actor, req models.DummySubscription) (*lifecycle.Result, error) {
	const op = "subscription.Create"
	planID, err := parseID(req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	return s.engine.Create(ctx, lifecycle.CreateRequest{
		UserID:          actor.UserID,
		PlanID:          planID,
		AutoRenew:       autoRenew,
		DiscountPercent: req.DiscountPercent,
	})
}

// Get возвращает подписку владельцу или администратору.
func (s *SubscriptionService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Subscription, error) {
	return s.authorize(ctx, "subscription.Get", actor, id)
}

// List возвращает подписки пользователя. Администратор видит все подписки.
func (s *SubscriptionService) List(ctx context.Context, actor Actor, limit, offset int) ([]*models.Subscription, error) {
	const op = "subscription.List"
	var (
		list []*models.Subscription
		err  error
	)
	if actor.Admin {
		list, err = s.repo.ListAll(ctx, limit, offset)
	} else {
		list, err = s.repo.ListByUser(ctx, actor.UserID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// Upgrade повышает тариф подписки.
func (s *SubscriptionService) Upgrade(ctx context.Context, actor Actor, id uuid.UUID, req models.DummyUpgrade) (*lifecycle.Result, error) {
	const op = "subscription.Upgrade"
	target, err := parseID(req.TargetPlanID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.authorize(ctx, op, actor, id); err != nil {
		return nil, err
	}
	return s.engine.Upgrade(ctx, lifecycle.UpgradeRequest{SubscriptionID: id, TargetPlanID: target})
}

// Downgrade понижает тариф подписки. Обход проверки потребления доступен
// только администратору.
func (s *SubscriptionService) Downgrade(ctx context.Context, actor Actor, id uuid.UUID, req models.DummyDowngrade) (*lifecycle.Result, error) {
	const op = "subscription.Downgrade"
	target, err := parseID(req.TargetPlanID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.OverrideUsage && !actor.Admin {
		return nil, fmt.Errorf("%s: %w: usage override requires admin", op, ErrForbidden)
	}
	if _, err := s.authorize(ctx, op, actor, id); err != nil {
		return nil, err
	}
	return s.engine.Downgrade(ctx, lifecycle.DowngradeRequest{
		SubscriptionID: id,
		TargetPlanID:   target,
		Immediate:      req.Immediate,
		OverrideUsage:  req.OverrideUsage,
	})
}

// Cancel отменяет подписку.
func (s *SubscriptionService) Cancel(ctx context.Context, actor Actor, id uuid.UUID, req models.DummyCancel) (*lifecycle.Result, error) {
	if _, err := s.authorize(ctx, "subscription.Cancel", actor, id); err != nil {
		return nil, err
	}
	return s.engine.Cancel(ctx, lifecycle.CancelRequest{
		SubscriptionID: id,
		Reason:         req.Reason,
		Immediate:      req.Immediate,
	})
}

// Pause приостанавливает подписку.
func (s *SubscriptionService) Pause(ctx context.Context, actor Actor, id uuid.UUID, req models.DummyPause) (*lifecycle.Result, error) {
	if _, err := s.authorize(ctx, "subscription.Pause", actor, id); err != nil {
		return nil, err
	}
	return s.engine.Pause(ctx, lifecycle.PauseRequest{
		SubscriptionID: id,
		DurationDays:   req.DurationDays,
		Reason:         req.Reason,
	})
}

// Resume возобновляет подписку.
func (s *SubscriptionService) Resume(ctx context.Context, actor Actor, id uuid.UUID) (*lifecycle.Result, error) {
	if _, err := s.authorize(ctx, "subscription.Resume", actor, id); err != nil {
		return nil, err
	}
	return s.engine.Resume(ctx, lifecycle.ResumeRequest{SubscriptionID: id})
}

// Renew выставляет счёт за текущий период.
func (s *SubscriptionService) Renew(ctx context.Context, actor Actor, id uuid.UUID) (*lifecycle.Result, error) {
	if _, err := s.authorize(ctx, "subscription.Renew", actor, id); err != nil {
		return nil, err
	}
	return s.engine.Renew(ctx, lifecycle.RenewRequest{SubscriptionID: id})
}

// History возвращает журнал переходов.
func (s *SubscriptionService) History(ctx context.Context, actor Actor, id uuid.UUID) ([]models.LifecycleLogEntry, error) {
	const op = "subscription.History"
	if _, err := s.authorize(ctx, op, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// Billing возвращает записи биллинга.
func (s *SubscriptionService) Billing(ctx context.Context, actor Actor, id uuid.UUID) ([]*models.BillingRecord, error) {
	const op = "subscription.Billing"
	if _, err := s.authorize(ctx, op, actor, id); err != nil {
		return nil, err
	}
	records, err := s.repo.ListBillingRecords(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// Summary доступна только администратору.
func (s *SubscriptionService) Summary(ctx context.Context, actor Actor) (*models.Summary, error) {
	const op = "subscription.Summary"
	if !actor.Admin {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	sum, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sum, nil
}

func (s *SubscriptionService) authorize(ctx context.Context, op string, actor Actor, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !actor.Admin && sub.UserID != actor.UserID {
		return nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	return sub, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", lifecycle.ErrInvalidArgument, raw)
	}
	return id, nil
}
