// Package scheduler периодически переводит подписки, у которых наступил срок:
// завершает пробные периоды, продлевает или завершает оплаченные периоды
// и возобновляет приостановленные подписки.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// SubscriptionRepository отдаёт подписки, по которым наступил срок.
type SubscriptionRepository interface {
	DuePeriodEnds(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	ElapsedPauses(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
}

// Engine описывает переходы, которые выполняет планировщик.
type Engine interface {
	ActivateTrial(ctx context.Context, id uuid.UUID) (*lifecycle.Result, error)
	Rollover(ctx context.Context, id uuid.UUID) (*lifecycle.Result, error)
	Expire(ctx context.Context, id uuid.UUID) (*lifecycle.Result, error)
	Resume(ctx context.Context, req lifecycle.ResumeRequest) (*lifecycle.Result, error)
}

// Stats содержит итог одного прохода.
type Stats struct {
	Processed int
	Failed    int
}

// SchedulerService выполняет проходы по расписанию.
type SchedulerService struct {
	repo      SubscriptionRepository
	engine    Engine
	interval  time.Duration
	batchSize int
	now       func() time.Time
	log       *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo SubscriptionRepository, engine Engine, interval time.Duration, batchSize int, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:      repo,
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// Run выполняет проход сразу и затем по таймеру, пока не отменён ctx.
func (s *SchedulerService) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep обрабатывает одну партию подписок с истёкшим периодом и одну партию
// истёкших пауз. Ошибка по одной подписке не останавливает проход.
func (s *SchedulerService) Sweep(ctx context.Context) Stats {
	const op = "scheduler.Sweep"
	log := s.log.With(slog.String("op", op))
	now := s.now()
	var stats Stats

	due, err := s.repo.DuePeriodEnds(ctx, now, s.batchSize)
	if err != nil {
		log.Error("failed to find due subscriptions", sl.Err(err))
	}
	for _, sub := range due {
		if ctx.Err() != nil {
			return stats
		}
		s.track(log, sub, s.closePeriod(ctx, sub), &stats)
	}

	paused, err := s.repo.ElapsedPauses(ctx, now, s.batchSize)
	if err != nil {
		log.Error("failed to find elapsed pauses", sl.Err(err))
	}
	for _, sub := range paused {
		if ctx.Err() != nil {
			return stats
		}
		_, err := s.engine.Resume(ctx, lifecycle.ResumeRequest{SubscriptionID: sub.ID})
		s.track(log, sub, err, &stats)
	}

	if stats.Processed+stats.Failed > 0 {
		log.Info("sweep finished", slog.Int("processed", stats.Processed), slog.Int("failed", stats.Failed))
	}
	return stats
}

func (s *SchedulerService) closePeriod(ctx context.Context, sub *models.Subscription) error {
	var err error
	switch {
	case !sub.AutoRenew:
		_, err = s.engine.Expire(ctx, sub.ID)
	case sub.Status == models.StatusTrial:
		_, err = s.engine.ActivateTrial(ctx, sub.ID)
	default:
		_, err = s.engine.Rollover(ctx, sub.ID)
	}
	return err
}

func (s *SchedulerService) track(log *slog.Logger, sub *models.Subscription, err error, stats *Stats) {
	if err != nil {
		stats.Failed++
		log.Warn("failed to advance subscription", sl.SubID(sub.ID),
			slog.String("status", string(sub.Status)), sl.Err(err))
		return
	}
	stats.Processed++
}
