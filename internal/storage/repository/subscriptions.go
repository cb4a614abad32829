package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

const subscriptionColumns = `id, user_id, plan_id, status, billing_cycle, price, quota, discount_percent,
	current_period_start, current_period_end, next_billing_date, trial_start, trial_end,
	cancelled_at, cancel_reason, paused_at, pause_duration_days, auto_renew,
	scheduled_plan_id, scheduled_price, scheduled_quota, scheduled_cycle, scheduled_effective_at,
	version, created_at, updated_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (*models.Subscription, error) {
	var (
		sub         models.Subscription
		schedPlan   uuid.NullUUID
		schedPrice  decimal.NullDecimal
		schedQuota  sql.NullInt64
		schedCycle  sql.NullString
		schedEffect sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.BillingCycle, &sub.Price, &sub.Quota,
		&sub.DiscountPercent, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.NextBillingDate,
		&sub.TrialStart, &sub.TrialEnd, &sub.CancelledAt, &sub.CancelReason, &sub.PausedAt,
		&sub.PauseDurationDays, &sub.AutoRenew,
		&schedPlan, &schedPrice, &schedQuota, &schedCycle, &schedEffect,
		&sub.Version, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if schedPlan.Valid {
		sub.Scheduled = &models.ScheduledChange{
			PlanID: schedPlan.UUID,
			Terms: models.Terms{
				Price: schedPrice.Decimal,
				Quota: schedQuota.Int64,
				Cycle: models.Cycle(schedCycle.String),
			},
			EffectiveAt: schedEffect.Time,
		}
	}
	return &sub, nil
}

// scheduledArgs раскладывает отложенное изменение по колонкам.
func scheduledArgs(sc *models.ScheduledChange) []any {
	if sc == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{sc.PlanID, sc.Terms.Price, sc.Terms.Quota, string(sc.Terms.Cycle), sc.EffectiveAt}
}

// GetByID возвращает подписку по ID.
func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetActiveForUserAndPlan возвращает живую подписку пользователя на план.
func (s *Storage) GetActiveForUserAndPlan(ctx context.Context, userID string, planID uuid.UUID) (*models.Subscription, error) {
	const op = "storage.GetActiveForUserAndPlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE user_id = $1 AND plan_id = $2 AND status IN ('trial', 'active', 'paused')`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// Create вставляет подписку. Нарушение частичного уникального индекса
// по (user_id, plan_id) возвращается как ErrDuplicateSubscription.
func (s *Storage) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	const op = "storage.CreateSubscription"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO subscriptions (id, user_id, plan_id, status, billing_cycle, price, quota,
				  discount_percent, current_period_start, current_period_end, next_billing_date,
				  trial_start, trial_end, cancelled_at, cancel_reason, paused_at, pause_duration_days,
				  auto_renew, scheduled_plan_id, scheduled_price, scheduled_quota, scheduled_cycle,
				  scheduled_effective_at, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
				  $19, $20, $21, $22, $23, $24, $25, $26)
			  RETURNING ` + subscriptionColumns

	version := max(sub.Version, 1)
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	args := []any{sub.ID, sub.UserID, sub.PlanID, string(sub.Status), string(sub.BillingCycle), sub.Price,
		sub.Quota, sub.DiscountPercent, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.NextBillingDate,
		sub.TrialStart, sub.TrialEnd, sub.CancelledAt, sub.CancelReason, sub.PausedAt, sub.PauseDurationDays,
		sub.AutoRenew}
	args = append(args, scheduledArgs(sub.Scheduled)...)
	args = append(args, version, createdAt, createdAt)

	created, err := scanSubscription(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrDuplicateSubscription)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// ConditionalUpdate перечитывает подписку под блокировкой строки и применяет patch
// в той же транзакции, только если статус и версия совпадают с ожидаемыми.
func (s *Storage) ConditionalUpdate(ctx context.Context, id uuid.UUID, expect lifecycle.Expectation, patch lifecycle.Patch) (*models.Subscription, error) {
	const op = "storage.ConditionalUpdate"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanSubscription(tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cur.Status != expect.Status || cur.Version != expect.Version {
		return nil, fmt.Errorf("%s: %w: expected %s/v%d, found %s/v%d",
			op, lifecycle.ErrConflict, expect.Status, expect.Version, cur.Status, cur.Version)
	}

	patch.Apply(cur)

	query := `UPDATE subscriptions
			  SET plan_id = $3, status = $4, billing_cycle = $5, price = $6, quota = $7,
				  current_period_start = $8, current_period_end = $9, next_billing_date = $10,
				  cancelled_at = $11, cancel_reason = $12, paused_at = $13, pause_duration_days = $14,
				  auto_renew = $15, scheduled_plan_id = $16, scheduled_price = $17, scheduled_quota = $18,
				  scheduled_cycle = $19, scheduled_effective_at = $20,
				  version = version + 1, updated_at = now()
			  WHERE id = $1 AND version = $2
			  RETURNING ` + subscriptionColumns
	args := []any{id, expect.Version, cur.PlanID, string(cur.Status), string(cur.BillingCycle), cur.Price, cur.Quota,
		cur.CurrentPeriodStart, cur.CurrentPeriodEnd, cur.NextBillingDate, cur.CancelledAt, cur.CancelReason,
		cur.PausedAt, cur.PauseDurationDays, cur.AutoRenew}
	args = append(args, scheduledArgs(cur.Scheduled)...)

	updated, err := scanSubscription(tx.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrConflict)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrDuplicateSubscription)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// ListByUser возвращает подписки пользователя, новые первыми.
func (s *Storage) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptionsByUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE user_id = $1
			  ORDER BY created_at DESC, id
			  LIMIT $2 OFFSET $3`
	return s.querySubscriptions(ctx, op, query, userID, limit, offset)
}

// ListAll возвращает все подписки для администратора.
func (s *Storage) ListAll(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	const op = "storage.ListAllSubscriptions"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  ORDER BY created_at DESC, id
			  LIMIT $1 OFFSET $2`
	return s.querySubscriptions(ctx, op, query, limit, offset)
}

// DuePeriodEnds возвращает подписки в статусе trial или active, период которых
// закончился к моменту now. Решение, продлевать или завершать, принимает планировщик.
func (s *Storage) DuePeriodEnds(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	const op = "storage.DuePeriodEnds"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE status IN ('trial', 'active') AND current_period_end <= $1
			  ORDER BY current_period_end
			  LIMIT $2`
	return s.querySubscriptions(ctx, op, query, now, limit)
}

// ElapsedPauses возвращает приостановленные подписки, срок паузы которых истёк.
func (s *Storage) ElapsedPauses(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error) {
	const op = "storage.ElapsedPauses"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE status = 'paused'
				AND pause_duration_days IS NOT NULL
				AND paused_at + make_interval(days => pause_duration_days) <= $1
			  ORDER BY paused_at
			  LIMIT $2`
	return s.querySubscriptions(ctx, op, query, now, limit)
}

func (s *Storage) querySubscriptions(ctx context.Context, op, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}
