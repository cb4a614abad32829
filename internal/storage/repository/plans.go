package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

const planColumns = `id, name, price, billing_cycle, quota, trial_days, is_active, created_at, updated_at`

func scanPlan(row interface{ Scan(dest ...any) error }) (*models.Plan, error) {
	var p models.Plan
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.BillingCycle, &p.Quota,
		&p.TrialDays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlan добавляет план в каталог.
func (s *Storage) CreatePlan(ctx context.Context, p models.Plan) (*models.Plan, error) {
	const op = "storage.CreatePlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO plans (name, price, billing_cycle, quota, trial_days, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING ` + planColumns
	created, err := scanPlan(s.DB.QueryRowContext(ctx, query,
		p.Name, p.Price, string(p.BillingCycle), p.Quota, p.TrialDays, p.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrPlanExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetPlan возвращает план по ID.
func (s *Storage) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const op = "storage.GetPlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPlan(s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ListPlans возвращает планы каталога, по умолчанию только активные.
func (s *Storage) ListPlans(ctx context.Context, includeInactive bool) ([]*models.Plan, error) {
	const op = "storage.ListPlans"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + planColumns + ` FROM plans
			  WHERE is_active OR $1
			  ORDER BY price, name`
	rows, err := s.DB.QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// RenamePlan меняет название плана. Условия тарифа не меняются:
// подписки хранят собственный снимок цены и квоты.
func (s *Storage) RenamePlan(ctx context.Context, id uuid.UUID, name string) (*models.Plan, error) {
	const op = "storage.RenamePlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE plans SET name = $2, updated_at = now()
			  WHERE id = $1
			  RETURNING ` + planColumns
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, id, name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%s: %w", op, storage.ErrPlanExists)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// DeactivatePlan снимает план с продажи. План с живыми подписками не деактивируется.
// Планы никогда не удаляются физически.
func (s *Storage) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeactivatePlan"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT TRUE FROM plans WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, lifecycle.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var live int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions
			  WHERE plan_id = $1 AND status IN ('trial', 'active', 'paused')`, id).Scan(&live)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if live > 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrPlanInUse)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE plans SET is_active = FALSE, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
