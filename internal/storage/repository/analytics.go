package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/cycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Summary собирает сводку: число подписок по статусам, MRR активных подписок
// и сумму списаний за вычетом возвратов.
func (s *Storage) Summary(ctx context.Context) (*models.Summary, error) {
	const op = "storage.Summary"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	summary := &models.Summary{
		ByStatus:                make(map[models.Status]int),
		MonthlyRecurringRevenue: decimal.Zero,
		BilledTotal:             decimal.Zero,
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for rows.Next() {
		var (
			status models.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		summary.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err = s.DB.QueryContext(ctx, `SELECT billing_cycle,
				  COALESCE(SUM(price * (100 - discount_percent) / 100), 0)
			  FROM subscriptions
			  WHERE status = 'active'
			  GROUP BY billing_cycle`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for rows.Next() {
		var (
			c     models.Cycle
			total decimal.Decimal
		)
		if err := rows.Scan(&c, &total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		factor, err := cycle.MonthlyFactor(c)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		summary.MonthlyRecurringRevenue = summary.MonthlyRecurringRevenue.Add(total.Mul(factor))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	summary.MonthlyRecurringRevenue = summary.MonthlyRecurringRevenue.Round(2)

	err = s.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(CASE WHEN kind = 'refund' THEN -amount ELSE amount END), 0)
			  FROM billing_records
			  WHERE status IN ('pending', 'completed')`).Scan(&summary.BilledTotal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}
