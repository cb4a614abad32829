package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// CompareTerms сравнивает условия: сначала цена, при равной цене квота.
// Безлимитная квота больше любой конечной.
func CompareTerms(current, target models.Terms) int {
	if c := target.Price.Cmp(current.Price); c != 0 {
		return c
	}
	return models.CompareQuota(target.Quota, current.Quota)
}

// CheckUpgrade проверяет, что target строго лучше current.
func CheckUpgrade(current, target models.Terms) error {
	if CompareTerms(current, target) <= 0 {
		return ErrNotAnUpgrade
	}
	return nil
}

// DowngradeCheck — результат проверки понижения тарифа.
// Usage заполнен, если потребление запрашивалось.
type DowngradeCheck struct {
	Usage *int64
}

// CheckDowngrade проверяет, что target строго хуже current и что текущее потребление
// помещается в квоту target. Потребление читается ровно один раз.
// С override проверка потребления не выполняется.
// Недоступность источника потребления даёт ErrDependencyUnavailable.
func CheckDowngrade(ctx context.Context, usage UsageAccessor, subID uuid.UUID, current, target models.Terms, override bool) (DowngradeCheck, error) {
	if CompareTerms(current, target) >= 0 {
		return DowngradeCheck{}, ErrNotADowngrade
	}
	if override || target.Quota == models.Unlimited {
		return DowngradeCheck{}, nil
	}
	if usage == nil {
		return DowngradeCheck{}, fmt.Errorf("%w: usage accessor is not configured", ErrDependencyUnavailable)
	}

	used, err := usage.GetCurrentUsage(ctx, subID)
	if err != nil {
		if errors.Is(err, ErrDependencyUnavailable) {
			return DowngradeCheck{}, err
		}
		return DowngradeCheck{}, errors.Join(ErrDependencyUnavailable, err)
	}
	if !models.QuotaAllows(target.Quota, used) {
		return DowngradeCheck{Usage: &used}, fmt.Errorf("%w: usage %d, target quota %d", ErrUsageExceedsTarget, used, target.Quota)
	}
	return DowngradeCheck{Usage: &used}, nil
}
