package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/subscription-manager/internal/migrations"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, storage))

	return storage
}

func mustCreatePlan(t *testing.T, s *Storage, name, price string, quota int64) *models.Plan {
	t.Helper()
	p, err := s.CreatePlan(context.Background(), models.Plan{
		Name:         name,
		Price:        decimal.RequireFromString(price),
		BillingCycle: models.CycleMonthly,
		Quota:        quota,
		IsActive:     true,
	})
	require.NoError(t, err)
	return p
}

func newActiveSubscription(userID string, plan *models.Plan, start time.Time) *models.Subscription {
	end := start.AddDate(0, 1, 0)
	return &models.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanID:             plan.ID,
		Status:             models.StatusActive,
		BillingCycle:       plan.BillingCycle,
		Price:              plan.Price,
		Quota:              plan.Quota,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		NextBillingDate:    &end,
		AutoRenew:          true,
		Version:            1,
		CreatedAt:          start,
	}
}
