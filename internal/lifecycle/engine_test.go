package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/memory"
)

var t0 = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeBilling struct {
	mu   sync.Mutex
	reqs []models.BillingRequest
	err  error
}

func (f *fakeBilling) RequestBillingRecord(_ context.Context, req models.BillingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeBilling) Requests() []models.BillingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BillingRequest(nil), f.reqs...)
}

type MockUsage struct {
	mock.Mock
}

func (m *MockUsage) GetCurrentUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Append(ctx context.Context, entry models.LifecycleLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type countingRecorder struct {
	mu          sync.Mutex
	transitions map[string]int
	billing     map[string]int
}

func (r *countingRecorder) ObserveTransition(action models.Action, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[string(action)+"/"+result]++
}

func (r *countingRecorder) ObserveBillingRequest(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.billing[result]++
}

func plan(name, price string, quota int64, c models.Cycle, trialDays int) models.Plan {
	return models.Plan{
		ID:           uuid.New(),
		Name:         name,
		Price:        decimal.RequireFromString(price),
		BillingCycle: c,
		Quota:        quota,
		TrialDays:    trialDays,
		IsActive:     true,
	}
}

type fixture struct {
	store   *memory.Store
	billing *fakeBilling
	clock   *clock
	rec     *countingRecorder
	engine  *lifecycle.Engine

	basic     models.Plan // 10, quota 100, monthly
	pro       models.Plan // 20, quota 500, monthly
	small     models.Plan // 5, quota 40, monthly
	unlimited models.Plan // 20, unlimited, monthly
	yearly    models.Plan // 100, quota 500, yearly
	trial     models.Plan // 10, quota 100, monthly, 14 trial days
	retired   models.Plan
}

type fixtureOpts struct {
	usage   lifecycle.UsageAccessor
	journal lifecycle.LifecycleLog
	subs    func(*memory.Store) lifecycle.SubscriptionStore
}

func newFixture(t *testing.T, opts ...func(*fixtureOpts)) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.New(),
		billing:   &fakeBilling{},
		clock:     &clock{t: t0},
		rec:       &countingRecorder{transitions: map[string]int{}, billing: map[string]int{}},
		basic:     plan("basic", "10", 100, models.CycleMonthly, 0),
		pro:       plan("pro", "20", 500, models.CycleMonthly, 0),
		small:     plan("small", "5", 40, models.CycleMonthly, 0),
		unlimited: plan("unlimited", "20", models.Unlimited, models.CycleMonthly, 0),
		yearly:    plan("yearly", "100", 500, models.CycleYearly, 0),
		trial:     plan("trial", "10", 100, models.CycleMonthly, 14),
		retired:   plan("retired", "1", 1, models.CycleMonthly, 0),
	}
	f.retired.IsActive = false
	for _, p := range []models.Plan{f.basic, f.pro, f.small, f.unlimited, f.yearly, f.trial, f.retired} {
		f.store.PutPlan(p)
	}

	o := fixtureOpts{usage: f.store, journal: f.store}
	for _, opt := range opts {
		opt(&o)
	}
	var subs lifecycle.SubscriptionStore = f.store
	if o.subs != nil {
		subs = o.subs(f.store)
	}

	f.engine = lifecycle.New(f.store, subs, o.usage, f.billing, o.journal, newNoopLogger(),
		lifecycle.WithClock(f.clock.Now),
		lifecycle.WithRecorder(f.rec),
	)
	return f
}

func (f *fixture) subscribe(t *testing.T, p models.Plan) *models.Subscription {
	t.Helper()
	res, err := f.engine.Create(context.Background(), lifecycle.CreateRequest{
		UserID:    "user-1",
		PlanID:    p.ID,
		AutoRenew: true,
	})
	require.NoError(t, err)
	return res.Subscription
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *models.Subscription {
	t.Helper()
	sub, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (f *fixture) history(t *testing.T, id uuid.UUID) []models.LifecycleLogEntry {
	t.Helper()
	h, err := f.store.History(context.Background(), id)
	require.NoError(t, err)
	return h
}

// checkInvariants проверяет инварианты, которые должны выполняться после любой операции.
func checkInvariants(t *testing.T, sub *models.Subscription) {
	t.Helper()
	assert.Equal(t, sub.Status == models.StatusCancelled, sub.CancelledAt != nil, "cancelled <=> cancelled_at")
	assert.Equal(t, sub.Status == models.StatusPaused, sub.PausedAt != nil, "paused <=> paused_at")
	assert.False(t, sub.CurrentPeriodEnd.Before(sub.CurrentPeriodStart), "period end before start")
}

func TestEngine_CreateActive(t *testing.T) {
	f := newFixture(t)

	sub := f.subscribe(t, f.basic)

	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, t0, sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	require.NotNil(t, sub.NextBillingDate)
	assert.Equal(t, sub.CurrentPeriodEnd, *sub.NextBillingDate)
	assert.Equal(t, f.basic.Quota, sub.Quota)
	assert.True(t, sub.Price.Equal(f.basic.Price))
	checkInvariants(t, sub)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.BillingKindCharge, reqs[0].Kind)
	assert.Equal(t, "10", reqs[0].Amount.String())
	assert.Equal(t, t0, reqs[0].BillingDate)

	h := f.history(t, sub.ID)
	require.Len(t, h, 1)
	assert.Equal(t, models.ActionCreate, h[0].Action)
	assert.Equal(t, models.StatusActive, h[0].Metadata.NextStatus)
}

func TestEngine_CreateTrial(t *testing.T) {
	f := newFixture(t)

	sub := f.subscribe(t, f.trial)

	trialEnd := t0.AddDate(0, 0, 14)
	assert.Equal(t, models.StatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, trialEnd, *sub.TrialEnd)
	assert.Equal(t, trialEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, trialEnd, *sub.NextBillingDate)

	// Первое списание выставляется при завершении пробного периода.
	assert.Empty(t, f.billing.Requests())
}

func TestEngine_CreateFailures(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, f.basic)

	tests := []struct {
		name    string
		req     lifecycle.CreateRequest
		wantErr error
	}{
		{
			name:    "план деактивирован",
			req:     lifecycle.CreateRequest{UserID: "user-1", PlanID: f.retired.ID},
			wantErr: lifecycle.ErrPlanUnavailable,
		},
		{
			name:    "план не найден",
			req:     lifecycle.CreateRequest{UserID: "user-1", PlanID: uuid.New()},
			wantErr: lifecycle.ErrNotFound,
		},
		{
			name:    "повторная подписка",
			req:     lifecycle.CreateRequest{UserID: "user-1", PlanID: f.basic.ID},
			wantErr: lifecycle.ErrDuplicateSubscription,
		},
		{
			name:    "скидка больше 100",
			req:     lifecycle.CreateRequest{UserID: "user-1", PlanID: f.pro.ID, DiscountPercent: 150},
			wantErr: lifecycle.ErrInvalidArgument,
		},
		{
			name:    "пустой пользователь",
			req:     lifecycle.CreateRequest{PlanID: f.pro.ID},
			wantErr: lifecycle.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Len(t, f.billing.Requests(), 1)
}

func TestEngine_CreateAfterCancelAllowed(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)

	_, err := f.engine.Cancel(context.Background(), lifecycle.CancelRequest{SubscriptionID: sub.ID})
	require.NoError(t, err)

	again := f.subscribe(t, f.basic)
	assert.NotEqual(t, sub.ID, again.ID)
}

func TestEngine_CancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.basic)

	res, err := f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: sub.ID, Reason: "too expensive"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.Subscription.Status)
	assert.False(t, res.Subscription.AutoRenew)
	assert.Nil(t, res.Subscription.NextBillingDate)
	require.NotNil(t, res.Subscription.CancelReason)
	assert.Equal(t, "too expensive", *res.Subscription.CancelReason)
	assert.Nil(t, res.Refund)
	checkInvariants(t, res.Subscription)

	before := f.get(t, sub.ID)
	f.clock.Advance(time.Hour)

	_, err = f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: sub.ID, Immediate: true})
	assert.ErrorIs(t, err, lifecycle.ErrAlreadyCancelled)
	assert.Equal(t, before, f.get(t, sub.ID))

	// Только списание при создании: отмена без immediate и повтор ничего не шлют.
	assert.Len(t, f.billing.Requests(), 1)
	assert.Len(t, f.history(t, sub.ID), 2)
	assert.Equal(t, 1, f.rec.transitions["cancel/rejected"])
}

func TestEngine_CreateThenImmediateCancelRefunds(t *testing.T) {
	tests := []struct {
		name       string
		after      time.Duration
		wantRefund string
	}{
		{name: "сразу", after: 0, wantRefund: "10"},
		{name: "через 10 дней из 30", after: 10 * 24 * time.Hour, wantRefund: "6.67"},
		{name: "после окончания периода", after: 31 * 24 * time.Hour, wantRefund: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.subscribe(t, f.basic)
			f.clock.Advance(tt.after)

			res, err := f.engine.Cancel(context.Background(), lifecycle.CancelRequest{SubscriptionID: sub.ID, Immediate: true})
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, res.Subscription.Status)
			require.NotNil(t, res.Refund)
			assert.True(t, decimal.RequireFromString(tt.wantRefund).Equal(*res.Refund), "refund %s", res.Refund)

			reqs := f.billing.Requests()
			if res.Refund.IsPositive() {
				require.Len(t, reqs, 2)
				assert.Equal(t, models.BillingKindRefund, reqs[1].Kind)
				assert.True(t, reqs[1].Amount.Equal(*res.Refund))
			} else {
				assert.Len(t, reqs, 1)
			}
		})
	}
}

func TestEngine_CancelDuringTrialLeavesNoCharge(t *testing.T) {
	tests := []struct {
		name      string
		immediate bool
	}{
		{name: "в конце периода", immediate: false},
		{name: "немедленно", immediate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			sub := f.subscribe(t, f.trial)
			f.clock.Advance(3 * 24 * time.Hour)

			res, err := f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: sub.ID, Immediate: tt.immediate})
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, res.Subscription.Status)
			if tt.immediate {
				require.NotNil(t, res.Refund)
				assert.True(t, res.Refund.IsZero())
			}
			assert.Empty(t, f.billing.Requests(), "cancelled trial must not be charged")

			f.clock.Advance(30 * 24 * time.Hour)
			_, err = f.engine.ActivateTrial(ctx, sub.ID)
			assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
			assert.Empty(t, f.billing.Requests())
		})
	}
}

func TestEngine_UpgradeOrdering(t *testing.T) {
	tests := []struct {
		name    string
		from    func(*fixture) models.Plan
		to      func(*fixture) models.Plan
		wantErr error
	}{
		{
			name: "дешевле к дороже",
			from: func(f *fixture) models.Plan { return f.basic },
			to:   func(f *fixture) models.Plan { return f.pro },
		},
		{
			name:    "дороже к дешевле",
			from:    func(f *fixture) models.Plan { return f.pro },
			to:      func(f *fixture) models.Plan { return f.basic },
			wantErr: lifecycle.ErrNotAnUpgrade,
		},
		{
			name: "та же цена, безлимит лучше",
			from: func(f *fixture) models.Plan { return f.pro },
			to:   func(f *fixture) models.Plan { return f.unlimited },
		},
		{
			name:    "безлимит к конечной квоте",
			from:    func(f *fixture) models.Plan { return f.unlimited },
			to:      func(f *fixture) models.Plan { return f.pro },
			wantErr: lifecycle.ErrNotAnUpgrade,
		},
		{
			name:    "на тот же план",
			from:    func(f *fixture) models.Plan { return f.basic },
			to:      func(f *fixture) models.Plan { return f.basic },
			wantErr: lifecycle.ErrNotAnUpgrade,
		},
		{
			name:    "целевой план деактивирован",
			from:    func(f *fixture) models.Plan { return f.basic },
			to:      func(f *fixture) models.Plan { return f.retired },
			wantErr: lifecycle.ErrPlanUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			from, to := tt.from(f), tt.to(f)
			sub := f.subscribe(t, from)

			res, err := f.engine.Upgrade(context.Background(), lifecycle.UpgradeRequest{SubscriptionID: sub.ID, TargetPlanID: to.ID})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, from.ID, f.get(t, sub.ID).PlanID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, to.ID, res.Subscription.PlanID)
			assert.Equal(t, to.Quota, res.Subscription.Quota)
			assert.True(t, res.Subscription.Price.Equal(to.Price))
			assert.Equal(t, t0, res.EffectiveAt)

			h := f.history(t, sub.ID)
			require.Len(t, h, 2)
			assert.Equal(t, models.ActionUpgrade, h[1].Action)
			assert.Equal(t, from.ID, *h[1].Metadata.PreviousPlanID)
			assert.Equal(t, to.ID, *h[1].Metadata.NextPlanID)
		})
	}
}

func TestEngine_UpgradeProratesWithinPeriod(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)
	f.clock.Advance(10 * 24 * time.Hour)

	res, err := f.engine.Upgrade(context.Background(), lifecycle.UpgradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.pro.ID})
	require.NoError(t, err)
	assert.Equal(t, sub.CurrentPeriodStart, res.Subscription.CurrentPeriodStart)
	assert.Equal(t, sub.CurrentPeriodEnd, res.Subscription.CurrentPeriodEnd)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, models.BillingKindCharge, reqs[1].Kind)
	// 20 * 20/30 - 10 * 20/30 = 13.33 - 6.67
	assert.Equal(t, "6.66", reqs[1].Amount.StringFixed(2))
}

func TestEngine_UpgradeChangingCycleRestartsPeriod(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)
	f.clock.Advance(10 * 24 * time.Hour)
	now := f.clock.Now()

	res, err := f.engine.Upgrade(context.Background(), lifecycle.UpgradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.yearly.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CycleYearly, res.Subscription.BillingCycle)
	assert.Equal(t, now, res.Subscription.CurrentPeriodStart)
	assert.Equal(t, now.AddDate(1, 0, 0), res.Subscription.CurrentPeriodEnd)
	assert.Equal(t, res.Subscription.CurrentPeriodEnd, *res.Subscription.NextBillingDate)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 2)
	// 100 за год минус неиспользованные 6.67
	assert.Equal(t, "93.33", reqs[1].Amount.StringFixed(2))
}

func TestEngine_DowngradeUsageSafety(t *testing.T) {
	tests := []struct {
		name     string
		override bool
		wantErr  error
	}{
		{name: "без override", wantErr: lifecycle.ErrUsageExceedsTarget},
		{name: "с override", override: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.subscribe(t, f.basic)
			f.store.SetUsage(sub.ID, 50)

			res, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{
				SubscriptionID: sub.ID,
				TargetPlanID:   f.small.ID,
				OverrideUsage:  tt.override,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, f.basic.ID, f.get(t, sub.ID).PlanID)
				assert.Len(t, f.history(t, sub.ID), 1)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, f.basic.ID, res.Subscription.PlanID)
			require.NotNil(t, res.Subscription.Scheduled)
			assert.Equal(t, f.small.ID, res.Subscription.Scheduled.PlanID)

			h := f.history(t, sub.ID)
			require.Len(t, h, 2)
			assert.True(t, h[1].Metadata.UsageOverride)

			// Override не сбрасывает потребление.
			usage, err := f.store.GetCurrentUsage(context.Background(), sub.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(50), usage)
		})
	}
}

func TestEngine_DowngradeFailsClosedWhenUsageUnavailable(t *testing.T) {
	usage := new(MockUsage)
	f := newFixture(t, func(o *fixtureOpts) { o.usage = usage })
	sub := f.subscribe(t, f.basic)
	usage.On("GetCurrentUsage", mock.Anything, sub.ID).Return(int64(0), errors.New("connection refused")).Once()

	_, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID})
	assert.ErrorIs(t, err, lifecycle.ErrDependencyUnavailable)
	assert.Equal(t, f.basic.ID, f.get(t, sub.ID).PlanID)
	usage.AssertExpectations(t)

	// С override потребление не запрашивается.
	_, err = f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID, OverrideUsage: true})
	require.NoError(t, err)
	usage.AssertNumberOfCalls(t, "GetCurrentUsage", 1)
}

func TestEngine_DowngradeRejections(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)

	_, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.pro.ID})
	assert.ErrorIs(t, err, lifecycle.ErrNotADowngrade)

	_, err = f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.basic.ID})
	assert.ErrorIs(t, err, lifecycle.ErrNotADowngrade)

	_, err = f.engine.Pause(context.Background(), lifecycle.PauseRequest{SubscriptionID: sub.ID, DurationDays: 3})
	require.NoError(t, err)
	_, err = f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestEngine_DeferredDowngradeAppliedOnRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.basic)

	res, err := f.engine.Downgrade(ctx, lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID})
	require.NoError(t, err)
	assert.Equal(t, *sub.NextBillingDate, res.EffectiveAt)
	assert.Equal(t, f.basic.ID, res.Subscription.PlanID, "plan stays until the next billing date")
	assert.Equal(t, f.basic.Quota, res.Subscription.Quota)
	assert.True(t, res.Subscription.Price.Equal(f.basic.Price))
	require.NotNil(t, res.Subscription.Scheduled)
	assert.Equal(t, f.small.Quota, res.Subscription.Scheduled.Terms.Quota)
	assert.Len(t, f.billing.Requests(), 1, "deferred downgrade does not bill")

	h := f.history(t, sub.ID)
	assert.True(t, h[len(h)-1].Metadata.Deferred)

	_, err = f.engine.Rollover(ctx, sub.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "period has not ended")

	f.clock.Advance(31 * 24 * time.Hour)
	rolled, err := f.engine.Rollover(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, f.small.ID, rolled.Subscription.PlanID)
	assert.Equal(t, f.small.Quota, rolled.Subscription.Quota)
	assert.True(t, rolled.Subscription.Price.Equal(f.small.Price))
	assert.Nil(t, rolled.Subscription.Scheduled)
	assert.Equal(t, sub.CurrentPeriodEnd, rolled.Subscription.CurrentPeriodStart)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "5", reqs[1].Amount.String())
	assert.Equal(t, sub.CurrentPeriodEnd, reqs[1].BillingDate)
}

func TestEngine_DeferredDowngradeKeepsPlanOccupied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.basic)

	_, err := f.engine.Downgrade(ctx, lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID})
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, lifecycle.CreateRequest{UserID: "user-1", PlanID: f.basic.ID})
	assert.ErrorIs(t, err, lifecycle.ErrDuplicateSubscription)

	// Повышение отменяет запланированное понижение.
	up, err := f.engine.Upgrade(ctx, lifecycle.UpgradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.pro.ID})
	require.NoError(t, err)
	assert.Equal(t, f.pro.ID, up.Subscription.PlanID)
	assert.Nil(t, up.Subscription.Scheduled)
}

func TestEngine_PlanChangeIntoHeldPlanRejected(t *testing.T) {
	tests := []struct {
		name   string
		held   func(f *fixture) models.Plan
		change func(f *fixture, id uuid.UUID) error
	}{
		{
			name: "upgrade",
			held: func(f *fixture) models.Plan { return f.pro },
			change: func(f *fixture, id uuid.UUID) error {
				_, err := f.engine.Upgrade(context.Background(), lifecycle.UpgradeRequest{SubscriptionID: id, TargetPlanID: f.pro.ID})
				return err
			},
		},
		{
			name: "отложенный downgrade",
			held: func(f *fixture) models.Plan { return f.small },
			change: func(f *fixture, id uuid.UUID) error {
				_, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: id, TargetPlanID: f.small.ID})
				return err
			},
		},
		{
			name: "немедленный downgrade",
			held: func(f *fixture) models.Plan { return f.small },
			change: func(f *fixture, id uuid.UUID) error {
				_, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{SubscriptionID: id, TargetPlanID: f.small.ID, Immediate: true})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.subscribe(t, f.basic)
			f.subscribe(t, tt.held(f))
			before := len(f.billing.Requests())

			err := tt.change(f, sub.ID)
			assert.ErrorIs(t, err, lifecycle.ErrDuplicateSubscription)

			got := f.get(t, sub.ID)
			assert.Equal(t, f.basic.ID, got.PlanID)
			assert.Nil(t, got.Scheduled)
			assert.Equal(t, 1, got.Version)
			assert.Len(t, f.history(t, sub.ID), 1)
			assert.Len(t, f.billing.Requests(), before)
		})
	}
}

func TestEngine_RolloverDropsScheduledChangeIntoHeldPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.basic)

	_, err := f.engine.Downgrade(ctx, lifecycle.DowngradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.small.ID})
	require.NoError(t, err)
	f.subscribe(t, f.small)

	f.clock.Advance(31 * 24 * time.Hour)
	rolled, err := f.engine.Rollover(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, f.basic.ID, rolled.Subscription.PlanID)
	assert.True(t, rolled.Subscription.Price.Equal(f.basic.Price))
	assert.Nil(t, rolled.Subscription.Scheduled)

	h := f.history(t, sub.ID)
	assert.Contains(t, h[len(h)-1].Metadata.Reason, "dropped")
}

func TestEngine_ImmediateDowngradeRefundsDifference(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)
	f.clock.Advance(10 * 24 * time.Hour)

	res, err := f.engine.Downgrade(context.Background(), lifecycle.DowngradeRequest{
		SubscriptionID: sub.ID,
		TargetPlanID:   f.small.ID,
		Immediate:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, f.small.Quota, res.Subscription.Quota)
	assert.Nil(t, res.Subscription.Scheduled)
	assert.Equal(t, f.clock.Now(), res.EffectiveAt)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, models.BillingKindRefund, reqs[1].Kind)
	// 6.67 - 3.33
	assert.Equal(t, "3.34", reqs[1].Amount.StringFixed(2))
}

func TestEngine_PauseResumeRecomputesFromResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.basic)

	paused, err := f.engine.Pause(ctx, lifecycle.PauseRequest{SubscriptionID: sub.ID, DurationDays: 10, Reason: "vacation"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Subscription.Status)
	require.NotNil(t, paused.Subscription.PauseDurationDays)
	assert.Equal(t, 10, *paused.Subscription.PauseDurationDays)
	checkInvariants(t, paused.Subscription)

	f.clock.Advance(10 * 24 * time.Hour)
	resumedAt := f.clock.Now()

	resumed, err := f.engine.Resume(ctx, lifecycle.ResumeRequest{SubscriptionID: sub.ID})
	require.NoError(t, err)
	got := resumed.Subscription
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.PausedAt)
	assert.Nil(t, got.PauseDurationDays)
	assert.Equal(t, resumedAt, got.CurrentPeriodStart)
	assert.Equal(t, resumedAt.AddDate(0, 1, 0), *got.NextBillingDate)
	assert.NotEqual(t, *sub.NextBillingDate, *got.NextBillingDate)
	checkInvariants(t, got)

	assert.Len(t, f.billing.Requests(), 1, "pause and resume do not bill")
	h := f.history(t, sub.ID)
	require.Len(t, h, 3)
	assert.Equal(t, models.ActionPause, h[1].Action)
	assert.Equal(t, "vacation", h[1].Metadata.Reason)
	assert.Equal(t, models.ActionResume, h[2].Action)
}

func TestEngine_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.subscribe(t, f.basic)
	paused := f.subscribe(t, f.pro)
	_, err := f.engine.Pause(ctx, lifecycle.PauseRequest{SubscriptionID: paused.ID, DurationDays: 5})
	require.NoError(t, err)
	cancelled := f.subscribe(t, f.small)
	_, err = f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: cancelled.ID})
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{
			name: "resume активной",
			call: func() error {
				_, err := f.engine.Resume(ctx, lifecycle.ResumeRequest{SubscriptionID: active.ID})
				return err
			},
			wantErr: lifecycle.ErrInvalidTransition,
		},
		{
			name: "pause приостановленной",
			call: func() error {
				_, err := f.engine.Pause(ctx, lifecycle.PauseRequest{SubscriptionID: paused.ID, DurationDays: 1})
				return err
			},
			wantErr: lifecycle.ErrInvalidTransition,
		},
		{
			name: "renew приостановленной",
			call: func() error {
				_, err := f.engine.Renew(ctx, lifecycle.RenewRequest{SubscriptionID: paused.ID})
				return err
			},
			wantErr: lifecycle.ErrInvalidTransition,
		},
		{
			name: "upgrade отменённой",
			call: func() error {
				_, err := f.engine.Upgrade(ctx, lifecycle.UpgradeRequest{SubscriptionID: cancelled.ID, TargetPlanID: f.pro.ID})
				return err
			},
			wantErr: lifecycle.ErrInvalidTransition,
		},
		{
			name: "resume отменённой",
			call: func() error {
				_, err := f.engine.Resume(ctx, lifecycle.ResumeRequest{SubscriptionID: cancelled.ID})
				return err
			},
			wantErr: lifecycle.ErrInvalidTransition,
		},
		{
			name: "pause на ноль дней",
			call: func() error {
				_, err := f.engine.Pause(ctx, lifecycle.PauseRequest{SubscriptionID: active.ID})
				return err
			},
			wantErr: lifecycle.ErrInvalidArgument,
		},
		{
			name: "неизвестная подписка",
			call: func() error {
				_, err := f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: uuid.New()})
				return err
			},
			wantErr: lifecycle.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.wantErr)
		})
	}
}

func TestEngine_RenewRequestsNextPeriodWithoutMovingDates(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, f.basic)

	res, err := f.engine.Renew(context.Background(), lifecycle.RenewRequest{SubscriptionID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, sub.CurrentPeriodStart, res.Subscription.CurrentPeriodStart)
	assert.Equal(t, sub.CurrentPeriodEnd, res.Subscription.CurrentPeriodEnd)
	assert.Equal(t, *sub.NextBillingDate, *res.Subscription.NextBillingDate)
	assert.Equal(t, sub.Version+1, res.Subscription.Version)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, *sub.NextBillingDate, reqs[1].BillingDate)
	assert.Equal(t, sub.NextBillingDate.AddDate(0, 1, 0), *reqs[1].NextBillingDate)

	h := f.history(t, sub.ID)
	assert.Equal(t, models.ActionRenew, h[len(h)-1].Action)
}

func TestEngine_TrialActivationAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscribe(t, f.trial)

	f.clock.Advance(15 * 24 * time.Hour)
	res, err := f.engine.ActivateTrial(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, res.Subscription.Status)
	assert.Equal(t, *sub.TrialEnd, res.Subscription.CurrentPeriodStart)
	assert.Equal(t, sub.TrialEnd.AddDate(0, 1, 0), res.Subscription.CurrentPeriodEnd)

	reqs := f.billing.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, *sub.TrialEnd, reqs[0].BillingDate)
	assert.Equal(t, models.BillingKindCharge, reqs[0].Kind)
	assert.Equal(t, "10", reqs[0].Amount.String())

	_, err = f.engine.ActivateTrial(ctx, sub.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = f.engine.Expire(ctx, sub.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "auto-renew is on")
}

func TestEngine_ExpireWithoutAutoRenew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.engine.Create(ctx, lifecycle.CreateRequest{UserID: "user-2", PlanID: f.basic.ID})
	require.NoError(t, err)
	id := res.Subscription.ID

	_, err = f.engine.Expire(ctx, id)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = f.engine.Rollover(ctx, id)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	f.clock.Advance(31 * 24 * time.Hour)
	expired, err := f.engine.Expire(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Subscription.Status)
	assert.Nil(t, expired.Subscription.NextBillingDate)
	checkInvariants(t, expired.Subscription)

	_, err = f.engine.Cancel(ctx, lifecycle.CancelRequest{SubscriptionID: id})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.NotErrorIs(t, err, lifecycle.ErrAlreadyCancelled)
}

func TestEngine_SideEffectFailuresDoNotFailTransition(t *testing.T) {
	journal := new(MockJournal)
	journal.On("Append", mock.Anything, mock.Anything).Return(errors.New("log sink down"))
	f := newFixture(t, func(o *fixtureOpts) { o.journal = journal })
	f.billing.err = errors.New("broker down")

	sub := f.subscribe(t, f.basic)
	res, err := f.engine.Cancel(context.Background(), lifecycle.CancelRequest{SubscriptionID: sub.ID, Immediate: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.Subscription.Status)
	assert.Equal(t, models.StatusCancelled, f.get(t, sub.ID).Status)

	journal.AssertNumberOfCalls(t, "Append", 2)
	assert.Equal(t, 2, f.rec.billing[lifecycle.ResultError])
	assert.Equal(t, 1, f.rec.transitions["cancel/success"])
}

// barrierStore задерживает чтение, пока обе операции не прочитают одну и ту же версию.
type barrierStore struct {
	*memory.Store
	reads *sync.WaitGroup
}

func (b *barrierStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, err := b.Store.GetByID(ctx, id)
	b.reads.Done()
	b.reads.Wait()
	return sub, err
}

func TestEngine_ConcurrentCancelAndUpgrade(t *testing.T) {
	for i := 0; i < 20; i++ {
		reads := &sync.WaitGroup{}
		f := newFixture(t, func(o *fixtureOpts) {
			o.subs = func(s *memory.Store) lifecycle.SubscriptionStore {
				return &barrierStore{Store: s, reads: reads}
			}
		})
		sub := f.subscribe(t, f.basic)
		reads.Add(2)

		var (
			wg         sync.WaitGroup
			cancelErr  error
			upgradeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = f.engine.Cancel(context.Background(), lifecycle.CancelRequest{SubscriptionID: sub.ID})
		}()
		go func() {
			defer wg.Done()
			_, upgradeErr = f.engine.Upgrade(context.Background(), lifecycle.UpgradeRequest{SubscriptionID: sub.ID, TargetPlanID: f.pro.ID})
		}()
		wg.Wait()

		require.True(t, (cancelErr == nil) != (upgradeErr == nil), "cancel=%v upgrade=%v", cancelErr, upgradeErr)
		failed := cancelErr
		if failed == nil {
			failed = upgradeErr
		}
		assert.ErrorIs(t, failed, lifecycle.ErrInvalidTransition)
		assert.ErrorIs(t, failed, lifecycle.ErrConflict)

		got := f.get(t, sub.ID)
		assert.Equal(t, 2, got.Version)
		if cancelErr == nil {
			assert.Equal(t, models.StatusCancelled, got.Status)
			assert.Equal(t, f.basic.ID, got.PlanID)
		} else {
			assert.Equal(t, models.StatusActive, got.Status)
			assert.Equal(t, f.pro.ID, got.PlanID)
		}
		assert.Len(t, f.history(t, sub.ID), 2)
	}
}
