// Package lifecycle реализует машину состояний подписки.
//
// Движок не хранит состояние и не запускает фоновых задач: каждая операция
// читает подписку, проверяет допустимость перехода, применяет патч через
// условное обновление хранилища, затем пишет запись журнала и при необходимости
// отправляет запрос в биллинг. Журнал и биллинг работают в режиме best effort:
// их ошибки логируются и не отменяют переход.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/cycle"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/money"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Метки результата для Recorder.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Engine выполняет переходы жизненного цикла подписок.
type Engine struct {
	plans   PlanCatalog
	subs    SubscriptionStore
	usage   UsageAccessor
	billing BillingRequester
	journal LifecycleLog
	log     *slog.Logger
	now     func() time.Time
	rec     Recorder
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder подключает сбор метрик.
func WithRecorder(rec Recorder) Option {
	return func(e *Engine) {
		if rec != nil {
			e.rec = rec
		}
	}
}

// New создаёт движок. Все зависимости передаются явно.
func New(
	plans PlanCatalog,
	subs SubscriptionStore,
	usage UsageAccessor,
	billing BillingRequester,
	journal LifecycleLog,
	log *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		plans:   plans,
		subs:    subs,
		usage:   usage,
		billing: billing,
		journal: journal,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create оформляет подписку пользователя на план.
// При TrialDays > 0 подписка начинается в статусе trial, иначе active.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	const op = "lifecycle.Create"
	log := e.log.With(slog.String("op", op), slog.String("user_id", req.UserID))

	res, err := e.create(ctx, req)
	e.rec.ObserveTransition(models.ActionCreate, resultLabel(err))
	if err != nil {
		log.Info("subscription not created", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := res.Subscription
	log.Info("subscription created", sl.SubID(sub.ID), slog.String("status", string(sub.Status)))

	e.appendLog(ctx, log, sub.ID, models.ActionCreate, models.LogMetadata{
		NextStatus:  sub.Status,
		NextPlanID:  &sub.PlanID,
		EffectiveAt: res.EffectiveAt,
	}, res.EffectiveAt)

	// Первое списание пробной подписки выставляет ActivateTrial.
	if sub.Status == models.StatusTrial {
		return res, nil
	}
	next := sub.CurrentPeriodEnd
	e.requestBilling(ctx, log, models.BillingRequest{
		SubscriptionID:  sub.ID,
		UserID:          sub.UserID,
		Kind:            models.BillingKindCharge,
		Amount:          sub.ChargeAmount(),
		BillingDate:     sub.CurrentPeriodStart,
		NextBillingDate: &next,
		Note:            "initial charge",
	})

	return res, nil
}

func (e *Engine) create(ctx context.Context, req CreateRequest) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return nil, fmt.Errorf("%w: discount percent must be within [0, 100]", ErrInvalidArgument)
	}

	plan, err := e.plans.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}

	_, err = e.subs.GetActiveForUserAndPlan(ctx, req.UserID, req.PlanID)
	switch {
	case err == nil:
		return nil, ErrDuplicateSubscription
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := e.now()
	sub := &models.Subscription{
		ID:              uuid.New(),
		UserID:          req.UserID,
		PlanID:          plan.ID,
		DiscountPercent: req.DiscountPercent,
		AutoRenew:       req.AutoRenew,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sub.ApplyTerms(plan.Terms())

	if plan.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.Status = models.StatusTrial
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
		Period{Start: now, End: trialEnd}.apply(sub)
	} else {
		end, err := cycle.NextPeriodEnd(now, plan.BillingCycle)
		if err != nil {
			return nil, err
		}
		sub.Status = models.StatusActive
		Period{Start: now, End: end}.apply(sub)
	}

	created, err := e.subs.Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &Result{Subscription: created, EffectiveAt: now}, nil
}

// Upgrade немедленно переводит подписку на строго лучший план.
// Если меняется период оплаты, новый период начинается сейчас.
func (e *Engine) Upgrade(ctx context.Context, req UpgradeRequest) (*Result, error) {
	return e.apply(ctx, "lifecycle.Upgrade", models.ActionUpgrade, req.SubscriptionID,
		func(ctx context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			target, err := e.activePlan(ctx, req.TargetPlanID)
			if err != nil {
				return nil, err
			}
			if err := CheckUpgrade(sub.Terms(), target.Terms()); err != nil {
				return nil, err
			}
			if err := e.ensurePlanFree(ctx, sub, target.ID); err != nil {
				return nil, err
			}

			patch := UpgradePatch{PlanID: target.ID, Terms: target.Terms()}
			period, err := restartPeriod(sub, target.BillingCycle, now)
			if err != nil {
				return nil, err
			}
			patch.Period = period

			return &outcome{
				patch:       patch,
				effectiveAt: now,
				meta: models.LogMetadata{
					PreviousPlanID: ptr(sub.PlanID),
					NextPlanID:     ptr(target.ID),
				},
				billing: settlement(sub, target, now, period, "upgrade to "+target.Name),
			}, nil
		})
}

// Downgrade переводит подписку на строго худший план.
// Без Immediate новые условия вступают в силу в следующую дату списания.
func (e *Engine) Downgrade(ctx context.Context, req DowngradeRequest) (*Result, error) {
	return e.apply(ctx, "lifecycle.Downgrade", models.ActionDowngrade, req.SubscriptionID,
		func(ctx context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			target, err := e.activePlan(ctx, req.TargetPlanID)
			if err != nil {
				return nil, err
			}
			check, err := CheckDowngrade(ctx, e.usage, sub.ID, sub.Terms(), target.Terms(), req.OverrideUsage)
			if err != nil {
				return nil, err
			}
			if err := e.ensurePlanFree(ctx, sub, target.ID); err != nil {
				return nil, err
			}

			meta := models.LogMetadata{
				PreviousPlanID: ptr(sub.PlanID),
				NextPlanID:     ptr(target.ID),
				Usage:          check.Usage,
				UsageOverride:  req.OverrideUsage,
				Deferred:       !req.Immediate,
			}

			if !req.Immediate {
				effectiveAt := sub.CurrentPeriodEnd
				if sub.NextBillingDate != nil {
					effectiveAt = *sub.NextBillingDate
				}
				return &outcome{
					patch: DowngradePatch{
						PlanID:      target.ID,
						Terms:       target.Terms(),
						EffectiveAt: effectiveAt,
					},
					effectiveAt: effectiveAt,
					meta:        meta,
				}, nil
			}

			period, err := restartPeriod(sub, target.BillingCycle, now)
			if err != nil {
				return nil, err
			}
			return &outcome{
				patch: DowngradePatch{
					PlanID:      target.ID,
					Terms:       target.Terms(),
					Immediate:   true,
					EffectiveAt: now,
					Period:      period,
				},
				effectiveAt: now,
				meta:        meta,
				billing:     settlement(sub, target, now, period, "downgrade to "+target.Name),
			}, nil
		})
}

// Cancel отменяет подписку. С Immediate рассчитывается возврат за неиспользованную
// часть периода. Повторная отмена возвращает ErrAlreadyCancelled.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (*Result, error) {
	return e.apply(ctx, "lifecycle.Cancel", models.ActionCancel, req.SubscriptionID,
		func(_ context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			out := &outcome{
				patch:       CancelPatch{CancelledAt: now, Reason: req.Reason},
				effectiveAt: now,
				meta:        models.LogMetadata{Reason: req.Reason},
			}
			if !req.Immediate {
				return out, nil
			}

			refund := decimal.Zero
			if sub.Status != models.StatusTrial {
				refund = money.Prorate(sub.ChargeAmount(), now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
			}
			out.refund = &refund
			out.meta.Refund = &refund
			if refund.IsPositive() {
				out.billing = func(updated *models.Subscription) *models.BillingRequest {
					return &models.BillingRequest{
						SubscriptionID: updated.ID,
						UserID:         updated.UserID,
						Kind:           models.BillingKindRefund,
						Amount:         refund,
						BillingDate:    now,
						Note:           "prorated refund on cancellation",
					}
				}
			}
			return out, nil
		})
}

// Pause приостанавливает активную подписку на DurationDays дней.
func (e *Engine) Pause(ctx context.Context, req PauseRequest) (*Result, error) {
	if req.DurationDays <= 0 {
		e.rec.ObserveTransition(models.ActionPause, ResultRejected)
		return nil, fmt.Errorf("lifecycle.Pause: %w: pause duration must be positive", ErrInvalidArgument)
	}
	return e.apply(ctx, "lifecycle.Pause", models.ActionPause, req.SubscriptionID,
		func(_ context.Context, _ *models.Subscription, now time.Time) (*outcome, error) {
			days := req.DurationDays
			return &outcome{
				patch:       PausePatch{PausedAt: now, DurationDays: days},
				effectiveAt: now,
				meta:        models.LogMetadata{Reason: req.Reason, PauseDays: &days},
			}, nil
		})
}

// Resume возобновляет приостановленную подписку. Новый период и дата
// следующего списания отсчитываются от момента возобновления.
func (e *Engine) Resume(ctx context.Context, req ResumeRequest) (*Result, error) {
	return e.apply(ctx, "lifecycle.Resume", models.ActionResume, req.SubscriptionID,
		func(_ context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			end, err := cycle.NextPeriodEnd(now, sub.BillingCycle)
			if err != nil {
				return nil, err
			}
			return &outcome{
				patch:       ResumePatch{Period: Period{Start: now, End: end}},
				effectiveAt: now,
			}, nil
		})
}

// Renew запрашивает списание за следующий период. Даты подписки не меняются:
// период сдвигается при фактическом наступлении следующего периода (Rollover).
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (*Result, error) {
	return e.apply(ctx, "lifecycle.Renew", models.ActionRenew, req.SubscriptionID,
		func(_ context.Context, sub *models.Subscription, _ time.Time) (*outcome, error) {
			billingDate := sub.CurrentPeriodEnd
			if sub.NextBillingDate != nil {
				billingDate = *sub.NextBillingDate
			}
			terms := sub.Terms()
			if sub.Scheduled != nil && !sub.Scheduled.EffectiveAt.After(billingDate) {
				terms = sub.Scheduled.Terms
			}
			next, err := cycle.NextPeriodEnd(billingDate, terms.Cycle)
			if err != nil {
				return nil, err
			}
			return &outcome{
				patch:       RenewPatch{},
				effectiveAt: billingDate,
				billing: func(updated *models.Subscription) *models.BillingRequest {
					return &models.BillingRequest{
						SubscriptionID:  updated.ID,
						UserID:          updated.UserID,
						Kind:            models.BillingKindCharge,
						Amount:          models.DiscountedPrice(terms.Price, updated.DiscountPercent),
						BillingDate:     billingDate,
						NextBillingDate: &next,
						Note:            "renewal",
					}
				},
			}, nil
		})
}

// ActivateTrial завершает пробный период и открывает первый оплачиваемый период.
func (e *Engine) ActivateTrial(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.apply(ctx, "lifecycle.ActivateTrial", models.ActionActivate, id,
		func(_ context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			start := now
			if sub.TrialEnd != nil && sub.TrialEnd.Before(now) {
				start = *sub.TrialEnd
			}
			end, err := cycle.NextPeriodEnd(start, sub.BillingCycle)
			if err != nil {
				return nil, err
			}
			return &outcome{
				patch:       ActivatePatch{Period: Period{Start: start, End: end}},
				effectiveAt: start,
				billing:     periodCharge(start, end, "first charge after trial"),
			}, nil
		})
}

// Rollover открывает следующий период подписки с автопродлением,
// текущий период которой закончился. Отложенные условия применяются здесь.
func (e *Engine) Rollover(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.apply(ctx, "lifecycle.Rollover", models.ActionRollover, id,
		func(ctx context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			if !sub.AutoRenew {
				return nil, fmt.Errorf("%w: auto-renew is disabled", ErrInvalidTransition)
			}
			if sub.CurrentPeriodEnd.After(now) {
				return nil, fmt.Errorf("%w: current period has not ended", ErrInvalidTransition)
			}

			start := sub.CurrentPeriodEnd
			patch := RolloverPatch{}
			meta := models.LogMetadata{}
			c := sub.BillingCycle
			if sc := sub.Scheduled; sc != nil && !sc.EffectiveAt.After(start) {
				switch err := e.ensurePlanFree(ctx, sub, sc.PlanID); {
				case err == nil:
					patch.Change = sc
					c = sc.Terms.Cycle
					meta.PreviousPlanID = ptr(sub.PlanID)
					meta.NextPlanID = ptr(sc.PlanID)
					meta.Reason = "scheduled change applied"
				case errors.Is(err, ErrDuplicateSubscription):
					// План уже занят другой подпиской пользователя: продлеваем на текущих условиях.
					patch.DropScheduled = true
					meta.Reason = "scheduled change dropped: target plan already held"
				default:
					return nil, err
				}
			}
			end, err := cycle.NextPeriodEnd(start, c)
			if err != nil {
				return nil, err
			}
			patch.Period = Period{Start: start, End: end}

			return &outcome{
				patch:       patch,
				effectiveAt: start,
				meta:        meta,
				billing:     periodCharge(start, end, "renewal"),
			}, nil
		})
}

// Expire завершает подписку без автопродления по окончании периода.
func (e *Engine) Expire(ctx context.Context, id uuid.UUID) (*Result, error) {
	return e.apply(ctx, "lifecycle.Expire", models.ActionExpire, id,
		func(_ context.Context, sub *models.Subscription, now time.Time) (*outcome, error) {
			if sub.AutoRenew {
				return nil, fmt.Errorf("%w: auto-renew is enabled", ErrInvalidTransition)
			}
			if sub.CurrentPeriodEnd.After(now) {
				return nil, fmt.Errorf("%w: current period has not ended", ErrInvalidTransition)
			}
			return &outcome{
				patch:       ExpirePatch{},
				effectiveAt: sub.CurrentPeriodEnd,
			}, nil
		})
}

// outcome — решение операции о переходе.
type outcome struct {
	patch       Patch
	effectiveAt time.Time
	meta        models.LogMetadata
	refund      *decimal.Decimal
	// billing строит запрос по уже обновлённой подписке; nil — запроса нет.
	billing func(updated *models.Subscription) *models.BillingRequest
}

type decideFunc func(ctx context.Context, sub *models.Subscription, now time.Time) (*outcome, error)

// apply выполняет общий порядок операции: чтение, проверка статуса, решение,
// условное обновление, журнал, биллинг.
func (e *Engine) apply(ctx context.Context, op string, action models.Action, id uuid.UUID, decide decideFunc) (*Result, error) {
	log := e.log.With(
		slog.String("op", op),
		sl.SubID(id),
	)

	res, err := e.transition(ctx, log, action, id, decide)
	e.rec.ObserveTransition(action, resultLabel(err))
	if err != nil {
		if resultLabel(err) == ResultError {
			log.Error("transition failed", sl.Err(err))
		} else {
			log.Info("transition rejected", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (e *Engine) transition(ctx context.Context, log *slog.Logger, action models.Action, id uuid.UUID, decide decideFunc) (*Result, error) {
	sub, err := e.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(action, sub.Status); err != nil {
		return nil, err
	}

	now := e.now()
	out, err := decide(ctx, sub, now)
	if err != nil {
		return nil, err
	}

	updated, err := e.subs.ConditionalUpdate(ctx, id, Expectation{Status: sub.Status, Version: sub.Version}, out.patch)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, errors.Join(ErrInvalidTransition, err)
		}
		return nil, err
	}

	log.Info("transition applied",
		slog.String("from", string(sub.Status)),
		slog.String("to", string(updated.Status)),
	)

	meta := out.meta
	meta.PreviousStatus = sub.Status
	meta.NextStatus = updated.Status
	meta.EffectiveAt = out.effectiveAt
	e.appendLog(ctx, log, id, action, meta, now)

	if out.billing != nil {
		if req := out.billing(updated); req != nil {
			e.requestBilling(ctx, log, *req)
		}
	}

	return &Result{
		Subscription: updated,
		EffectiveAt:  out.effectiveAt,
		Refund:       out.refund,
	}, nil
}

// ensurePlanFree проверяет, что у пользователя нет другой живой подписки на план.
func (e *Engine) ensurePlanFree(ctx context.Context, sub *models.Subscription, planID uuid.UUID) error {
	other, err := e.subs.GetActiveForUserAndPlan(ctx, sub.UserID, planID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != sub.ID:
		return ErrDuplicateSubscription
	}
	return nil
}

func (e *Engine) activePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := e.plans.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanUnavailable
	}
	return plan, nil
}

func (e *Engine) appendLog(ctx context.Context, log *slog.Logger, id uuid.UUID, action models.Action, meta models.LogMetadata, at time.Time) {
	if e.journal == nil {
		return
	}
	entry := models.LifecycleLogEntry{
		ID:             uuid.New(),
		SubscriptionID: id,
		Action:         action,
		Metadata:       meta,
		CreatedAt:      at,
	}
	if err := e.journal.Append(ctx, entry); err != nil {
		log.Warn("failed to append lifecycle log entry", slog.String("action", string(action)), sl.Err(err))
	}
}

func (e *Engine) requestBilling(ctx context.Context, log *slog.Logger, req models.BillingRequest) {
	if e.billing == nil {
		return
	}
	if err := e.billing.RequestBillingRecord(ctx, req); err != nil {
		e.rec.ObserveBillingRequest(ResultError)
		log.Warn("failed to request billing record",
			slog.String("kind", string(req.Kind)),
			slog.String("amount", req.Amount.String()),
			sl.Err(err),
		)
		return
	}
	e.rec.ObserveBillingRequest(ResultSuccess)
}

// restartPeriod возвращает новый период от now, если target меняет период оплаты.
func restartPeriod(sub *models.Subscription, target models.Cycle, now time.Time) (*Period, error) {
	if target == sub.BillingCycle {
		return nil, nil
	}
	end, err := cycle.NextPeriodEnd(now, target)
	if err != nil {
		return nil, err
	}
	return &Period{Start: now, End: end}, nil
}

// settlement рассчитывает доплату или возврат при немедленной смене плана:
// стоимость нового плана за остаток периода минус неиспользованная часть текущего.
// Если период перезапускается, новый план оплачивается целиком.
func settlement(sub *models.Subscription, target *models.Plan, now time.Time, period *Period, note string) func(*models.Subscription) *models.BillingRequest {
	oldCharge := sub.ChargeAmount()
	newCharge := models.DiscountedPrice(target.Price, sub.DiscountPercent)
	credit := money.Prorate(oldCharge, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)

	charge := newCharge
	if period == nil {
		charge = money.Prorate(newCharge, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	}

	return func(updated *models.Subscription) *models.BillingRequest {
		req := &models.BillingRequest{
			SubscriptionID:  updated.ID,
			UserID:          updated.UserID,
			Kind:            models.BillingKindCharge,
			Amount:          charge.Sub(credit),
			BillingDate:     now,
			NextBillingDate: updated.NextBillingDate,
			Note:            note,
		}
		if req.Amount.IsNegative() {
			req.Kind = models.BillingKindRefund
			req.Amount = req.Amount.Neg()
		}
		return req
	}
}

// periodCharge — списание полной стоимости периода [start, end) по условиям обновлённой подписки.
func periodCharge(start, end time.Time, note string) func(*models.Subscription) *models.BillingRequest {
	return func(updated *models.Subscription) *models.BillingRequest {
		return &models.BillingRequest{
			SubscriptionID:  updated.ID,
			UserID:          updated.UserID,
			Kind:            models.BillingKindCharge,
			Amount:          updated.ChargeAmount(),
			BillingDate:     start,
			NextBillingDate: &end,
			Note:            note,
		}
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotAnUpgrade),
		errors.Is(err, ErrNotADowngrade),
		errors.Is(err, ErrUsageExceedsTarget),
		errors.Is(err, ErrDuplicateSubscription),
		errors.Is(err, ErrPlanUnavailable),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrInvalidArgument):
		return ResultRejected
	default:
		return ResultError
	}
}

func ptr[T any](v T) *T {
	return &v
}
