package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Patch — изменение подписки, соответствующее одной операции.
// Для каждой операции свой тип, поэтому недопустимые сочетания полей не выразимы.
type Patch interface {
	Apply(sub *models.Subscription)
}

// Period — новые границы расчётного периода.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) apply(sub *models.Subscription) {
	end := p.End
	sub.CurrentPeriodStart = p.Start
	sub.CurrentPeriodEnd = p.End
	sub.NextBillingDate = &end
}

// UpgradePatch переводит подписку на лучший план немедленно.
type UpgradePatch struct {
	PlanID uuid.UUID
	Terms  models.Terms
	Period *Period // задан, если сменился период оплаты
}

func (p UpgradePatch) Apply(sub *models.Subscription) {
	sub.PlanID = p.PlanID
	sub.ApplyTerms(p.Terms)
	sub.Scheduled = nil
	if p.Period != nil {
		p.Period.apply(sub)
	}
}

// DowngradePatch переводит подписку на более дешёвый план.
// Без Immediate новые условия откладываются до EffectiveAt.
type DowngradePatch struct {
	PlanID      uuid.UUID
	Terms       models.Terms
	Immediate   bool
	EffectiveAt time.Time
	Period      *Period // только для немедленного перехода со сменой периода оплаты
}

func (p DowngradePatch) Apply(sub *models.Subscription) {
	if !p.Immediate {
		sub.Scheduled = &models.ScheduledChange{
			PlanID:      p.PlanID,
			Terms:       p.Terms,
			EffectiveAt: p.EffectiveAt,
		}
		return
	}
	sub.PlanID = p.PlanID
	sub.ApplyTerms(p.Terms)
	sub.Scheduled = nil
	if p.Period != nil {
		p.Period.apply(sub)
	}
}

// CancelPatch отменяет подписку.
type CancelPatch struct {
	CancelledAt time.Time
	Reason      string
}

func (p CancelPatch) Apply(sub *models.Subscription) {
	at := p.CancelledAt
	sub.Status = models.StatusCancelled
	sub.CancelledAt = &at
	sub.AutoRenew = false
	sub.NextBillingDate = nil
	sub.PausedAt = nil
	sub.PauseDurationDays = nil
	sub.Scheduled = nil
	if p.Reason != "" {
		reason := p.Reason
		sub.CancelReason = &reason
	}
}

// PausePatch приостанавливает подписку.
type PausePatch struct {
	PausedAt     time.Time
	DurationDays int
}

func (p PausePatch) Apply(sub *models.Subscription) {
	at := p.PausedAt
	days := p.DurationDays
	sub.Status = models.StatusPaused
	sub.PausedAt = &at
	sub.PauseDurationDays = &days
}

// ResumePatch возобновляет подписку с новым периодом от момента возобновления.
type ResumePatch struct {
	Period Period
}

func (p ResumePatch) Apply(sub *models.Subscription) {
	sub.Status = models.StatusActive
	sub.PausedAt = nil
	sub.PauseDurationDays = nil
	p.Period.apply(sub)
}

// RenewPatch ничего не меняет в датах, но проходит через условное обновление,
// чтобы продление не разминулось с параллельной отменой.
type RenewPatch struct{}

func (RenewPatch) Apply(*models.Subscription) {}

// ActivatePatch завершает пробный период.
type ActivatePatch struct {
	Period Period
}

func (p ActivatePatch) Apply(sub *models.Subscription) {
	sub.Status = models.StatusActive
	p.Period.apply(sub)
}

// RolloverPatch открывает следующий период и применяет отложенную смену плана.
type RolloverPatch struct {
	Period        Period
	Change        *models.ScheduledChange
	DropScheduled bool
}

func (p RolloverPatch) Apply(sub *models.Subscription) {
	if p.Change != nil {
		sub.PlanID = p.Change.PlanID
		sub.ApplyTerms(p.Change.Terms)
		sub.Scheduled = nil
	}
	if p.DropScheduled {
		sub.Scheduled = nil
	}
	p.Period.apply(sub)
}

// ExpirePatch завершает подписку без продления.
type ExpirePatch struct{}

func (ExpirePatch) Apply(sub *models.Subscription) {
	sub.Status = models.StatusExpired
	sub.NextBillingDate = nil
	sub.Scheduled = nil
}
