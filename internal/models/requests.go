package models

// Структуры ниже используются для приёма данных из JSON-запросов,
// до их валидации и преобразования в запросы к сервисам.

// DummyPlan содержит данные нового тарифного плана.
type DummyPlan struct {
	Name         string `json:"name" validate:"required"`                                                // Уникальное название
	Price        string `json:"price" validate:"required,numeric"`                                       // Цена, десятичная строка
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=weekly monthly quarterly yearly"` // Период оплаты
	Quota        int64  `json:"quota" validate:"min=-1"`                                                 // Квота, -1 — безлимит
	TrialDays    int    `json:"trial_days" validate:"min=0"`                                             // Длина пробного периода
}

// DummyRename содержит новое имя плана.
type DummyRename struct {
	Name string `json:"name" validate:"required"`
}

// DummySubscription содержит данные для оформления подписки.
type DummySubscription struct {
	PlanID          string `json:"plan_id" validate:"required,uuid"`
	AutoRenew       *bool  `json:"auto_renew,omitempty"`
	DiscountPercent int    `json:"discount_percent" validate:"min=0,max=100"`
}

// DummyUpgrade содержит целевой план для повышения тарифа.
type DummyUpgrade struct {
	TargetPlanID string `json:"target_plan_id" validate:"required,uuid"`
}

// DummyDowngrade содержит целевой план для понижения тарифа.
// Без immediate изменение вступает в силу в следующую дату списания.
type DummyDowngrade struct {
	TargetPlanID  string `json:"target_plan_id" validate:"required,uuid"`
	Immediate     bool   `json:"immediate"`
	OverrideUsage bool   `json:"override_usage"`
}

// DummyCancel содержит параметры отмены подписки.
type DummyCancel struct {
	Reason    string `json:"reason"`
	Immediate bool   `json:"immediate"`
}

// DummyPause содержит параметры приостановки подписки.
type DummyPause struct {
	DurationDays int    `json:"duration_days" validate:"required,min=1,max=365"`
	Reason       string `json:"reason"`
}
