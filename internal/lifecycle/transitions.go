package lifecycle

import (
	"fmt"
	"slices"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// allowedFrom — из каких статусов допустима операция.
// cancelled и expired терминальные и здесь не встречаются.
var allowedFrom = map[models.Action][]models.Status{
	models.ActionUpgrade:   {models.StatusActive},
	models.ActionDowngrade: {models.StatusActive},
	models.ActionCancel:    {models.StatusTrial, models.StatusActive, models.StatusPaused},
	models.ActionPause:     {models.StatusActive},
	models.ActionResume:    {models.StatusPaused},
	models.ActionRenew:     {models.StatusActive},
	models.ActionActivate:  {models.StatusTrial},
	models.ActionRollover:  {models.StatusActive},
	models.ActionExpire:    {models.StatusTrial, models.StatusActive},
}

// CanApply сообщает, допустима ли операция из статуса.
func CanApply(action models.Action, from models.Status) bool {
	return slices.Contains(allowedFrom[action], from)
}

// AllowedActions возвращает операции, допустимые из статуса, в стабильном порядке.
func AllowedActions(from models.Status) []models.Action {
	var actions []models.Action
	for action, statuses := range allowedFrom {
		if slices.Contains(statuses, from) {
			actions = append(actions, action)
		}
	}
	slices.Sort(actions)
	return actions
}

func checkTransition(action models.Action, from models.Status) error {
	if from.Terminal() {
		if action == models.ActionCancel && from == models.StatusCancelled {
			return ErrAlreadyCancelled
		}
		return fmt.Errorf("%w: subscription in status %s is final", ErrInvalidTransition, from)
	}
	if !CanApply(action, from) {
		return fmt.Errorf("%w: cannot %s subscription in status %s", ErrInvalidTransition, action, from)
	}
	return nil
}
