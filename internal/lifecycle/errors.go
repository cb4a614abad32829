package lifecycle

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid subscription transition")
	ErrNotAnUpgrade          = errors.New("target plan is not an upgrade")
	ErrNotADowngrade         = errors.New("target plan is not a downgrade")
	ErrUsageExceedsTarget    = errors.New("current usage exceeds target plan quota")
	ErrDuplicateSubscription = errors.New("subscription for this plan already exists")
	ErrPlanUnavailable       = errors.New("plan is not available")
	ErrDependencyUnavailable = errors.New("required dependency is unavailable")
	ErrAlreadyCancelled      = errors.New("subscription already cancelled")
	ErrInvalidArgument       = errors.New("invalid argument")

	// ErrConflict возвращается хранилищем, если статус или версия подписки
	// изменились между чтением и условным обновлением.
	ErrConflict = errors.New("subscription was modified concurrently")
)
