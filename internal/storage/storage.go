// Package storage объявляет ошибки, общие для реализаций хранилища.
package storage

import "errors"

var (
	ErrPlanExists = errors.New("plan with this name already exists")
	ErrPlanInUse  = errors.New("plan has live subscriptions")
)
