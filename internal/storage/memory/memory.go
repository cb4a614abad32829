// Package memory содержит хранилище в памяти, совместимое с интерфейсами
// движка жизненного цикла. Используется в тестах и для локального запуска.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Store хранит планы, подписки, журнал и потребление под одним мьютексом.
type Store struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]models.Plan
	subs  map[uuid.UUID]*models.Subscription
	log   []models.LifecycleLogEntry
	usage map[uuid.UUID]int64
	now   func() time.Time
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		plans: make(map[uuid.UUID]models.Plan),
		subs:  make(map[uuid.UUID]*models.Subscription),
		usage: make(map[uuid.UUID]int64),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PutPlan добавляет или заменяет план.
func (s *Store) PutPlan(p models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// GetPlan возвращает план по ID.
func (s *Store) GetPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return &p, nil
}

// GetByID возвращает копию подписки.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return sub.Clone(), nil
}

// GetActiveForUserAndPlan ищет подписку в статусе trial, active или paused.
func (s *Store) GetActiveForUserAndPlan(_ context.Context, userID string, planID uuid.UUID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub := s.liveLocked(userID, planID); sub != nil {
		return sub.Clone(), nil
	}
	return nil, lifecycle.ErrNotFound
}

func (s *Store) liveLocked(userID string, planID uuid.UUID) *models.Subscription {
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.PlanID == planID && sub.Status.Live() {
			return sub
		}
	}
	return nil
}

// Create сохраняет подписку. Повторная живая подписка на пару (пользователь, план)
// отклоняется так же, как уникальный индекс в Postgres.
func (s *Store) Create(_ context.Context, sub *models.Subscription) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Status.Live() && s.liveLocked(sub.UserID, sub.PlanID) != nil {
		return nil, lifecycle.ErrDuplicateSubscription
	}
	stored := sub.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.subs[stored.ID] = stored
	return stored.Clone(), nil
}

// ConditionalUpdate применяет patch, только если статус и версия совпадают с expect.
func (s *Store) ConditionalUpdate(_ context.Context, id uuid.UUID, expect lifecycle.Expectation, patch lifecycle.Patch) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subs[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	if cur.Status != expect.Status || cur.Version != expect.Version {
		return nil, lifecycle.ErrConflict
	}

	next := cur.Clone()
	patch.Apply(next)
	if next.Status.Live() && next.PlanID != cur.PlanID {
		if other := s.liveLocked(next.UserID, next.PlanID); other != nil && other.ID != id {
			return nil, lifecycle.ErrDuplicateSubscription
		}
	}
	next.Version++
	next.UpdatedAt = s.now()
	s.subs[id] = next
	return next.Clone(), nil
}

// Append добавляет запись в журнал.
func (s *Store) Append(_ context.Context, entry models.LifecycleLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

// History возвращает записи журнала подписки в порядке добавления.
func (s *Store) History(_ context.Context, subscriptionID uuid.UUID) ([]models.LifecycleLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LifecycleLogEntry
	for _, e := range s.log {
		if e.SubscriptionID == subscriptionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetUsage задаёт текущее потребление подписки.
func (s *Store) SetUsage(subscriptionID uuid.UUID, usage int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[subscriptionID] = usage
}

// GetCurrentUsage возвращает потребление; отсутствие данных означает ноль.
func (s *Store) GetCurrentUsage(_ context.Context, subscriptionID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[subscriptionID], nil
}

// ListByUser возвращает подписки пользователя, новые первыми.
func (s *Store) ListByUser(_ context.Context, userID string) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Subscription) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}
