package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type usageKey struct {
	userID uuid.UUID
	period Period
}

// MemoryStore is an in-process Store for tests and single-instance development setups.
type MemoryStore struct {
	mu    sync.RWMutex
	subs  map[uuid.UUID]*Subscription
	usage map[usageKey]Usage
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:  make(map[uuid.UUID]*Subscription),
		usage: make(map[usageKey]Usage),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Put stores s as-is, replacing any existing record. Intended for seeding.
func (m *MemoryStore) Put(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.UserID] = s.Clone()
}

func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetWithUsage(_ context.Context, userID uuid.UUID, period Period) (*Subscription, *Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[userID]
	if !ok {
		return nil, nil, ErrSubscriptionNotFound
	}
	u := m.usageLocked(userID, period)
	return s.Clone(), &u, nil
}

func (m *MemoryStore) GetUsage(_ context.Context, userID uuid.UUID, period Period) (*Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.usageLocked(userID, period)
	return &u, nil
}

func (m *MemoryStore) CreateIfAbsent(_ context.Context, userID uuid.UUID, planID string, status Status) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.subs[userID]; ok {
		return s.Clone(), nil
	}

	now := m.now()
	s := &Subscription{
		UserID:    userID,
		PlanID:    planID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.subs[userID] = s
	return s.Clone(), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, userID uuid.UUID, status Status, extra StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[userID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	extra.Apply(s, status, m.now())
	return nil
}

func (m *MemoryStore) UpdatePlan(_ context.Context, userID uuid.UUID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[userID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.PlanID = planID
	s.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) IncrementUsage(_ context.Context, userID uuid.UUID, period Period, delta Delta) error {
	if err := delta.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey{userID: userID, period: period}
	m.usage[key] = m.usageLocked(userID, period).Apply(delta)
	return nil
}

// IncrementUsageNonAtomic shares the atomic path; a mutex-guarded map has no weaker primitive.
func (m *MemoryStore) IncrementUsageNonAtomic(ctx context.Context, userID uuid.UUID, period Period, delta Delta) error {
	return m.IncrementUsage(ctx, userID, period, delta)
}

func (m *MemoryStore) usageLocked(userID uuid.UUID, period Period) Usage {
	u, ok := m.usage[usageKey{userID: userID, period: period}]
	if !ok {
		return *ZeroUsage(userID, period)
	}
	return u
}
