package repository

import (
	"context"
	"sync"
	"time"

	"voicelog-backend/internal/push/domain"

	"github.com/google/uuid"
)

type memorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscription
}

// NewMemorySubscriptionRepository is used when no database is configured
func NewMemorySubscriptionRepository() SubscriptionRepository {
	return &memorySubscriptionRepository{subs: make(map[string]domain.Subscription)}
}

func (r *memorySubscriptionRepository) Save(_ context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.subs[sub.Endpoint]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.IsActive = true
	r.subs[sub.Endpoint] = *sub
	return nil
}

func (r *memorySubscriptionRepository) ListActive(context.Context) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.IsActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *memorySubscriptionRepository) Deactivate(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[endpoint]; ok {
		sub.IsActive = false
		sub.UpdatedAt = time.Now()
		r.subs[endpoint] = sub
	}
	return nil
}

func (r *memorySubscriptionRepository) Delete(_ context.Context, endpoint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[endpoint]
	delete(r.subs, endpoint)
	return ok, nil
}
