package repository

import (
	"context"

	"voicelog-backend/internal/push/domain"
)

// SubscriptionRepository is the read/write contract the dispatcher and the
// subscription API need. Endpoint is the natural key.
type SubscriptionRepository interface {
	// Save inserts or refreshes a subscription and marks it active
	Save(ctx context.Context, sub *domain.Subscription) error
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	// Deactivate marks the endpoint inactive after the provider reported it gone
	Deactivate(ctx context.Context, endpoint string) error
	// Delete removes the endpoint and reports whether it existed
	Delete(ctx context.Context, endpoint string) (bool, error)
}
