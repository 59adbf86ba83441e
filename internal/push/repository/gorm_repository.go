package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voicelog-backend/internal/push/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormSubscriptionRepository implements SubscriptionRepository using GORM.
// The table is migrated on the first call that reaches the database.
type gormSubscriptionRepository struct {
	db *gorm.DB

	mu       sync.Mutex
	migrated bool
}

// NewGormSubscriptionRepository creates a new GORM-based SubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &gormSubscriptionRepository{db: db}
}

func (r *gormSubscriptionRepository) ensureSchema(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.migrated {
		return nil
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&domain.Subscription{}); err != nil {
		return fmt.Errorf("migrate push subscriptions: %w", err)
	}
	r.migrated = true
	return nil
}

// Save performs an atomic upsert keyed on endpoint
func (r *gormSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	now := time.Now()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.IsActive = true

	// INSERT ... ON CONFLICT (endpoint) DO UPDATE
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "provider", "user_agent", "is_active", "updated_at"}),
	}).Create(sub).Error
}

func (r *gormSubscriptionRepository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var subs []domain.Subscription
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *gormSubscriptionRepository) Deactivate(ctx context.Context, endpoint string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("endpoint = ?", endpoint).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}

func (r *gormSubscriptionRepository) Delete(ctx context.Context, endpoint string) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&domain.Subscription{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
