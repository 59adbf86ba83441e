package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicelog-backend/internal/reminder/domain"

	"gorm.io/gorm"
)

// gormReminderRepository implements ReminderRepository using GORM. The
// schema is migrated on the first call that reaches the database, so the
// repository can be built while Postgres is still down.
type gormReminderRepository struct {
	db *gorm.DB

	mu       sync.Mutex
	migrated bool
}

// NewGormReminderRepository creates a new GORM-based ReminderRepository
func NewGormReminderRepository(db *gorm.DB) ReminderRepository {
	return &gormReminderRepository{db: db}
}

func (r *gormReminderRepository) ensureSchema(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.migrated {
		return nil
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&domain.Reminder{}); err != nil {
		return fmt.Errorf("migrate reminders: %w", err)
	}
	r.migrated = true
	return nil
}

func (r *gormReminderRepository) Create(ctx context.Context, reminder *domain.Reminder) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(reminder).Error
}

func (r *gormReminderRepository) FindByID(ctx context.Context, id string) (*domain.Reminder, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var reminder domain.Reminder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reminder, nil
}

func (r *gormReminderRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Reminder, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var reminders []*domain.Reminder
	query := r.db.WithContext(ctx).Model(&domain.Reminder{})

	switch filter {
	case domain.FilterPending:
		query = query.Where("status <> ?", domain.StatusCompleted)
	case domain.FilterCompleted:
		query = query.Where("status = ?", domain.StatusCompleted)
	}

	err := query.Order("created_at DESC").Find(&reminders).Error
	return reminders, err
}

func (r *gormReminderRepository) Update(ctx context.Context, reminder *domain.Reminder) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(reminder).Error
}

func (r *gormReminderRepository) UpdateIfUnchanged(ctx context.Context, reminder *domain.Reminder) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}
	expected := reminder.Version
	reminder.Version = expected + 1
	res := r.db.WithContext(ctx).Model(reminder).
		Where("version = ?", expected).
		Select("*").
		Updates(reminder)
	if res.Error != nil || res.RowsAffected == 0 {
		reminder.Version = expected
		return false, res.Error
	}
	return true, nil
}

func (r *gormReminderRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Delete(&domain.Reminder{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormReminderRepository) FindDueCandidates(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var reminders []*domain.Reminder
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", domain.StatusPending, before).
		Order("due_at ASC").
		Find(&reminders).Error
	return reminders, err
}

func (r *gormReminderRepository) FindExpiredNotified(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var reminders []*domain.Reminder
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at <= ?", domain.StatusNotified, before).
		Find(&reminders).Error
	return reminders, err
}

func (r *gormReminderRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	return r.ensureSchema(ctx)
}
