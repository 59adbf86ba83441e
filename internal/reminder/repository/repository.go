package repository

import (
	"context"
	"time"

	"voicelog-backend/internal/reminder/domain"
)

// ReminderRepository defines the interface for reminder data access.
// Lookups return (nil, nil) when the id is unknown.
type ReminderRepository interface {
	// Create stores a new reminder; the caller assigns the ID
	Create(ctx context.Context, reminder *domain.Reminder) error

	// FindByID finds a reminder by its ID
	FindByID(ctx context.Context, id string) (*domain.Reminder, error)

	// List returns reminders matching filter, newest first
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Reminder, error)

	// Update saves every field of an existing reminder without a version check
	Update(ctx context.Context, reminder *domain.Reminder) error

	// UpdateIfUnchanged saves reminder only while the stored copy still has
	// reminder.Version, and bumps Version on success. It reports false when
	// another writer got there first or the reminder is gone.
	UpdateIfUnchanged(ctx context.Context, reminder *domain.Reminder) (bool, error)

	// Delete removes a reminder and reports whether it existed
	Delete(ctx context.Context, id string) (bool, error)

	// FindDueCandidates returns pending reminders with due_at <= before
	FindDueCandidates(ctx context.Context, before time.Time) ([]*domain.Reminder, error)

	// FindExpiredNotified returns notified reminders with notified_at <= before
	FindExpiredNotified(ctx context.Context, before time.Time) ([]*domain.Reminder, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}

// Backend names the store currently serving requests
type Backend string

const (
	BackendDurable  Backend = "durable"
	BackendFallback Backend = "fallback"
)

// HealthStatus is the externally visible state of the store router
type HealthStatus struct {
	Backend   Backend   `json:"backend"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
}
