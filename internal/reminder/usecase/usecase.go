package usecase

import (
	"context"
	"errors"
	"time"

	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/pkg/timeparse"
)

var (
	// ErrNotFound means the id does not reference a reminder
	ErrNotFound = errors.New("reminder not found")
	// ErrParseFailure wraps the parser error when no time could be understood
	ErrParseFailure = errors.New("need more detail: could not understand when to remind you")
	// ErrInvalidInput covers malformed fields such as empty text or an out-of-range snooze
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict means concurrent writers kept changing the reminder
	ErrConflict = errors.New("reminder changed concurrently, try again")
)

// ReminderUsecase defines the boundary operations of the reminder engine
type ReminderUsecase interface {
	// CreateReminder stores a new reminder. Without DueAt the text is parsed
	// for a time expression and the residual becomes the reminder text.
	CreateReminder(ctx context.Context, input CreateReminderInput) (*domain.Reminder, error)

	// ParsePreview runs the parser without creating anything
	ParsePreview(text string) (timeparse.Result, error)

	GetReminder(ctx context.Context, id string) (*domain.Reminder, error)

	ListReminders(ctx context.Context, filter domain.ListFilter) ([]*domain.Reminder, error)

	// UpdateReminder applies a partial update
	UpdateReminder(ctx context.Context, id string, patch ReminderPatch) (*domain.Reminder, error)

	DeleteReminder(ctx context.Context, id string) (bool, error)

	// DismissReminder completes the reminder; repeating it is a no-op
	DismissReminder(ctx context.Context, id string, method domain.DismissMethod) (*domain.Reminder, error)

	// SnoozeReminder re-arms the reminder minutes from now; 0 uses the default
	SnoozeReminder(ctx context.Context, id string, minutes int) (*domain.Reminder, error)
}

// CreateReminderInput carries the fields of a new reminder
type CreateReminderInput struct {
	Text         string     `json:"text"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	VoiceEnabled bool       `json:"voice_enabled"`
	RepeatCount  *int       `json:"repeat_count,omitempty"`
}

// ReminderPatch represents the fields that can be updated
type ReminderPatch struct {
	Text         *string    `json:"text,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	VoiceEnabled *bool      `json:"voice_enabled,omitempty"`
	RepeatCount  *int       `json:"repeat_count,omitempty"`
}
