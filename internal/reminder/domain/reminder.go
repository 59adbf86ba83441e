package domain

import (
	"errors"
	"time"
)

// ReminderStatus represents the lifecycle state of a reminder
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusNotified  ReminderStatus = "notified"
	StatusCompleted ReminderStatus = "completed"
)

// DismissMethod records how a reminder reached Completed
type DismissMethod string

const (
	DismissManual DismissMethod = "manual"
	DismissVoice  DismissMethod = "voice"
	DismissPush   DismissMethod = "push"
	DismissAuto   DismissMethod = "auto"
)

// ListFilter selects reminders for the read API
type ListFilter string

const (
	FilterPending   ListFilter = "pending"
	FilterCompleted ListFilter = "completed"
	FilterAll       ListFilter = "all"
)

var (
	ErrInvalidTransition    = errors.New("invalid reminder state transition")
	ErrInvalidDismissMethod = errors.New("invalid dismiss method")
	ErrInvalidFilter        = errors.New("invalid list filter")
)

const (
	MinRepeatCount = 1
	MaxRepeatCount = 10
)

// Reminder is a time-bound task that fires a notification at DueAt
type Reminder struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	Text          string         `json:"text" gorm:"not null"`
	DueAt         time.Time      `json:"due_at" gorm:"index;not null"`
	Status        ReminderStatus `json:"status" gorm:"index;default:pending"`
	VoiceEnabled  bool           `json:"voice_enabled"`
	RepeatCount   int            `json:"repeat_count" gorm:"default:1"`
	SnoozeCount   int            `json:"snooze_count"`
	LastSnoozedAt *time.Time     `json:"last_snoozed_at,omitempty"`
	NotifiedAt    *time.Time     `json:"notified_at,omitempty" gorm:"index"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	DismissedBy   DismissMethod  `json:"dismissed_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Version       int64          `json:"-" gorm:"not null;default:0"`
}

// IsDue reports whether the reminder is pending and its due time has passed
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Status == StatusPending && !r.DueAt.After(now)
}

// MarkNotified moves a due Pending reminder to Notified
func (r *Reminder) MarkNotified(now time.Time) error {
	if !r.IsDue(now) {
		return ErrInvalidTransition
	}
	r.Status = StatusNotified
	r.NotifiedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete moves the reminder to the terminal state. It returns false when the
// reminder was already completed, in which case nothing changes.
func (r *Reminder) Complete(method DismissMethod, now time.Time) (bool, error) {
	if !method.Valid() {
		return false, ErrInvalidDismissMethod
	}
	if r.Status == StatusCompleted {
		return false, nil
	}
	r.Status = StatusCompleted
	r.DismissedBy = method
	r.CompletedAt = &now
	r.UpdatedAt = now
	return true, nil
}

// Snooze pushes the due time to now+d and re-arms the reminder.
func (r *Reminder) Snooze(d time.Duration, now time.Time) error {
	if r.Status == StatusCompleted || d <= 0 {
		return ErrInvalidTransition
	}
	due := now.Add(d)
	r.DueAt = due
	r.Status = StatusPending
	r.SnoozeCount++
	r.LastSnoozedAt = &now
	r.NotifiedAt = nil
	r.UpdatedAt = now
	return nil
}

// Reschedule sets a new due time from an edit. A notified reminder whose new
// due time lies in the future becomes pending again.
func (r *Reminder) Reschedule(due time.Time, now time.Time) {
	r.DueAt = due
	if r.Status == StatusNotified && due.After(now) {
		r.Status = StatusPending
		r.NotifiedAt = nil
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy so stores never share pointers with callers
func (r *Reminder) Clone() *Reminder {
	c := *r
	c.LastSnoozedAt = cloneTime(r.LastSnoozedAt)
	c.NotifiedAt = cloneTime(r.NotifiedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

// ClampRepeatCount limits the announcer repeat count to [1, 10]
func ClampRepeatCount(n int) int {
	return min(max(n, MinRepeatCount), MaxRepeatCount)
}

// Valid reports whether m is one of the known dismiss methods
func (m DismissMethod) Valid() bool {
	switch m {
	case DismissManual, DismissVoice, DismissPush, DismissAuto:
		return true
	}
	return false
}

// ParseListFilter maps a query value to a filter; empty means all
func ParseListFilter(s string) (ListFilter, error) {
	switch ListFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPending, FilterCompleted:
		return ListFilter(s), nil
	}
	return "", ErrInvalidFilter
}

// Matches reports whether r belongs in the filtered listing. Pending covers
// every not-yet-completed reminder, notified ones included.
func (f ListFilter) Matches(r *Reminder) bool {
	switch f {
	case FilterPending:
		return r.Status != StatusCompleted
	case FilterCompleted:
		return r.Status == StatusCompleted
	default:
		return true
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
