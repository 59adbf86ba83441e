package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/internal/reminder/repository"
	"voicelog-backend/pkg/timeparse"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxSnoozeMinutes caps a single snooze at one day
const MaxSnoozeMinutes = 24 * 60

const mutateAttempts = 3

// Options configures the reminder usecase
type Options struct {
	// Location anchors parsed clock times such as "at 3pm"
	Location             *time.Location
	Clock                func() time.Time
	DefaultSnoozeMinutes int
	// SnoozeMinutes, when set, is read on every snooze and overrides DefaultSnoozeMinutes
	SnoozeMinutes func() int
	Logger        zerolog.Logger
}

// reminderUsecase implements ReminderUsecase interface
type reminderUsecase struct {
	repo repository.ReminderRepository
	opts Options
	log  zerolog.Logger
}

// NewReminderUsecase creates a new instance of reminderUsecase
func NewReminderUsecase(repo repository.ReminderRepository, opts Options) ReminderUsecase {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultSnoozeMinutes <= 0 {
		opts.DefaultSnoozeMinutes = 10
	}
	return &reminderUsecase{
		repo: repo,
		opts: opts,
		log:  opts.Logger.With().Str("component", "reminders").Logger(),
	}
}

func (u *reminderUsecase) defaultSnooze() int {
	if u.opts.SnoozeMinutes != nil {
		if m := u.opts.SnoozeMinutes(); m > 0 {
			return m
		}
	}
	return u.opts.DefaultSnoozeMinutes
}

func (u *reminderUsecase) now() time.Time {
	return u.opts.Clock().In(u.opts.Location)
}

func (u *reminderUsecase) CreateReminder(ctx context.Context, input CreateReminderInput) (*domain.Reminder, error) {
	now := u.now()
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	var (
		dueAt  time.Time
		repeat = 1
	)
	if input.DueAt != nil {
		dueAt = *input.DueAt
	} else {
		parsed, err := timeparse.Parse(text, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailure, err)
		}
		dueAt, text, repeat = parsed.DueAt, parsed.Text, parsed.RepeatCount
	}
	if input.RepeatCount != nil {
		repeat = *input.RepeatCount
	}

	reminder := &domain.Reminder{
		ID:           uuid.New().String(),
		Text:         text,
		DueAt:        dueAt,
		Status:       domain.StatusPending,
		VoiceEnabled: input.VoiceEnabled,
		RepeatCount:  domain.ClampRepeatCount(repeat),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.repo.Create(ctx, reminder); err != nil {
		return nil, err
	}

	u.log.Info().Str("reminder_id", reminder.ID).Time("due_at", reminder.DueAt).Msg("reminder created")
	return reminder, nil
}

func (u *reminderUsecase) ParsePreview(text string) (timeparse.Result, error) {
	res, err := timeparse.Parse(text, u.now())
	if err != nil {
		return timeparse.Result{}, fmt.Errorf("%w: %w", ErrParseFailure, err)
	}
	return res, nil
}

func (u *reminderUsecase) GetReminder(ctx context.Context, id string) (*domain.Reminder, error) {
	reminder, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder == nil {
		return nil, ErrNotFound
	}
	return reminder, nil
}

func (u *reminderUsecase) ListReminders(ctx context.Context, filter domain.ListFilter) ([]*domain.Reminder, error) {
	return u.repo.List(ctx, filter)
}

func (u *reminderUsecase) UpdateReminder(ctx context.Context, id string, patch ReminderPatch) (*domain.Reminder, error) {
	var text string
	if patch.Text != nil {
		if text = strings.TrimSpace(*patch.Text); text == "" {
			return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidInput)
		}
	}

	return u.mutate(ctx, id, func(reminder *domain.Reminder) (bool, error) {
		now := u.now()
		if patch.Text != nil {
			reminder.Text = text
		}
		if patch.VoiceEnabled != nil {
			reminder.VoiceEnabled = *patch.VoiceEnabled
		}
		if patch.RepeatCount != nil {
			reminder.RepeatCount = domain.ClampRepeatCount(*patch.RepeatCount)
		}
		if patch.DueAt != nil {
			reminder.Reschedule(*patch.DueAt, now)
		}
		reminder.UpdatedAt = now
		return true, nil
	})
}

func (u *reminderUsecase) DeleteReminder(ctx context.Context, id string) (bool, error) {
	return u.repo.Delete(ctx, id)
}

func (u *reminderUsecase) DismissReminder(ctx context.Context, id string, method domain.DismissMethod) (*domain.Reminder, error) {
	if method == "" {
		method = domain.DismissManual
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, domain.ErrInvalidDismissMethod)
	}

	reminder, err := u.mutate(ctx, id, func(reminder *domain.Reminder) (bool, error) {
		return reminder.Complete(method, u.now())
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("reminder_id", id).Str("method", string(method)).Msg("reminder dismissed")
	return reminder, nil
}

func (u *reminderUsecase) SnoozeReminder(ctx context.Context, id string, minutes int) (*domain.Reminder, error) {
	if minutes == 0 {
		minutes = u.defaultSnooze()
	}
	if minutes < 1 || minutes > MaxSnoozeMinutes {
		return nil, fmt.Errorf("%w: snooze minutes must be between 1 and %d", ErrInvalidInput, MaxSnoozeMinutes)
	}

	reminder, err := u.mutate(ctx, id, func(reminder *domain.Reminder) (bool, error) {
		if err := reminder.Snooze(time.Duration(minutes)*time.Minute, u.now()); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return false, fmt.Errorf("cannot snooze a completed reminder: %w", err)
			}
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("reminder_id", id).Int("minutes", minutes).Int("snooze_count", reminder.SnoozeCount).Msg("reminder snoozed")
	return reminder, nil
}

// mutate applies fn to a fresh copy of the reminder and saves it only if no
// other writer changed the reminder in between. A lost race re-reads and
// applies fn again; fn returning false leaves the store untouched.
func (u *reminderUsecase) mutate(ctx context.Context, id string, fn func(*domain.Reminder) (bool, error)) (*domain.Reminder, error) {
	for attempt := 0; attempt < mutateAttempts; attempt++ {
		reminder, err := u.GetReminder(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(reminder)
		if err != nil {
			return nil, err
		}
		if !changed {
			return reminder, nil
		}
		saved, err := u.repo.UpdateIfUnchanged(ctx, reminder)
		if err != nil {
			return nil, err
		}
		if saved {
			return reminder, nil
		}
		u.log.Debug().Str("reminder_id", id).Int("attempt", attempt+1).Msg("reminder changed concurrently, retrying")
	}
	return nil, ErrConflict
}
