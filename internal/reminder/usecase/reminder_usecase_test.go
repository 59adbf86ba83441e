package usecase

import (
	"context"
	"testing"
	"time"

	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/internal/reminder/repository"
	"voicelog-backend/pkg/timeparse"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

var start = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newUsecase() (ReminderUsecase, *fixedClock) {
	clk := &fixedClock{now: start}
	uc := NewReminderUsecase(repository.NewMemoryReminderRepository(), Options{
		Location: time.UTC,
		Clock:    clk.Now,
		Logger:   zerolog.Nop(),
	})
	return uc, clk
}

func TestCreateReminder_ParsesText(t *testing.T) {
	uc, _ := newUsecase()
	ctx := context.Background()

	r, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "remind me in 2 minutes to call mom"})
	require.NoError(t, err)
	assert.Equal(t, "call mom", r.Text)
	assert.Equal(t, start.Add(2*time.Minute), r.DueAt)
	assert.Equal(t, 1, r.RepeatCount)
	assert.Equal(t, domain.StatusPending, r.Status)
	assert.NotEmpty(t, r.ID)

	got, err := uc.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestCreateReminder_RepeatPhrase(t *testing.T) {
	uc, _ := newUsecase()
	r, err := uc.CreateReminder(context.Background(), CreateReminderInput{Text: "remind me today at 2:00 PM to test 3 times", VoiceEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "test", r.Text)
	assert.Equal(t, 3, r.RepeatCount)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), r.DueAt)
	assert.True(t, r.VoiceEnabled)
}

func TestCreateReminder_ExplicitDueAt(t *testing.T) {
	uc, _ := newUsecase()
	due := start.Add(time.Hour)
	repeat := 25
	r, err := uc.CreateReminder(context.Background(), CreateReminderInput{Text: "water plants", DueAt: &due, RepeatCount: &repeat})
	require.NoError(t, err)
	assert.Equal(t, "water plants", r.Text)
	assert.Equal(t, due, r.DueAt)
	assert.Equal(t, domain.MaxRepeatCount, r.RepeatCount)
}

func TestCreateReminder_Failures(t *testing.T) {
	uc, _ := newUsecase()
	ctx := context.Background()

	_, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "buy milk"})
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.ErrorIs(t, err, timeparse.ErrNoMatch)

	_, err = uc.CreateReminder(ctx, CreateReminderInput{Text: "remind me in 5 minutes"})
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.ErrorIs(t, err, timeparse.ErrEmptyText)

	_, err = uc.CreateReminder(ctx, CreateReminderInput{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := uc.ListReminders(ctx, domain.FilterAll)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDismissReminder_Idempotent(t *testing.T) {
	uc, clk := newUsecase()
	ctx := context.Background()
	r, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "in 1 minute stretch"})
	require.NoError(t, err)

	first, err := uc.DismissReminder(ctx, r.ID, domain.DismissVoice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, first.Status)

	clk.now = clk.now.Add(time.Minute)
	second, err := uc.DismissReminder(ctx, r.ID, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = uc.DismissReminder(ctx, "missing", domain.DismissManual)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = uc.DismissReminder(ctx, r.ID, "telepathy")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSnoozeReminder(t *testing.T) {
	uc, clk := newUsecase()
	ctx := context.Background()
	r, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "in 1 minute stretch"})
	require.NoError(t, err)

	clk.now = clk.now.Add(3 * time.Minute)
	snoozed, err := uc.SnoozeReminder(ctx, r.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, clk.now.Add(10*time.Minute), snoozed.DueAt)
	assert.Equal(t, 1, snoozed.SnoozeCount)
	assert.Equal(t, clk.now, *snoozed.LastSnoozedAt)

	defaulted, err := uc.SnoozeReminder(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, clk.now.Add(10*time.Minute), defaulted.DueAt)
	assert.Equal(t, 2, defaulted.SnoozeCount)

	_, err = uc.SnoozeReminder(ctx, r.ID, 5000)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = uc.DismissReminder(ctx, r.ID, domain.DismissManual)
	require.NoError(t, err)
	_, err = uc.SnoozeReminder(ctx, r.ID, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateAndDelete(t *testing.T) {
	uc, _ := newUsecase()
	ctx := context.Background()
	r, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "in 1 hour call mom"})
	require.NoError(t, err)

	text := "call dad"
	voice := true
	due := start.Add(2 * time.Hour)
	updated, err := uc.UpdateReminder(ctx, r.ID, ReminderPatch{Text: &text, VoiceEnabled: &voice, DueAt: &due})
	require.NoError(t, err)
	assert.Equal(t, "call dad", updated.Text)
	assert.True(t, updated.VoiceEnabled)
	assert.Equal(t, due, updated.DueAt)

	empty := " "
	_, err = uc.UpdateReminder(ctx, r.ID, ReminderPatch{Text: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = uc.UpdateReminder(ctx, "missing", ReminderPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := uc.DeleteReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = uc.DeleteReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParsePreview(t *testing.T) {
	uc, _ := newUsecase()
	res, err := uc.ParsePreview("tomorrow at 9am stand-up")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), res.DueAt)

	_, err = uc.ParsePreview("whenever")
	assert.ErrorIs(t, err, ErrParseFailure)
}

// racingRepository lets another writer edit the stored reminder right before
// each of the next races conditional saves
type racingRepository struct {
	repository.ReminderRepository
	races int
}

func (r *racingRepository) UpdateIfUnchanged(ctx context.Context, reminder *domain.Reminder) (bool, error) {
	if r.races > 0 {
		r.races--
		stored, err := r.ReminderRepository.FindByID(ctx, reminder.ID)
		if err != nil {
			return false, err
		}
		stored.Text = "edited elsewhere"
		if _, err := r.ReminderRepository.UpdateIfUnchanged(ctx, stored); err != nil {
			return false, err
		}
	}
	return r.ReminderRepository.UpdateIfUnchanged(ctx, reminder)
}

func TestSnoozeReminder_ConcurrentEditIsKept(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepository{ReminderRepository: repository.NewMemoryReminderRepository()}
	uc := NewReminderUsecase(repo, Options{Clock: func() time.Time { return start }, Logger: zerolog.Nop()})

	r, err := uc.CreateReminder(ctx, CreateReminderInput{Text: "in 1 minute stretch"})
	require.NoError(t, err)

	repo.races = 1
	snoozed, err := uc.SnoozeReminder(ctx, r.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "edited elsewhere", snoozed.Text, "the snooze is applied on top of the other write")
	assert.Equal(t, 1, snoozed.SnoozeCount)

	stored, err := uc.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, snoozed, stored)

	repo.races = mutateAttempts
	_, err = uc.DismissReminder(ctx, r.ID, domain.DismissManual)
	assert.ErrorIs(t, err, ErrConflict)
}
