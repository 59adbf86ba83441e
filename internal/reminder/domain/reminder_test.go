package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func pending(due time.Time) *Reminder {
	return &Reminder{ID: "r1", Text: "call mom", DueAt: due, Status: StatusPending, RepeatCount: 1}
}

func TestMarkNotified(t *testing.T) {
	r := pending(now.Add(-time.Second))
	require.NoError(t, r.MarkNotified(now))
	assert.Equal(t, StatusNotified, r.Status)
	require.NotNil(t, r.NotifiedAt)
	assert.Equal(t, now, *r.NotifiedAt)

	// already notified
	assert.ErrorIs(t, r.MarkNotified(now), ErrInvalidTransition)

	// not yet due
	future := pending(now.Add(time.Minute))
	assert.ErrorIs(t, future.MarkNotified(now), ErrInvalidTransition)

	// due exactly now counts
	exact := pending(now)
	assert.NoError(t, exact.MarkNotified(now))
}

func TestComplete_Idempotent(t *testing.T) {
	r := pending(now)
	changed, err := r.Complete(DismissVoice, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, DismissVoice, r.DismissedBy)

	changed, err = r.Complete(DismissManual, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, DismissVoice, r.DismissedBy)
	assert.Equal(t, now, *r.CompletedAt)

	_, err = pending(now).Complete("shout", now)
	assert.ErrorIs(t, err, ErrInvalidDismissMethod)
}

func TestSnooze(t *testing.T) {
	r := pending(now.Add(-time.Minute))
	require.NoError(t, r.MarkNotified(now))

	require.NoError(t, r.Snooze(10*time.Minute, now))
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, now.Add(10*time.Minute), r.DueAt)
	assert.Equal(t, 1, r.SnoozeCount)
	assert.Equal(t, now, *r.LastSnoozedAt)
	assert.Nil(t, r.NotifiedAt)

	_, err := r.Complete(DismissManual, now)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Snooze(time.Minute, now), ErrInvalidTransition)
	assert.ErrorIs(t, pending(now).Snooze(0, now), ErrInvalidTransition)
}

func TestReschedule(t *testing.T) {
	r := pending(now.Add(-time.Minute))
	require.NoError(t, r.MarkNotified(now))

	r.Reschedule(now.Add(time.Hour), now)
	assert.Equal(t, StatusPending, r.Status)
	assert.Nil(t, r.NotifiedAt)

	done := pending(now)
	_, _ = done.Complete(DismissManual, now)
	done.Reschedule(now.Add(time.Hour), now)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestClone(t *testing.T) {
	r := pending(now)
	require.NoError(t, r.MarkNotified(now))
	c := r.Clone()
	*c.NotifiedAt = now.Add(time.Hour)
	assert.Equal(t, now, *r.NotifiedAt)
}

func TestListFilter(t *testing.T) {
	f, err := ParseListFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseListFilter("overdue")
	assert.ErrorIs(t, err, ErrInvalidFilter)

	notified := &Reminder{Status: StatusNotified}
	done := &Reminder{Status: StatusCompleted}
	assert.True(t, FilterPending.Matches(notified))
	assert.False(t, FilterPending.Matches(done))
	assert.True(t, FilterCompleted.Matches(done))
	assert.True(t, FilterAll.Matches(notified))
}

func TestClampRepeatCount(t *testing.T) {
	assert.Equal(t, 1, ClampRepeatCount(0))
	assert.Equal(t, 4, ClampRepeatCount(4))
	assert.Equal(t, 10, ClampRepeatCount(99))
}
