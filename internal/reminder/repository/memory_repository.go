package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"voicelog-backend/internal/reminder/domain"
)

// memoryReminderRepository keeps reminders in process memory. Contents are
// lost on restart; it backs the store only while the durable backend is down.
type memoryReminderRepository struct {
	mu        sync.RWMutex
	reminders map[string]*domain.Reminder
}

// NewMemoryReminderRepository creates an empty in-process ReminderRepository
func NewMemoryReminderRepository() ReminderRepository {
	return &memoryReminderRepository{reminders: make(map[string]*domain.Reminder)}
}

func (r *memoryReminderRepository) Create(_ context.Context, reminder *domain.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders[reminder.ID] = reminder.Clone()
	return nil
}

func (r *memoryReminderRepository) FindByID(_ context.Context, id string) (*domain.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reminder, ok := r.reminders[id]; ok {
		return reminder.Clone(), nil
	}
	return nil, nil
}

func (r *memoryReminderRepository) List(_ context.Context, filter domain.ListFilter) ([]*domain.Reminder, error) {
	out := r.collect(filter.Matches)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update upserts: a reminder created on the durable backend before an outage
// can still be saved here.
func (r *memoryReminderRepository) Update(_ context.Context, reminder *domain.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders[reminder.ID] = reminder.Clone()
	return nil
}

func (r *memoryReminderRepository) UpdateIfUnchanged(_ context.Context, reminder *domain.Reminder) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.reminders[reminder.ID]
	if !ok || stored.Version != reminder.Version {
		return false, nil
	}
	reminder.Version++
	r.reminders[reminder.ID] = reminder.Clone()
	return true, nil
}

func (r *memoryReminderRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.reminders[id]
	delete(r.reminders, id)
	return ok, nil
}

func (r *memoryReminderRepository) FindDueCandidates(_ context.Context, before time.Time) ([]*domain.Reminder, error) {
	out := r.collect(func(rem *domain.Reminder) bool { return rem.IsDue(before) })
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *memoryReminderRepository) FindExpiredNotified(_ context.Context, before time.Time) ([]*domain.Reminder, error) {
	return r.collect(func(rem *domain.Reminder) bool {
		return rem.Status == domain.StatusNotified && rem.NotifiedAt != nil && !rem.NotifiedAt.After(before)
	}), nil
}

func (r *memoryReminderRepository) Ping(context.Context) error {
	return nil
}

func (r *memoryReminderRepository) collect(keep func(*domain.Reminder) bool) []*domain.Reminder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Reminder, 0, len(r.reminders))
	for _, rem := range r.reminders {
		if keep(rem) {
			out = append(out, rem.Clone())
		}
	}
	return out
}
