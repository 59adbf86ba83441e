package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicelog-backend/internal/notification"
	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/internal/reminder/repository"
	"voicelog-backend/pkg/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrStopped is returned by CheckNow after Stop
var ErrStopped = errors.New("reminder monitor stopped")

// Deliverer sends a due reminder to its recipients
type Deliverer interface {
	Deliver(ctx context.Context, r *domain.Reminder) notification.Report
}

// ScanResult counts what one scan did
type ScanResult struct {
	Due           int `json:"due"`
	Notified      int `json:"notified"`
	AutoCompleted int `json:"auto_completed"`
}

// Options configures a ReminderMonitor
type Options struct {
	Interval time.Duration
	// Grace is how long a reminder stays notified before it is auto-completed
	Grace   time.Duration
	Clock   func() time.Time
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// ReminderMonitor periodically moves due reminders to notified, hands them to
// the dispatcher, and auto-completes notified reminders once the grace window
// has passed. Periodic and on-demand scans never overlap.
type ReminderMonitor struct {
	repo       repository.ReminderRepository
	dispatcher Deliverer
	opts       Options
	log        zerolog.Logger

	scans singleflight.Group

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewReminderMonitor creates a new monitor
func NewReminderMonitor(repo repository.ReminderRepository, dispatcher Deliverer, opts Options) *ReminderMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ReminderMonitor{
		repo:       repo,
		dispatcher: dispatcher,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "monitor").Logger(),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the scheduler loop. It scans once immediately.
func (m *ReminderMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.log.Info().Dur("interval", m.opts.Interval).Dur("grace", m.opts.Grace).Msg("starting reminder monitor")

	go func() {
		defer close(m.done)

		m.tick(ctx)

		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// stop wins over a tick that became ready at the same time
				select {
				case <-m.stopChan:
					return
				default:
				}
				m.tick(ctx)
			case <-m.stopChan:
				m.log.Info().Msg("reminder monitor stopped")
				return
			case <-ctx.Done():
				m.log.Info().Msg("reminder monitor stopped")
				return
			}
		}
	}()
}

// Stop prevents new ticks and waits for the running one, including its
// deliveries, to finish.
func (m *ReminderMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	close(m.stopChan)
	m.mu.Unlock()

	if started {
		<-m.done
	}
}

// CheckNow runs a scan out of band. A scan already in progress is joined
// rather than repeated. The scan itself is not cancelled with ctx, since
// other callers may be waiting on it.
func (m *ReminderMonitor) CheckNow(ctx context.Context) (ScanResult, error) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return ScanResult{}, ErrStopped
	}
	return m.scan(ctx)
}

func (m *ReminderMonitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("recovered from panic in monitor tick")
		}
	}()

	if _, err := m.scan(ctx); err != nil {
		m.log.Error().Err(err).Msg("scan failed")
	}
}

func (m *ReminderMonitor) scan(ctx context.Context) (ScanResult, error) {
	v, err, _ := m.scans.Do("scan", func() (interface{}, error) {
		start := time.Now()
		defer func() { m.opts.Metrics.ObserveScan(time.Since(start)) }()
		return m.runScan(context.WithoutCancel(ctx))
	})
	if err != nil {
		return ScanResult{}, err
	}
	return v.(ScanResult), nil
}

func (m *ReminderMonitor) runScan(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	now := m.opts.Clock()

	candidates, err := m.repo.FindDueCandidates(ctx, now)
	if err != nil {
		return result, fmt.Errorf("find due reminders: %w", err)
	}

	var notified []*domain.Reminder
	for _, candidate := range candidates {
		if !candidate.IsDue(now) {
			continue
		}
		result.Due++

		r, err := m.transition(ctx, candidate.ID, func(r *domain.Reminder) error {
			return r.MarkNotified(now)
		})
		if err != nil {
			m.log.Error().Err(err).Str("reminder_id", candidate.ID).Msg("failed to mark reminder notified")
			continue
		}
		if r == nil {
			continue
		}
		result.Notified++
		m.opts.Metrics.Transition(string(domain.StatusNotified))
		notified = append(notified, r)
	}

	if len(notified) > 0 {
		m.log.Info().Int("count", len(notified)).Msg("dispatching due reminders")
		var wg sync.WaitGroup
		for _, r := range notified {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.dispatcher.Deliver(ctx, r)
			}()
		}
		wg.Wait()
	}

	expired, err := m.repo.FindExpiredNotified(ctx, now.Add(-m.opts.Grace))
	if err != nil {
		return result, fmt.Errorf("find expired reminders: %w", err)
	}
	for _, candidate := range expired {
		r, err := m.transition(ctx, candidate.ID, func(r *domain.Reminder) error {
			if r.Status != domain.StatusNotified {
				return errSkip
			}
			changed, err := r.Complete(domain.DismissAuto, now)
			if err == nil && !changed {
				return errSkip
			}
			return err
		})
		if err != nil {
			m.log.Error().Err(err).Str("reminder_id", candidate.ID).Msg("failed to auto-complete reminder")
			continue
		}
		if r == nil {
			continue
		}
		result.AutoCompleted++
		m.opts.Metrics.Transition(string(domain.StatusCompleted))
		m.log.Info().Str("reminder_id", r.ID).Msg("grace window elapsed, reminder auto-completed")
	}

	if result.Due > 0 || result.AutoCompleted > 0 {
		m.log.Debug().Int("due", result.Due).Int("notified", result.Notified).Int("auto_completed", result.AutoCompleted).Msg("scan finished")
	}
	return result, nil
}

var errSkip = errors.New("skip")

// transition re-reads the reminder, applies fn and saves it only if nobody
// wrote the reminder in between. It returns nil when the reminder is gone,
// no longer eligible, or a concurrent dismiss or snooze got there first.
func (m *ReminderMonitor) transition(ctx context.Context, id string, fn func(*domain.Reminder) error) (*domain.Reminder, error) {
	r, err := m.repo.FindByID(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		if errors.Is(err, errSkip) || errors.Is(err, domain.ErrInvalidTransition) {
			return nil, nil
		}
		return nil, err
	}
	saved, err := m.repo.UpdateIfUnchanged(ctx, r)
	if err != nil || !saved {
		if err == nil {
			m.log.Debug().Str("reminder_id", id).Msg("reminder changed during scan, transition dropped")
		}
		return nil, err
	}
	return r, nil
}
