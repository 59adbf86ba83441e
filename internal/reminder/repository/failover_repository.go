package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"voicelog-backend/internal/reminder/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// ErrBackendUnavailable is recorded in HealthStatus when the durable backend
// cannot serve requests. Callers of FailoverRepository never receive it.
var ErrBackendUnavailable = errors.New("durable backend unavailable")

// FailoverOptions configures FailoverRepository
type FailoverOptions struct {
	// OpTimeout bounds every durable call
	OpTimeout time.Duration
	// ProbeInterval is the minimum gap between health probes while degraded
	ProbeInterval time.Duration
	// CreateRetries is how many extra durable attempts Create makes before falling back
	CreateRetries uint64
	// OnBackendChange is called after every switch between durable and fallback
	OnBackendChange func(Backend)
	Clock           func() time.Time
	Logger          zerolog.Logger
}

// FailoverRepository routes every call to the durable backend while it is
// healthy and to the in-process fallback otherwise.
//   - An availability error flips the health flag and the same call is served
//     by the fallback.
//   - While degraded, a Ping probe runs at most once per ProbeInterval on
//     the request path; when it succeeds, reminders written to the fallback
//     are replayed into the durable store and routing switches back.
//   - Calls hold gate shared; replay holds it exclusively, so a call either
//     lands in the fallback before replay lists it or runs after the switch.
//   - A nil durable backend means fallback-only mode.
type FailoverRepository struct {
	durable  ReminderRepository
	fallback ReminderRepository
	opts     FailoverOptions
	log      zerolog.Logger

	gate sync.RWMutex

	mu        sync.Mutex
	healthy   bool
	since     time.Time
	lastErr   string
	lastProbe time.Time
	probing   bool
}

// NewFailoverRepository wraps durable and fallback into one ReminderRepository
func NewFailoverRepository(durable, fallback ReminderRepository, opts FailoverOptions) *FailoverRepository {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 3 * time.Second
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	f := &FailoverRepository{
		durable:  durable,
		fallback: fallback,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "store").Logger(),
		healthy:  durable != nil,
		since:    opts.Clock(),
	}
	if durable == nil {
		f.lastErr = "durable backend not configured"
	}
	return f
}

// Health reports which backend currently serves requests
func (f *FailoverRepository) Health() HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := HealthStatus{Backend: BackendFallback, Since: f.since, LastError: f.lastErr}
	if f.healthy {
		status.Backend = BackendDurable
	}
	return status
}

func (f *FailoverRepository) Create(ctx context.Context, reminder *domain.Reminder) error {
	durable, release := f.acquire(ctx)
	defer release()
	if durable {
		attempt := func() error {
			err := f.callDurable(ctx, func(ctx context.Context) error {
				return f.durable.Create(ctx, reminder)
			})
			if err != nil && !f.unavailable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), f.opts.CreateRetries), ctx)
		err := backoff.Retry(attempt, policy)
		if err == nil || !f.unavailable(ctx, err) {
			return err
		}
		f.markDown("create", err)
	}
	return f.fallback.Create(ctx, reminder)
}

func (f *FailoverRepository) FindByID(ctx context.Context, id string) (*domain.Reminder, error) {
	return route(f, ctx, "find", func(ctx context.Context, repo ReminderRepository) (*domain.Reminder, error) {
		return repo.FindByID(ctx, id)
	})
}

func (f *FailoverRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Reminder, error) {
	return route(f, ctx, "list", func(ctx context.Context, repo ReminderRepository) ([]*domain.Reminder, error) {
		return repo.List(ctx, filter)
	})
}

func (f *FailoverRepository) Update(ctx context.Context, reminder *domain.Reminder) error {
	_, err := route(f, ctx, "update", func(ctx context.Context, repo ReminderRepository) (struct{}, error) {
		return struct{}{}, repo.Update(ctx, reminder)
	})
	return err
}

func (f *FailoverRepository) UpdateIfUnchanged(ctx context.Context, reminder *domain.Reminder) (bool, error) {
	return route(f, ctx, "update", func(ctx context.Context, repo ReminderRepository) (bool, error) {
		return repo.UpdateIfUnchanged(ctx, reminder)
	})
}

func (f *FailoverRepository) Delete(ctx context.Context, id string) (bool, error) {
	return route(f, ctx, "delete", func(ctx context.Context, repo ReminderRepository) (bool, error) {
		return repo.Delete(ctx, id)
	})
}

func (f *FailoverRepository) FindDueCandidates(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	return route(f, ctx, "due", func(ctx context.Context, repo ReminderRepository) ([]*domain.Reminder, error) {
		return repo.FindDueCandidates(ctx, before)
	})
}

func (f *FailoverRepository) FindExpiredNotified(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	return route(f, ctx, "expired", func(ctx context.Context, repo ReminderRepository) ([]*domain.Reminder, error) {
		return repo.FindExpiredNotified(ctx, before)
	})
}

// Ping succeeds whenever some backend can serve requests
func (f *FailoverRepository) Ping(ctx context.Context) error {
	return nil
}

// route runs fn against the durable backend when healthy, and against the
// fallback when degraded or when the durable call fails for availability reasons.
func route[T any](f *FailoverRepository, ctx context.Context, op string, fn func(context.Context, ReminderRepository) (T, error)) (T, error) {
	durable, release := f.acquire(ctx)
	defer release()
	if durable {
		var out T
		err := f.callDurable(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, f.durable)
			return err
		})
		if err == nil || !f.unavailable(ctx, err) {
			return out, err
		}
		f.markDown(op, err)
	}
	return fn(ctx, f.fallback)
}

func (f *FailoverRepository) callDurable(ctx context.Context, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, f.opts.OpTimeout)
	defer cancel()
	return fn(opCtx)
}

// acquire pings the durable backend when it is degraded and a check is due,
// then holds the gate shared until release is called. It reports whether the
// call should go to the durable backend.
func (f *FailoverRepository) acquire(ctx context.Context) (bool, func()) {
	if f.durable == nil {
		return false, func() {}
	}
	f.probeIfDue(ctx)

	f.gate.RLock()
	f.mu.Lock()
	healthy := f.healthy
	f.mu.Unlock()
	return healthy, f.gate.RUnlock
}

func (f *FailoverRepository) probeIfDue(ctx context.Context) {
	f.mu.Lock()
	now := f.opts.Clock()
	if f.healthy || f.probing || now.Sub(f.lastProbe) < f.opts.ProbeInterval {
		f.mu.Unlock()
		return
	}
	f.probing = true
	f.lastProbe = now
	f.mu.Unlock()

	err := f.callDurable(ctx, f.durable.Ping)
	if err == nil {
		f.gate.Lock()
		if err = f.replay(ctx); err == nil {
			f.restore()
		}
		f.gate.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.probing = false
	if err != nil {
		f.lastErr = err.Error()
		f.log.Debug().Err(err).Msg("durable backend still unavailable")
	}
}

func (f *FailoverRepository) restore() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = true
	f.since = f.opts.Clock()
	f.lastErr = ""
	f.log.Info().Msg("durable backend recovered, routing restored")
	if f.opts.OnBackendChange != nil {
		f.opts.OnBackendChange(BackendDurable)
	}
}

// replay copies reminders written during the outage into the durable store
func (f *FailoverRepository) replay(ctx context.Context) error {
	pending, err := f.fallback.List(ctx, domain.FilterAll)
	if err != nil {
		return err
	}
	for _, reminder := range pending {
		err := f.callDurable(ctx, func(ctx context.Context) error {
			return f.durable.Update(ctx, reminder)
		})
		if err != nil {
			return err
		}
		if _, err := f.fallback.Delete(ctx, reminder.ID); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		f.log.Info().Int("count", len(pending)).Msg("replayed fallback reminders into durable store")
	}
	return nil
}

func (f *FailoverRepository) markDown(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err.Error()
	if !f.healthy {
		return
	}
	now := f.opts.Clock()
	f.healthy = false
	f.since = now
	f.lastProbe = now
	f.log.Warn().Err(err).Str("op", op).Msg("durable backend unavailable, serving from fallback")
	if f.opts.OnBackendChange != nil {
		f.opts.OnBackendChange(BackendFallback)
	}
}

// unavailable reports whether err means the durable backend cannot be
// reached, as opposed to a query error or the caller giving up.
func (f *FailoverRepository) unavailable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return IsUnavailable(err)
}

// IsUnavailable classifies transport and availability errors
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; 57P0x: admin/crash shutdown; 53300: too many connections
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03",
			pgErr.Code == "53300":
			return true
		}
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"broken pipe",
		"dial tcp",
		"sql: database is closed",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
