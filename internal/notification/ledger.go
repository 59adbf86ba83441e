package notification

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger counts delivery attempts per (reminder, dueAt). A snooze moves dueAt
// and therefore starts a fresh entry.
type Ledger interface {
	// Claim records an attempt and reports whether it is the first one
	Claim(ctx context.Context, reminderID string, dueAt time.Time) (bool, error)
	Attempts(ctx context.Context, reminderID string, dueAt time.Time) (int64, error)
}

func ledgerKey(reminderID string, dueAt time.Time) string {
	return "reminder:delivery:" + reminderID + ":" + strconv.FormatInt(dueAt.Unix(), 10)
}

type redisLedger struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLedger keeps the ledger in Redis so several processes share it
func NewRedisLedger(rdb *redis.Client, ttl time.Duration) Ledger {
	return &redisLedger{rdb: rdb, ttl: ttl}
}

func (l *redisLedger) Claim(ctx context.Context, reminderID string, dueAt time.Time) (bool, error) {
	key := ledgerKey(reminderID, dueAt)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: incr %s: %w", key, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
			return true, fmt.Errorf("redis: expire %s: %w", key, err)
		}
	}
	return n == 1, nil
}

func (l *redisLedger) Attempts(ctx context.Context, reminderID string, dueAt time.Time) (int64, error) {
	n, err := l.rdb.Get(ctx, ledgerKey(reminderID, dueAt)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

type memoryEntry struct {
	attempts  int64
	expiresAt time.Time
}

type memoryLedger struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemoryLedger keeps the ledger in process; entries expire after ttl
func NewMemoryLedger(ttl time.Duration, clock func() time.Time) Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &memoryLedger{entries: make(map[string]*memoryEntry), ttl: ttl, clock: clock}
}

func (l *memoryLedger) Claim(_ context.Context, reminderID string, dueAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	for k, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, k)
		}
	}

	key := ledgerKey(reminderID, dueAt)
	e, ok := l.entries[key]
	if !ok {
		e = &memoryEntry{expiresAt: now.Add(l.ttl)}
		l.entries[key] = e
	}
	e.attempts++
	return e.attempts == 1, nil
}

func (l *memoryLedger) Attempts(_ context.Context, reminderID string, dueAt time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ledgerKey(reminderID, dueAt)]; ok {
		return e.attempts, nil
	}
	return 0, nil
}
