package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUnreachable is returned together with a usable handle when Postgres did
// not answer within the configured attempts. The pool reconnects on its own
// once the server is back.
var ErrUnreachable = errors.New("postgres unreachable")

// Options configures the Postgres connection
type Options struct {
	URL      string
	Attempts uint64
	// PingTimeout bounds each connection check
	PingTimeout time.Duration
	Logger      zerolog.Logger
}

// NewPostgresConnection opens a gorm handle and verifies it, retrying the
// ping with exponential backoff. A bad DSN fails outright; an unreachable
// server yields the handle and an error wrapping ErrUnreachable.
func NewPostgresConnection(ctx context.Context, opts Options) (*gorm.DB, error) {
	log := opts.Logger.With().Str("component", "database").Logger()
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}

	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return sqlDB.PingContext(pingCtx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.Attempts), ctx)
	err = backoff.RetryNotify(ping, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("postgres connect failed")
	})
	if err != nil {
		return db, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	log.Info().Msg("connected to postgres")
	return db, nil
}

// Close releases the underlying pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
