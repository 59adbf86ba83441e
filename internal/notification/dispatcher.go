package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	pushdomain "voicelog-backend/internal/push/domain"
	pushrepo "voicelog-backend/internal/push/repository"
	"voicelog-backend/internal/reminder/domain"
	"voicelog-backend/pkg/metrics"
	"voicelog-backend/pkg/sse"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LiveRegistry is the part of the client registry the dispatcher uses
type LiveRegistry interface {
	ForEach(visit func(*sse.Client))
	Unregister(id string)
}

// Publisher forwards alerts to a message broker
type Publisher interface {
	Publish(ctx context.Context, messageID string, body []byte) error
}

// Options configures a Dispatcher. Registry, Subscriptions and Ledger are required.
type Options struct {
	Registry      LiveRegistry
	Subscriptions pushrepo.SubscriptionRepository
	Senders       map[pushdomain.Provider]PushSender
	Publisher     Publisher
	Ledger        Ledger
	// Timeout bounds each individual delivery call
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Report summarizes one Deliver call
type Report struct {
	Duplicate   bool `json:"duplicate"`
	Live        int  `json:"live"`
	LiveFailed  int  `json:"live_failed"`
	Pushed      int  `json:"pushed"`
	PushFailed  int  `json:"push_failed"`
	Deactivated int  `json:"deactivated"`
	Published   bool `json:"published"`
}

// Dispatcher fans a due reminder out to live clients, push subscribers and
// the broker. Failures are isolated per recipient and never returned.
type Dispatcher struct {
	opts Options
	log  zerolog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		opts: opts,
		log:  opts.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Deliver sends r on every channel. A second call for the same reminder and
// due time is a no-op. Cancelling ctx does not abort deliveries already
// started; each one ends on its own timeout.
func (d *Dispatcher) Deliver(ctx context.Context, r *domain.Reminder) Report {
	var report Report
	log := d.log.With().Str("reminder_id", r.ID).Logger()

	first, err := d.opts.Ledger.Claim(ctx, r.ID, r.DueAt)
	if err != nil {
		log.Warn().Err(err).Msg("delivery ledger unavailable, delivering anyway")
		first = true
	}
	if !first {
		log.Debug().Msg("already delivered for this due time")
		report.Duplicate = true
		d.opts.Metrics.Delivery("all", metrics.ResultSkipped)
		return report
	}

	alert := NewAlert(r)
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		report.Live, report.LiveFailed = d.deliverLive(ctx, alert)
	}()
	go func() {
		defer wg.Done()
		report.Pushed, report.PushFailed, report.Deactivated = d.deliverPush(ctx, alert)
	}()
	go func() {
		defer wg.Done()
		report.Published = d.publish(ctx, alert)
	}()
	wg.Wait()

	log.Info().
		Int("live", report.Live).
		Int("pushed", report.Pushed).
		Int("push_failed", report.PushFailed).
		Int("deactivated", report.Deactivated).
		Bool("published", report.Published).
		Msg("reminder delivered")
	return report
}

// deliverLive sends to every registered client concurrently and unregisters
// the ones whose send failed.
func (d *Dispatcher) deliverLive(ctx context.Context, alert Alert) (int, int) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dead []string
		sent atomic.Int32
	)
	event := sse.Event{Name: EventReminderAlert, Data: alert}

	d.opts.Registry.ForEach(func(client *sse.Client) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
			defer cancel()

			if err := client.Send(sendCtx, event); err != nil {
				d.log.Warn().Err(err).Str("client_id", client.ID).Msg("live delivery failed, dropping client")
				d.opts.Metrics.Delivery("live", metrics.ResultError)
				mu.Lock()
				dead = append(dead, client.ID)
				mu.Unlock()
				return
			}
			sent.Add(1)
			d.opts.Metrics.Delivery("live", metrics.ResultOK)
		}()
	})
	wg.Wait()

	for _, id := range dead {
		d.opts.Registry.Unregister(id)
	}
	return int(sent.Load()), len(dead)
}

func (d *Dispatcher) deliverPush(ctx context.Context, alert Alert) (int, int, int) {
	if len(d.opts.Senders) == 0 {
		return 0, 0, 0
	}

	listCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	subs, err := d.opts.Subscriptions.ListActive(listCtx)
	cancel()
	if err != nil {
		d.log.Error().Err(err).Msg("failed to load push subscriptions")
		return 0, 0, 0
	}

	var sent, failed, deactivated atomic.Int32
	g := new(errgroup.Group)

	for _, sub := range subs {
		sender, ok := d.opts.Senders[sub.Provider]
		if !ok {
			continue
		}
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
			defer cancel()

			err := sender.Send(sendCtx, sub, alert)
			switch {
			case err == nil:
				sent.Add(1)
				d.opts.Metrics.Delivery(string(sub.Provider), metrics.ResultOK)
			case errors.Is(err, pushdomain.ErrSubscriptionGone):
				failed.Add(1)
				d.opts.Metrics.Delivery(string(sub.Provider), metrics.ResultGone)
				deactivateCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
				defer cancel()
				if err := d.opts.Subscriptions.Deactivate(deactivateCtx, sub.Endpoint); err != nil {
					d.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to deactivate subscription")
					return nil
				}
				deactivated.Add(1)
				d.log.Info().Str("subscription_id", sub.ID).Msg("subscription gone, deactivated")
			default:
				failed.Add(1)
				d.opts.Metrics.Delivery(string(sub.Provider), metrics.ResultError)
				d.log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("push delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load()), int(failed.Load()), int(deactivated.Load())
}

func (d *Dispatcher) publish(ctx context.Context, alert Alert) bool {
	if d.opts.Publisher == nil {
		return false
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	messageID := ledgerKey(alert.Reminder.ID, alert.Reminder.DueAt)
	if err := d.opts.Publisher.Publish(pubCtx, messageID, body); err != nil {
		d.log.Warn().Err(err).Msg("broker publish failed")
		d.opts.Metrics.Delivery("broker", metrics.ResultError)
		return false
	}
	d.opts.Metrics.Delivery("broker", metrics.ResultOK)
	return true
}
