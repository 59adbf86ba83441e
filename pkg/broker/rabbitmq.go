package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const dialTimeout = 5 * time.Second

var (
	// ErrReconnecting is returned by Publish while another caller is re-dialing
	ErrReconnecting = errors.New("rabbitmq reconnect in progress")
	// ErrPublisherClosed is returned by Publish after Close
	ErrPublisherClosed = errors.New("rabbitmq publisher closed")
)

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
}

// session is an open channel plus a func that tears down its connection
type session struct {
	channel channel
	close   func() error
}

type dialFunc func(ctx context.Context) (*session, error)

// Publisher publishes JSON events to a fanout exchange. The connection is
// re-dialed lazily after the broker closes it; the dial runs outside the
// lock, and concurrent publishes fail fast until it finishes.
type Publisher struct {
	exchange string
	dial     dialFunc
	log      zerolog.Logger

	mu           sync.Mutex
	sess         *session
	reconnecting bool
	closed       bool
}

// NewPublisher connects with retries and declares the exchange
func NewPublisher(ctx context.Context, url, exchange string, attempts uint64, log zerolog.Logger) (*Publisher, error) {
	p := newPublisher(exchange, amqpDialer(url, exchange, dialTimeout), log)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), attempts), ctx)
	err := backoff.RetryNotify(func() error {
		_, err := p.reconnect(ctx, nil)
		return err
	}, policy, func(err error, wait time.Duration) {
		p.log.Warn().Err(err).Dur("retry_in", wait).Msg("rabbitmq connect failed")
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to rabbitmq: %w", err)
	}
	p.log.Info().Str("exchange", exchange).Msg("publisher ready")
	return p, nil
}

func newPublisher(exchange string, dial dialFunc, log zerolog.Logger) *Publisher {
	return &Publisher{
		exchange: exchange,
		dial:     dial,
		log:      log.With().Str("component", "broker").Logger(),
	}
}

// amqpDialer opens a connection and channel and declares the exchange. The
// TCP dial follows ctx and timeout bounds the TCP and AMQP handshake.
func amqpDialer(url, exchange string, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (*session, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial: func(network, addr string) (net.Conn, error) {
				d := net.Dialer{Timeout: timeout}
				c, err := d.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				// cleared by the library once the handshake completes
				if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
					_ = c.Close()
					return nil, err
				}
				return c, nil
			},
		})
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("error creating channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("error declaring exchange: %w", err)
		}
		return &session{
			channel: ch,
			close: func() error {
				if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
					_ = conn.Close()
					return err
				}
				if conn.IsClosed() {
					return nil
				}
				return conn.Close()
			},
		}, nil
	}
}

// Publish sends body with the given message id. A closed channel is
// re-opened once before giving up.
func (p *Publisher) Publish(ctx context.Context, messageID string, body []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	var ch channel
	if p.sess != nil {
		ch = p.sess.channel
	}
	p.mu.Unlock()

	var err error
	if ch == nil || ch.IsClosed() {
		if ch, err = p.reconnect(ctx, ch); err != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", err)
		}
	}
	err = ch.PublishWithContext(ctx, p.exchange, "", false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		if ch, err = p.reconnect(ctx, ch); err != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", err)
		}
		err = ch.PublishWithContext(ctx, p.exchange, "", false, false, msg)
	}
	return err
}

// reconnect replaces the session whose channel is stale. If another caller
// already replaced it, the fresh channel is returned without dialing.
func (p *Publisher) reconnect(ctx context.Context, stale channel) (channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPublisherClosed
	}
	if p.sess != nil && p.sess.channel != stale && !p.sess.channel.IsClosed() {
		ch := p.sess.channel
		p.mu.Unlock()
		return ch, nil
	}
	if p.reconnecting {
		p.mu.Unlock()
		return nil, ErrReconnecting
	}
	p.reconnecting = true
	old := p.sess
	p.sess = nil
	p.mu.Unlock()

	if old != nil {
		_ = old.close()
	}
	next, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnecting = false
	if err != nil {
		return nil, err
	}
	if p.closed {
		_ = next.close()
		return nil, ErrPublisherClosed
	}
	p.sess = next
	if old != nil {
		p.log.Info().Msg("rabbitmq channel re-opened")
	}
	return next.channel, nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	sess := p.sess
	p.sess = nil
	p.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.close()
}
