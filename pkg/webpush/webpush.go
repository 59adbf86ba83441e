// Package webpush sends encrypted Web Push messages signed with VAPID keys.
package webpush

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
)

// ErrGone reports an endpoint the push service has expired or removed
var ErrGone = errors.New("web push endpoint gone")

// Subscription is the browser-provided endpoint and its encryption keys
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Config holds the VAPID identity of this application server
type Config struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact for the push service operator
	Subject string
	TTL     time.Duration
}

// Client sends notifications through the subscriber's push service
type Client struct {
	cfg        Config
	httpClient webpushgo.HTTPClient
}

// NewClient validates cfg and returns a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient webpushgo.HTTPClient) (*Client, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, errors.New("webpush: VAPID key pair is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "mailto:admin@localhost"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// Send encrypts payload for sub and posts it. 404 and 410 responses yield ErrGone.
func (c *Client) Send(ctx context.Context, sub Subscription, payload []byte) error {
	resp, err := webpushgo.SendNotificationWithContext(ctx, payload, &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpushgo.Options{
		HTTPClient:      c.httpClient,
		Subscriber:      c.cfg.Subject,
		VAPIDPublicKey:  c.cfg.PublicKey,
		VAPIDPrivateKey: c.cfg.PrivateKey,
		TTL:             int(c.cfg.TTL.Seconds()),
		Urgency:         webpushgo.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("webpush: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrGone, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webpush: push service responded %d", resp.StatusCode)
	}
	return nil
}

// GenerateKeys returns a fresh VAPID key pair (private, public)
func GenerateKeys() (string, string, error) {
	return webpushgo.GenerateVAPIDKeys()
}
