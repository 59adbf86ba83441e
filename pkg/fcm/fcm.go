package fcm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ErrUnregistered reports a token Firebase no longer accepts
var ErrUnregistered = errors.New("fcm token unregistered")

// Client wraps Firebase Cloud Messaging functionality
type Client struct {
	messagingClient *messaging.Client
	log             zerolog.Logger
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile string, log zerolog.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log = log.With().Str("component", "fcm").Logger()
	log.Info().Msg("client initialized")
	return &Client{
		messagingClient: messagingClient,
		log:             log,
	}, nil
}

// NotificationData is one alert for one device
type NotificationData struct {
	Title string
	Body  string
	Data  map[string]string
	// Tag collapses repeated alerts for the same reminder into one notification
	Tag string
	// TTL is how long Firebase keeps the message for an offline device
	TTL time.Duration
	// URL to open when notification is clicked
	ClickAction string
}

// SendToDevice sends a push notification to a specific device token.
// An unregistered or invalid token yields ErrUnregistered.
func (c *Client) SendToDevice(ctx context.Context, token string, notification NotificationData) error {
	response, err := c.messagingClient.Send(ctx, buildMessage(token, notification))
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
			return fmt.Errorf("%w: %v", ErrUnregistered, err)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	c.log.Debug().Str("message_id", response).Msg("message sent")
	return nil
}

func buildMessage(token string, n NotificationData) *messaging.Message {
	android := &messaging.AndroidConfig{
		Priority: "high",
		Notification: &messaging.AndroidNotification{
			Tag: n.Tag,
		},
	}
	headers := map[string]string{"Urgency": "high"}
	if n.TTL > 0 {
		ttl := n.TTL
		android.TTL = &ttl
		headers["TTL"] = strconv.Itoa(int(n.TTL.Seconds()))
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data:    n.Data,
		Android: android,
		Webpush: &messaging.WebpushConfig{
			Headers: headers,
			Notification: &messaging.WebpushNotification{
				Title:              n.Title,
				Body:               n.Body,
				Icon:               "/icon-192.svg",
				Tag:                n.Tag,
				Renotify:           n.Tag != "",
				RequireInteraction: true,
			},
		},
	}
	if n.ClickAction != "" {
		message.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: n.ClickAction}
	}
	return message
}
