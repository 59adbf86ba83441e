package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	pushdomain "voicelog-backend/internal/push/domain"
	"voicelog-backend/pkg/fcm"
	"voicelog-backend/pkg/webpush"
)

// alertTTL is how long a push service may hold an alert for an offline device
const alertTTL = 5 * time.Minute

// PushSender delivers an alert to one subscription. Implementations wrap
// pushdomain.ErrSubscriptionGone when the endpoint no longer exists.
type PushSender interface {
	Send(ctx context.Context, sub pushdomain.Subscription, alert Alert) error
}

type webPushClient interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) error
}

type fcmClient interface {
	SendToDevice(ctx context.Context, token string, notification fcm.NotificationData) error
}

// WebPushSender sends the JSON alert as an encrypted Web Push payload
type WebPushSender struct {
	client webPushClient
}

func NewWebPushSender(client webPushClient) *WebPushSender {
	return &WebPushSender{client: client}
}

func (s *WebPushSender) Send(ctx context.Context, sub pushdomain.Subscription, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	err = s.client.Send(ctx, webpush.Subscription{Endpoint: sub.Endpoint, P256dh: sub.P256dh, Auth: sub.Auth}, payload)
	if errors.Is(err, webpush.ErrGone) {
		return fmt.Errorf("%w: %v", pushdomain.ErrSubscriptionGone, err)
	}
	return err
}

// FCMSender sends a notification plus the alert fields as FCM data
type FCMSender struct {
	client fcmClient
}

func NewFCMSender(client fcmClient) *FCMSender {
	return &FCMSender{client: client}
}

func (s *FCMSender) Send(ctx context.Context, sub pushdomain.Subscription, alert Alert) error {
	r := alert.Reminder
	err := s.client.SendToDevice(ctx, sub.Endpoint, fcm.NotificationData{
		Title: "Reminder",
		Body:  r.Text,
		Data: map[string]string{
			"type":         alert.Type,
			"id":           r.ID,
			"text":         r.Text,
			"dueAt":        r.DueAt.Format(time.RFC3339),
			"voiceEnabled": strconv.FormatBool(r.VoiceEnabled),
			"repeatCount":  strconv.Itoa(r.RepeatCount),
		},
		Tag:         r.ID,
		TTL:         alertTTL,
		ClickAction: "/reminders/" + r.ID,
	})
	if errors.Is(err, fcm.ErrUnregistered) {
		return fmt.Errorf("%w: %v", pushdomain.ErrSubscriptionGone, err)
	}
	return err
}
