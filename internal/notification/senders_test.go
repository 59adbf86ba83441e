package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	pushdomain "voicelog-backend/internal/push/domain"
	"voicelog-backend/pkg/fcm"
	"voicelog-backend/pkg/webpush"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWebPush struct {
	payload []byte
	err     error
}

func (s *stubWebPush) Send(_ context.Context, _ webpush.Subscription, payload []byte) error {
	s.payload = payload
	return s.err
}

type stubFCM struct {
	token string
	data  fcm.NotificationData
	err   error
}

func (s *stubFCM) SendToDevice(_ context.Context, token string, n fcm.NotificationData) error {
	s.token, s.data = token, n
	return s.err
}

func TestWebPushSender(t *testing.T) {
	client := &stubWebPush{}
	sender := NewWebPushSender(client)
	sub := pushdomain.Subscription{Endpoint: "https://push.example/a", Provider: pushdomain.ProviderWebPush}

	require.NoError(t, sender.Send(context.Background(), sub, NewAlert(reminder())))
	var alert Alert
	require.NoError(t, json.Unmarshal(client.payload, &alert))
	assert.Equal(t, "r1", alert.Reminder.ID)

	client.err = fmt.Errorf("%w: status 410", webpush.ErrGone)
	assert.ErrorIs(t, sender.Send(context.Background(), sub, NewAlert(reminder())), pushdomain.ErrSubscriptionGone)
}

func TestFCMSender(t *testing.T) {
	client := &stubFCM{}
	sender := NewFCMSender(client)
	sub := pushdomain.Subscription{Endpoint: "device-token", Provider: pushdomain.ProviderFCM}

	require.NoError(t, sender.Send(context.Background(), sub, NewAlert(reminder())))
	assert.Equal(t, "device-token", client.token)
	assert.Equal(t, "call mom", client.data.Body)
	assert.Equal(t, "3", client.data.Data["repeatCount"])
	assert.Equal(t, "true", client.data.Data["voiceEnabled"])
	assert.Equal(t, "r1", client.data.Tag)

	client.err = fmt.Errorf("%w: requested entity was not found", fcm.ErrUnregistered)
	assert.ErrorIs(t, sender.Send(context.Background(), sub, NewAlert(reminder())), pushdomain.ErrSubscriptionGone)
}
