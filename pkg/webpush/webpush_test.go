package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func TestSend(t *testing.T) {
	private, public, err := GenerateKeys()
	require.NoError(t, err)
	client, err := NewClient(Config{PublicKey: public, PrivateKey: private, Subject: "mailto:ops@example.com"}, nil)
	require.NoError(t, err)

	p256dh, auth := browserKeys(t)

	cases := []struct {
		status int
		gone   bool
		ok     bool
	}{
		{http.StatusCreated, false, true},
		{http.StatusGone, true, false},
		{http.StatusNotFound, true, false},
		{http.StatusInternalServerError, false, false},
	}
	for _, tc := range cases {
		encoding := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding <- r.Header.Get("Content-Encoding")
			w.WriteHeader(tc.status)
		}))

		err := client.Send(context.Background(), Subscription{Endpoint: srv.URL + "/push/1", P256dh: p256dh, Auth: auth}, []byte(`{"type":"reminder_alert"}`))
		srv.Close()

		assert.Equal(t, "aes128gcm", <-encoding)
		if tc.ok {
			assert.NoError(t, err, "status %d", tc.status)
			continue
		}
		require.Error(t, err)
		assert.Equal(t, tc.gone, isGone(err), "status %d", tc.status)
	}
}

func isGone(err error) bool {
	return errors.Is(err, ErrGone)
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}
