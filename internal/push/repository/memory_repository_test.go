package repository

import (
	"context"
	"testing"

	"voicelog-backend/internal/push/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySubscriptionRepository()

	sub, err := domain.NewWebPushSubscription("https://push.example/abc", "key", "secret", "firefox")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sub))
	firstID := sub.ID
	require.NotEmpty(t, firstID)

	// re-subscribing the same endpoint keeps the id and refreshes keys
	again, _ := domain.NewWebPushSubscription("https://push.example/abc", "key2", "secret2", "firefox")
	require.NoError(t, repo.Save(ctx, again))
	assert.Equal(t, firstID, again.ID)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "key2", active[0].P256dh)

	require.NoError(t, repo.Deactivate(ctx, "https://push.example/abc"))
	active, _ = repo.ListActive(ctx)
	assert.Empty(t, active)

	// saving again re-activates
	require.NoError(t, repo.Save(ctx, again))
	active, _ = repo.ListActive(ctx)
	assert.Len(t, active, 1)

	ok, err := repo.Delete(ctx, "https://push.example/abc")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = repo.Delete(ctx, "https://push.example/abc")
	assert.False(t, ok)
}

func TestNewSubscriptionValidation(t *testing.T) {
	_, err := domain.NewWebPushSubscription("http://insecure", "k", "a", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)
	_, err = domain.NewWebPushSubscription("https://push.example/x", "", "a", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)
	_, err = domain.NewFCMSubscription("  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)

	sub, err := domain.NewFCMSubscription("tok", "chrome")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderFCM, sub.Provider)
}
