package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", 15*time.Minute)
	keyID := uuid.New()

	token, err := svc.Issue(keyID)
	require.NoError(t, err)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, keyID, got)
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", -time.Minute)
	token, err := svc.Issue(uuid.New())
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewTokenService("secret-a", time.Minute).Issue(uuid.New())
	require.NoError(t, err)

	_, err = NewTokenService("secret-b", time.Minute).Verify(token)
	assert.Error(t, err)
}

func TestTokenGarbageInput(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Minute)
	_, err := svc.Verify("not.a.token")
	assert.Error(t, err)

	_, err = svc.Verify("")
	assert.Error(t, err)
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("test-secret", time.Minute)
	keyID := uuid.New()

	t1, err := svc.Issue(keyID)
	require.NoError(t, err)
	t2, err := svc.Issue(keyID)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}
