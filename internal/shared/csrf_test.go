package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	sm := NewSessionManager(nil, "sid", "secret", time.Hour, false)
	m := NewCSRFManager("csrf")
	sess := sm.newSession()
	ctx := context.Background()

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, m.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)
}

func TestCSRFTokenDiesWithRenewedSession(t *testing.T) {
	sm := NewSessionManager(nil, "sid", "secret", time.Hour, false)
	m := NewCSRFManager("csrf")
	sess := sm.newSession()
	ctx := context.Background()

	before, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	sm.Renew(sess)

	assert.ErrorIs(t, m.VerifyToken(ctx, sess, before), ErrCSRFTokenMissing)
	after, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.NoError(t, m.VerifyToken(ctx, sess, after))
}

func TestCSRFTokensDifferPerSession(t *testing.T) {
	sm := NewSessionManager(nil, "sid", "secret", time.Hour, false)
	m := NewCSRFManager("csrf")

	a, err := m.EnsureToken(context.Background(), sm.newSession())
	require.NoError(t, err)
	b, err := m.EnsureToken(context.Background(), sm.newSession())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
