package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReadyAllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	var calls atomic.Int32

	err := AwaitReady(context.Background(), time.Second,
		ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error { calls.Add(1); return client.Ping(ctx).Err() }},
		ReadinessCheck{Name: "postgres", Probe: func(ctx context.Context) error { calls.Add(1); return nil }},
		ReadinessCheck{Name: "skipped"},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAwaitReadyNamesFailingCheck(t *testing.T) {
	boom := errors.New("connection refused")
	err := AwaitReady(context.Background(), time.Second,
		ReadinessCheck{Name: "postgres", Probe: func(ctx context.Context) error { return boom }},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "postgres not ready")
}

func TestAwaitReadyTimesOut(t *testing.T) {
	start := time.Now()
	err := AwaitReady(context.Background(), 50*time.Millisecond,
		ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{SessionSecret: "s", CSRFSecret: "c", IdentityResolveTimeout: time.Second, StartupTimeout: time.Second}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.IdentityResolveTimeout = 0
	assert.ErrorContains(t, bad.Validate(), "IDENTITY_RESOLVE_TIMEOUT")

	bad = cfg
	bad.PrincipalMaxAge = -time.Minute
	assert.ErrorContains(t, bad.Validate(), "PRINCIPAL_MAX_AGE")

	bad = cfg
	bad.CSRFSecret = ""
	assert.Error(t, bad.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("CSRF_SECRET", "csrf")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.IdentityResolveTimeout)
	assert.Equal(t, 15*time.Minute, cfg.PrincipalMaxAge)
	assert.Equal(t, "127.0.0.1:1025", cfg.SMTPAddr())
	assert.False(t, cfg.IsProduction())
}
