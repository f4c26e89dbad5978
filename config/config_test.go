package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mindagrow")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, "00:05", cfg.ResetMissionsAt)
	assert.Equal(t, "23:55", cfg.StreakMaintenanceAt)
	assert.Equal(t, time.Hour, cfg.LeaderboardInterval)
	assert.Equal(t, uint(3), cfg.RetryMaxTries)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInitialInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.TrustProxy)
}

func TestParseRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestParseRejectsBadClock(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/mindagrow")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RESET_MISSIONS_AT", "25:99")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESET_MISSIONS_AT")
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("23:55")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 55, m)

	_, _, err = ParseClock("noon")
	assert.Error(t, err)
}
