package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("HACKHUB_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HACKHUB_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "HackHub API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "openai", cfg.AIProvider)
	require.Equal(t, 60*time.Second, cfg.AITimeout)
	require.Equal(t, 10*time.Second, cfg.DemoTimeout)
	require.Equal(t, time.Second, cfg.BatchDelay)
	require.Equal(t, 30*time.Second, cfg.StatusCacheTTL)
	require.Equal(t, "hackhub", cfg.NATSSubjectBase)
	require.False(t, cfg.SeedEnabled)
	require.Equal(t, 5*time.Minute, cfg.StaleClaimAfter)
}

func TestLoadKeepsStaleClaimAboveDetachedTimeout(t *testing.T) {
	t.Setenv("HACKHUB_JWT_SECRET", "secret")
	t.Setenv("HACKHUB_ANALYSIS_DETACHED_TIMEOUT", "10m")
	t.Setenv("HACKHUB_ANALYSIS_STALE_CLAIM_AFTER", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 11*time.Minute, cfg.StaleClaimAfter)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("HACKHUB_JWT_SECRET", "secret")
	t.Setenv("HACKHUB_APP_PORT", ":9000")
	t.Setenv("HACKHUB_AI_PROVIDER", "Gemini")
	t.Setenv("HACKHUB_ANALYSIS_BATCH_DELAY", "250ms")
	t.Setenv("HACKHUB_SEED_ENABLED", "true")
	t.Setenv("HACKHUB_SEED_TOKEN", "seed-me")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, "gemini", cfg.AIProvider)
	require.Equal(t, 250*time.Millisecond, cfg.BatchDelay)
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, "seed-me", cfg.SeedToken)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("HACKHUB_JWT_SECRET", "secret")
	t.Setenv("HACKHUB_FETCH_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "fetch.timeout")
}
