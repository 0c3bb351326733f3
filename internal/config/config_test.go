package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/utils"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 20, cfg.FeedBackfillSize)
	assert.Equal(t, 500, cfg.MaxBatchWrites)
	assert.Equal(t, 3, cfg.ScheduleHour)
	assert.Equal(t, 168*time.Hour, cfg.InactiveAfter)
	assert.Equal(t, 10*time.Minute, cfg.EventDedupeTTL)
	assert.False(t, cfg.FCMEnabled)
	assert.Equal(t, utils.DefaultConfig, cfg.Ranking)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pulse")
	t.Setenv("FEED_BACKFILL_SIZE", "5")
	t.Setenv("INACTIVE_AFTER", "48h")
	t.Setenv("SCHEDULE_HOUR", "-1")
	t.Setenv("FCM_ENABLED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.FeedBackfillSize)
	assert.Equal(t, 48*time.Hour, cfg.InactiveAfter)
	assert.Equal(t, -1, cfg.ScheduleHour)
	assert.True(t, cfg.FCMEnabled)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":      {"STORE_BACKEND", "cassandra"},
		"batch":        {"MAX_BATCH_WRITES", "900"},
		"hour":         {"SCHEDULE_HOUR", "24"},
		"duration":     {"INACTIVE_AFTER", "a week"},
		"int":          {"FEED_BACKFILL_SIZE", "many"},
		"bool":         {"FCM_ENABLED", "sure"},
		"missing file": {"SCORING_CONFIG", "/does/not/exist.yaml"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFirestoreNeedsProject(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestLoadRanking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  shares: 0.5\n  recency_mode: penalty\n"), 0o600))

	cfg, err := LoadRanking(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Shares)
	assert.Equal(t, utils.RecencyPenalty, cfg.RecencyMode)
	assert.Equal(t, utils.DefaultConfig.Recency, cfg.Recency)

	require.NoError(t, os.WriteFile(path, []byte("weights:\n  recency_mode: sideways\n"), 0o600))
	_, err = LoadRanking(path)
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.SetupLogging(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "post_id", "p1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"post_id":"p1"`)
}
