package jobmonconfig

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsValidationWithoutRequiredFields(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadReadsEnvironmentVariables(t *testing.T) {
	t.Setenv("JOBMON__DB__DSN", "postgres://localhost/jobmon")
	t.Setenv("JOBMON__HTTP__SERVICE_URL", "http://localhost:8080")
	t.Setenv("JOBMON__HTTP__RETRIES_TIMEOUT", "5m")
	t.Setenv("JOBMON__HEARTBEAT__INTERVAL", "45s")
	t.Setenv("JOBMON__HEARTBEAT__REPORT_BY_BUFFER", "2")
	t.Setenv("JOBMON__DISTRIBUTOR__POLL_INTERVAL", "15s")
	t.Setenv("JOBMON__DISTRIBUTOR__MAX_BATCH_SIZE", "250")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/jobmon", cfg.DB.DSN)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.ServiceURL)
	assert.Equal(t, 5*time.Minute, cfg.HTTP.RetriesTimeout)
	assert.Equal(t, 45*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 250, cfg.Distributor.MaxBatchSize)
	assert.Empty(t, cfg.Redis.URL, "redis url should stay empty when unset")
}

func TestLoadRedisURLIsOptional(t *testing.T) {
	t.Setenv("JOBMON__DB__DSN", "postgres://localhost/jobmon")
	t.Setenv("JOBMON__HTTP__SERVICE_URL", "http://localhost:8080")
	t.Setenv("JOBMON__HTTP__RETRIES_TIMEOUT", "5m")
	t.Setenv("JOBMON__HEARTBEAT__INTERVAL", "45s")
	t.Setenv("JOBMON__HEARTBEAT__REPORT_BY_BUFFER", "2")
	t.Setenv("JOBMON__DISTRIBUTOR__POLL_INTERVAL", "15s")
	t.Setenv("JOBMON__DISTRIBUTOR__MAX_BATCH_SIZE", "250")
	t.Setenv("JOBMON__REDIS__URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestDefaultPopulatesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10*time.Minute, cfg.HTTP.RetriesTimeout)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 1.5, cfg.Heartbeat.ReportByBuffer)
	assert.Equal(t, 500, cfg.Distributor.MaxBatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadReturnsErrorForUnreadableConfigFile(t *testing.T) {
	_, err := Load(os.DevNull + ".does-not-exist.yaml")
	require.Error(t, err)
}
