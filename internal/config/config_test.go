package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "kafka:\n  brokers: [localhost:9092]\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "gaze.samples.raw", cfg.Kafka.Topics[TopicSamples])
	assert.Equal(t, "gaze.interactions", cfg.Kafka.Topics[TopicInteractions])
	assert.Equal(t, "gaze.activations", cfg.Kafka.Topics[TopicCommands])
	assert.Equal(t, "gaze-processor", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 1000, cfg.Batch.Size)
	assert.Equal(t, 5*time.Second, cfg.Batch.FlushInterval)
	assert.Equal(t, time.Minute, cfg.Batch.AttentionInterval)
	assert.Equal(t, 5*time.Second, cfg.Batch.Timeout)
	assert.Equal(t, 10, cfg.ClickHouse.MaxOpenConns)
	assert.Equal(t, "gaze:settings", cfg.Redis.SettingsKey)
	assert.Equal(t, 8090, cfg.Server.HTTPPort)
	assert.Equal(t, "one_euro", cfg.Gaze.Filter)
	assert.Equal(t, "enabled", cfg.Gaze.DefaultInteraction)
	assert.Equal(t, 4096, cfg.Gaze.HistoryMaxEntries)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("GAZE_CH_PASSWORD", "s3cret")
	path := writeConfig(t, `
clickhouse:
  addr: localhost:9000
  password: ${GAZE_CH_PASSWORD}
kafka:
  topics:
    samples: tracker.raw
batch:
  size: 50
  flush_interval: 250ms
gaze:
  filter: "null"
  always_activated: true
  settings:
    GazeInput.DwellDelay: 600
    GazeInput.IsSwitchEnabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.ClickHouse.Password)
	assert.Equal(t, "tracker.raw", cfg.Kafka.Topics[TopicSamples])
	assert.Equal(t, "gaze.interactions", cfg.Kafka.Topics[TopicInteractions])
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.FlushInterval)
	assert.Equal(t, "null", cfg.Gaze.Filter)
	assert.True(t, cfg.Gaze.AlwaysActivated)
	assert.Equal(t, 600, cfg.Gaze.Settings["GazeInput.DwellDelay"])
	assert.Equal(t, true, cfg.Gaze.Settings["GazeInput.IsSwitchEnabled"])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "kafka: ["))
	assert.Error(t, err)
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "gaze-processor.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Kafka.Brokers)
	assert.NotEmpty(t, cfg.Layout.Path)
}
