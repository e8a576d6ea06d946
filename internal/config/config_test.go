package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sensorstats/internal/config"
	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
)

func validConfig() *config.Config {
	return &config.Config{
		Input:        "readings.csv",
		OutputPrefix: "run",
		ChunkSize:    1000,
		Workers:      2,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, config.DefaultWorkers, cfg.Workers)
	assert.Equal(t, config.DefaultOutputPrefix, cfg.OutputPrefix)
	assert.True(t, cfg.Outliers.Enabled)
	assert.False(t, cfg.Snapshot.Enabled)
	assert.Equal(t, config.DefaultSnapshotIntervalBlocks, cfg.Snapshot.IntervalBlocks)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".sensorstats.yaml")

	content := `
input: readings.csv
chunk_size: 500
workers: 4
filter:
  site: plant-a
  time_start: "2024-01-01 00:00:00 +0000 UTC"
snapshot:
  enabled: true
  dir: /tmp/snaps
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "readings.csv", cfg.Input)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "plant-a", cfg.Filter.Site)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "/tmp/snaps", cfg.Snapshot.Dir)

	// Unset keys fall back to defaults.
	assert.Equal(t, config.DefaultOutputPrefix, cfg.OutputPrefix)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SENSORSTATS_CHUNK_SIZE", "250")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.ChunkSize)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*config.Config) {},
		},
		{
			name:    "missing input",
			mutate:  func(c *config.Config) { c.Input = "" },
			wantErr: config.ErrMissingInput,
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *config.Config) { c.ChunkSize = 0 },
			wantErr: config.ErrInvalidChunkSize,
		},
		{
			name:    "negative workers",
			mutate:  func(c *config.Config) { c.Workers = -1 },
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name: "snapshot without dir",
			mutate: func(c *config.Config) {
				c.Snapshot.Enabled = true
				c.Snapshot.Dir = ""
			},
			wantErr: config.ErrMissingSnapshotDir,
		},
		{
			name: "snapshot with zero interval",
			mutate: func(c *config.Config) {
				c.Snapshot.Enabled = true
				c.Snapshot.Dir = "/tmp/snaps"
				c.Snapshot.IntervalBlocks = 0
			},
			wantErr: config.ErrInvalidSnapshotInterval,
		},
		{
			name:    "unparseable time bound",
			mutate:  func(c *config.Config) { c.Filter.TimeStart = "not-a-time" },
			wantErr: config.ErrInvalidTimeBound,
		},
		{
			name: "start after end",
			mutate: func(c *config.Config) {
				c.Filter.TimeStart = "2024-06-01 00:00:00 +0000 UTC"
				c.Filter.TimeEnd = "2024-01-01 00:00:00 +0000 UTC"
			},
			wantErr: engine.ErrInvalidTimeRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBuildCriteria(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Filter = config.FilterConfig{
		Site:      "plant-a",
		Device:    "sensor-7",
		Metric:    "temp",
		TimeStart: "2024-01-01 00:00:00 +0000 UTC",
		TimeEnd:   "2024-12-31T23:59:59Z",
	}

	criteria, err := cfg.BuildCriteria()
	require.NoError(t, err)

	assert.Equal(t, "plant-a", criteria.Site)
	assert.Equal(t, "sensor-7", criteria.Device)
	assert.Equal(t, "temp", criteria.Metric)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), criteria.TimeStart.UTC())
	assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), criteria.TimeEnd.UTC())
}

func TestBuildCriteria_UnboundedWhenEmpty(t *testing.T) {
	t.Parallel()

	criteria, err := validConfig().BuildCriteria()
	require.NoError(t, err)

	assert.True(t, criteria.TimeStart.IsZero())
	assert.True(t, criteria.TimeEnd.IsZero())
}
