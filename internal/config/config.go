// Package config loads and validates the sensorstats run configuration from
// file, environment, and defaults.
package config

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/sensorstats/internal/csvsource"
	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
)

// Config is the top-level configuration struct for sensorstats.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Input         string              `mapstructure:"input"`
	OutputPrefix  string              `mapstructure:"output_prefix"`
	ChunkSize     int                 `mapstructure:"chunk_size"`
	Workers       int                 `mapstructure:"workers"`
	Plot          bool                `mapstructure:"plot"`
	Filter        FilterConfig        `mapstructure:"filter"`
	Outliers      OutlierConfig       `mapstructure:"outliers"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// FilterConfig holds the row selection criteria. Empty fields match
// everything; time bounds are inclusive.
type FilterConfig struct {
	Site      string `mapstructure:"site"`
	Device    string `mapstructure:"device"`
	Metric    string `mapstructure:"metric"`
	TimeStart string `mapstructure:"time_start"`
	TimeEnd   string `mapstructure:"time_end"`
}

// OutlierConfig holds outlier detection settings.
type OutlierConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SnapshotConfig holds resumable-run settings.
type SnapshotConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Resume  bool   `mapstructure:"resume"`

	// IntervalBlocks is the checkpoint cadence: a partial snapshot is
	// written after every IntervalBlocks merged blocks.
	IntervalBlocks int `mapstructure:"interval_blocks"`
}

// ObservabilityConfig holds telemetry and logging settings.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	LogJSON      bool   `mapstructure:"log_json"`
}

// Sentinel errors for configuration validation.
var (
	// ErrMissingInput indicates no input file was given.
	ErrMissingInput = errors.New("input is required")
	// ErrInvalidChunkSize indicates the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("chunk_size must be positive")
	// ErrInvalidWorkers indicates the workers value is not positive.
	ErrInvalidWorkers = errors.New("workers must be positive")
	// ErrMissingSnapshotDir indicates snapshots are enabled without a directory.
	ErrMissingSnapshotDir = errors.New("snapshot.dir is required when snapshots are enabled")
	// ErrInvalidSnapshotInterval indicates the checkpoint cadence is not positive.
	ErrInvalidSnapshotInterval = errors.New("snapshot.interval_blocks must be positive")
	// ErrInvalidTimeBound indicates a filter time bound could not be parsed.
	ErrInvalidTimeBound = errors.New("filter time bound is not a valid timestamp")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Input == "" {
		return ErrMissingInput
	}

	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.Snapshot.Enabled && c.Snapshot.Dir == "" {
		return ErrMissingSnapshotDir
	}

	if c.Snapshot.Enabled && c.Snapshot.IntervalBlocks <= 0 {
		return ErrInvalidSnapshotInterval
	}

	_, err := c.BuildCriteria()

	return err
}

// BuildCriteria converts the filter configuration into engine criteria,
// parsing the time bounds.
func (c *Config) BuildCriteria() (engine.Criteria, error) {
	criteria := engine.Criteria{
		Site:   c.Filter.Site,
		Device: c.Filter.Device,
		Metric: c.Filter.Metric,
	}

	if c.Filter.TimeStart != "" {
		start, err := csvsource.ParseTimestamp(c.Filter.TimeStart)
		if err != nil {
			return engine.Criteria{}, fmt.Errorf("%w: %q", ErrInvalidTimeBound, c.Filter.TimeStart)
		}

		criteria.TimeStart = start
	}

	if c.Filter.TimeEnd != "" {
		end, err := csvsource.ParseTimestamp(c.Filter.TimeEnd)
		if err != nil {
			return engine.Criteria{}, fmt.Errorf("%w: %q", ErrInvalidTimeBound, c.Filter.TimeEnd)
		}

		criteria.TimeEnd = end
	}

	if err := criteria.Validate(); err != nil {
		return engine.Criteria{}, err
	}

	return criteria, nil
}
