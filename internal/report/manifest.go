package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest describes a completed run: the input, the effective filter, the
// produced artifacts, and the counters. It is written next to the CSV
// exports so a run directory is self-describing.
type Manifest struct {
	GeneratedAt time.Time `yaml:"generated_at"`
	Version     string    `yaml:"version"`

	Input struct {
		Path        string `yaml:"path"`
		Fingerprint string `yaml:"fingerprint"`
		ChunkSize   int    `yaml:"chunk_size"`
		Workers     int    `yaml:"workers"`
	} `yaml:"input"`

	Filter struct {
		Site      string `yaml:"site,omitempty"`
		Device    string `yaml:"device,omitempty"`
		Metric    string `yaml:"metric,omitempty"`
		TimeStart string `yaml:"time_start,omitempty"`
		TimeEnd   string `yaml:"time_end,omitempty"`
	} `yaml:"filter"`

	Counters struct {
		RowsRead     uint64 `yaml:"rows_read"`
		RowsFiltered uint64 `yaml:"rows_filtered"`
		RowsInvalid  uint64 `yaml:"rows_invalid"`
		Groups       int    `yaml:"groups"`
		Outliers     int    `yaml:"outliers"`
	} `yaml:"counters"`

	Artifacts []string `yaml:"artifacts"`

	Resumed bool `yaml:"resumed,omitempty"`
}

// WriteManifest serializes the manifest as YAML.
func WriteManifest(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return nil
}
