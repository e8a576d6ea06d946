// Package snapshot persists the frozen aggregation state between passes and
// across interrupted runs. A snapshot holds everything needed to resume:
// the per-group sufficient statistics in insertion order, the canonical
// filter target, exclusion counters, and the position in the input stream.
// Snapshots are gob-encoded and LZ4-compressed.
package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
)

// FileName is the snapshot file name inside the snapshot directory.
const FileName = "state.gob.lz4"

// Sentinel errors for snapshot validation.
var (
	// ErrFingerprintMismatch indicates the input file changed since the
	// snapshot was taken; resuming would produce inconsistent statistics.
	ErrFingerprintMismatch = errors.New("snapshot: input file changed since snapshot")

	// ErrCriteriaMismatch indicates the snapshot was taken under different
	// filter criteria.
	ErrCriteriaMismatch = errors.New("snapshot: filter criteria changed since snapshot")
)

// Snapshot is the persisted aggregation state.
type Snapshot struct {
	// Fingerprint identifies the input file (path, size, mtime).
	Fingerprint string

	// CriteriaSignature identifies the filter criteria of the run.
	CriteriaSignature string

	// RowsConsumed is the number of data rows already folded. Always a
	// block boundary, so a resumed reader can skip straight to it.
	RowsConsumed uint64

	// Complete marks a snapshot taken after the final block; resuming a
	// complete snapshot skips aggregation entirely.
	Complete bool

	// CanonicalTarget is the canonical form of the metric criterion.
	CanonicalTarget string

	// Groups holds the accumulators in insertion order.
	Groups []engine.GroupAccumulator

	RowsRead     uint64
	RowsFiltered uint64
	RowsInvalid  uint64
}

// Capture exports a global state into a snapshot.
func Capture(state *engine.GlobalState, fingerprint string, rowsConsumed uint64, complete bool) *Snapshot {
	return &Snapshot{
		Fingerprint:       fingerprint,
		CriteriaSignature: CriteriaSignature(state.Criteria()),
		RowsConsumed:      rowsConsumed,
		Complete:          complete,
		CanonicalTarget:   state.CanonicalTarget(),
		Groups:            state.Export(),
		RowsRead:          state.RowsRead,
		RowsFiltered:      state.RowsFiltered,
		RowsInvalid:       state.RowsInvalid,
	}
}

// Apply restores the snapshot into a global state built with the same
// criteria, after validating the input fingerprint and criteria signature.
func (s *Snapshot) Apply(state *engine.GlobalState, fingerprint string) error {
	if s.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}

	if s.CriteriaSignature != CriteriaSignature(state.Criteria()) {
		return ErrCriteriaMismatch
	}

	state.Restore(s.Groups, s.CanonicalTarget, s.RowsRead, s.RowsFiltered, s.RowsInvalid)

	return nil
}

// CriteriaSignature renders filter criteria as a stable comparison string.
func CriteriaSignature(c engine.Criteria) string {
	start, end := "", ""

	if !c.TimeStart.IsZero() {
		start = c.TimeStart.UTC().String()
	}

	if !c.TimeEnd.IsZero() {
		end = c.TimeEnd.UTC().String()
	}

	return fmt.Sprintf("site=%s|device=%s|metric=%s|start=%s|end=%s",
		c.Site, c.Device, c.Metric, start, end)
}

// Save writes the snapshot to dir atomically (write to a temp file, then
// rename), creating dir if needed.
func Save(dir string, s *Snapshot) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	compressor := lz4.NewWriter(file)

	encodeErr := gob.NewEncoder(compressor).Encode(s)
	if encodeErr != nil {
		file.Close()
		os.Remove(tmp)

		return fmt.Errorf("encode snapshot: %w", encodeErr)
	}

	if err := compressor.Close(); err != nil {
		file.Close()
		os.Remove(tmp)

		return fmt.Errorf("flush snapshot: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmp)

		return fmt.Errorf("close snapshot file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	return nil
}

// Load reads a snapshot from dir. Returns (nil, nil) when no snapshot
// exists.
func Load(dir string) (*Snapshot, error) {
	path := filepath.Join(dir, FileName)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var s Snapshot

	decodeErr := gob.NewDecoder(lz4.NewReader(file)).Decode(&s)
	if decodeErr != nil {
		return nil, fmt.Errorf("decode snapshot: %w", decodeErr)
	}

	return &s, nil
}

// Clear removes any snapshot in dir. Missing files are not an error.
func Clear(dir string) error {
	err := os.Remove(filepath.Join(dir, FileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	return nil
}
