// Package csvsource turns a sensor-reading CSV file into an ordered,
// restartable sequence of bounded blocks for the aggregation engine. Only
// one block of rows is materialized at a time.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
	"github.com/Sumatoshi-tech/sensorstats/pkg/safeconv"
)

// DefaultChunkSize is the default number of rows per block.
const DefaultChunkSize = 10000

// timestampLayout is the canonical on-disk timestamp format,
// e.g. "2021-03-01 09:30:00 +0000 UTC".
const timestampLayout = "2006-01-02 15:04:05 -0700 UTC"

// Required column names of the on-disk row schema. Additional passthrough
// columns are tolerated and ignored.
const (
	columnSite   = "site"
	columnDevice = "device"
	columnMetric = "metric"
	columnTime   = "time"
	columnValue  = "value"
)

// Sentinel errors for malformed input files.
var (
	// ErrMissingColumn indicates the header lacks a required column.
	ErrMissingColumn = errors.New("csvsource: missing required column")

	// ErrEmptyFile indicates the file has no header row.
	ErrEmptyFile = errors.New("csvsource: empty input file")
)

// Reader streams a CSV file as blocks of readings. Each call to ForEachBlock
// re-opens the file, so the same Reader serves both the aggregation pass and
// the outlier pass.
type Reader struct {
	// Path is the input CSV file.
	Path string

	// ChunkSize is the number of rows per block. Zero selects
	// DefaultChunkSize.
	ChunkSize int

	// SkipRows is the number of data rows to skip before the first block,
	// used when resuming from a snapshot. Block indices and row offsets
	// continue from the skipped position.
	SkipRows uint64
}

// New creates a Reader with the given chunk size (0 = default).
func New(path string, chunkSize int) *Reader {
	return &Reader{Path: path, ChunkSize: chunkSize}
}

// columnIndex maps the required schema columns to header positions.
type columnIndex struct {
	site, device, metric, time, value int
}

// ForEachBlock implements engine.BlockSource. Rows with an unparseable value
// or timestamp are passed through as invalid readings; the engine excludes
// and counts them. Structural CSV errors and missing columns are fatal.
func (r *Reader) ForEachBlock(ctx context.Context, fn func(engine.Block) error) error {
	file, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	cols, err := readHeader(reader)
	if err != nil {
		return err
	}

	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	if err := skipRows(reader, r.SkipRows); err != nil {
		return err
	}

	row := r.SkipRows
	index := safeconv.MustUint64ToInt(r.SkipRows / safeconv.MustIntToUint64(chunkSize))
	block := engine.Block{Readings: make([]engine.Reading, 0, chunkSize), Index: index, StartRow: row}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		record, readErr := reader.Read()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return fmt.Errorf("read row %d: %w", row+1, readErr)
		}

		block.Readings = append(block.Readings, parseReading(record, cols))
		row++

		if len(block.Readings) == chunkSize {
			if err := fn(block); err != nil {
				return err
			}

			block = engine.Block{
				Readings: make([]engine.Reading, 0, chunkSize),
				Index:    block.Index + 1,
				StartRow: row,
			}
		}
	}

	if len(block.Readings) > 0 {
		return fn(block)
	}

	return nil
}

// Fingerprint identifies the input file for snapshot validation: a resumed
// run must see the same path, size, and modification time.
func (r *Reader) Fingerprint() (string, error) {
	info, err := os.Stat(r.Path)
	if err != nil {
		return "", fmt.Errorf("stat input: %w", err)
	}

	return fmt.Sprintf("%s|%d|%d", r.Path, info.Size(), info.ModTime().UnixNano()), nil
}

func readHeader(reader *csv.Reader) (columnIndex, error) {
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return columnIndex{}, ErrEmptyFile
		}

		return columnIndex{}, fmt.Errorf("read header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[name] = i
	}

	cols := columnIndex{site: -1, device: -1, metric: -1, time: -1, value: -1}

	required := map[string]*int{
		columnSite:   &cols.site,
		columnDevice: &cols.device,
		columnMetric: &cols.metric,
		columnTime:   &cols.time,
		columnValue:  &cols.value,
	}

	for name, target := range required {
		pos, ok := positions[name]
		if !ok {
			return columnIndex{}, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}

		*target = pos
	}

	// Rows may carry passthrough columns beyond the required set.
	reader.FieldsPerRecord = -1

	return cols, nil
}

func skipRows(reader *csv.Reader, n uint64) error {
	for range n {
		_, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("skip rows: %w", err)
		}
	}

	return nil
}

// parseReading converts one CSV record into a Reading. A missing or
// unparseable value or timestamp yields an invalid reading, which the engine
// excludes from all statistics without failing the run.
func parseReading(record []string, cols columnIndex) engine.Reading {
	r := engine.Reading{
		Site:   field(record, cols.site),
		Device: field(record, cols.device),
		Metric: field(record, cols.metric),
		Value:  math.NaN(),
	}

	when, timeErr := parseTimestamp(field(record, cols.time))
	if timeErr != nil {
		return r
	}

	r.Timestamp = when

	raw := field(record, cols.value)
	if raw == "" {
		return r
	}

	value, valueErr := strconv.ParseFloat(raw, 64)
	if valueErr != nil {
		return r
	}

	r.Value = value
	r.Valid = true

	return r
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}

	return record[idx]
}

// ParseTimestamp parses the canonical layout first and falls back to
// ISO 8601 / RFC 3339 forms.
func ParseTimestamp(raw string) (time.Time, error) {
	return parseTimestamp(raw)
}

func parseTimestamp(raw string) (time.Time, error) {
	if when, err := time.Parse(timestampLayout, raw); err == nil {
		return when, nil
	}

	when, err := iso8601.ParseString(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}

	return when, nil
}
