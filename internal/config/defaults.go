package config

// Default values applied before file and environment overrides.
const (
	// DefaultChunkSize is the number of rows folded per block.
	DefaultChunkSize = 10000

	// DefaultWorkers is the number of concurrent fold workers.
	DefaultWorkers = 1

	// DefaultOutputPrefix prefixes the generated artifact file names.
	DefaultOutputPrefix = "sensorstats"

	// DefaultSnapshotDir stores run snapshots for --resume.
	DefaultSnapshotDir = ".sensorstats-snapshots"

	// DefaultSnapshotIntervalBlocks is the checkpoint cadence: one partial
	// snapshot per this many merged blocks.
	DefaultSnapshotIntervalBlocks = 16
)
