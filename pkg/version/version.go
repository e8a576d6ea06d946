// Package version exposes build metadata stamped at link time.
package version

import "fmt"

// Build metadata, overridden via -ldflags at release time.
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the Git hash the binary was built from.
	Commit = "<unknown>"

	// Date is the build timestamp.
	Date = "<unknown>"
)

// String renders the full version line shown by the version command.
func String() string {
	return fmt.Sprintf("sensorstats %s (commit: %s, built: %s)", Version, Commit, Date)
}
