// Package constants provides common constants used across the otlpexport project.
package constants

import "time"

const (
	// DefaultTimeout is the default timeout for auxiliary requests (diagnostics, CLI waits).
	DefaultTimeout = 5 * time.Second
	// DefaultExportTimeout is the default per-call deadline applied by exporters.
	DefaultExportTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the default timeout for shutdown operations.
	DefaultShutdownTimeout = 30 * time.Second
)
