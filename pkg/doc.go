// Package pkg provides shared utilities for the softdfu bootloader.
//
// This package contains common functionality used by the boot decision,
// the transfer state machine, the DFU engine, and the platform layers,
// including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for bootloader and transport failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with bootloader context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBoot, "entering update mode", "reason", "watchdog")
//
// # Errors
//
// Common failures are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrOutOfRegion) {
//	    // Destination lies outside the application region
//	}
package pkg
