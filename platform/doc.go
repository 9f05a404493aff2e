// Package platform defines the chip capabilities the bootloader core is
// written against.
//
// The boot decision and the transfer state machine never touch registers
// directly. Each target supplies a [Platform] implementation selected at
// build time:
//
//   - [github.com/ardnew/softdfu/platform/sim] - in-memory chip for tests
//     and the hosted simulator
//   - [github.com/ardnew/softdfu/platform/atsamd51] - ATSAMD51 under TinyGo
//
// # Capabilities
//
//   - [ResetSource]: latched reset-cause flags
//   - [Watchdog]: arm and service the watchdog timer
//   - [Flash]: stage and program one chunk, map flash for reading
//   - [Backup]: the always-powered marker span
//   - [Launcher]: relocate the vector table and jump into the application
//
// # Persisted Marker
//
// Applications request a return to the bootloader by writing [LoaderMagic]
// into backup memory and resetting:
//
//	platform.RequestLoader(chip)
//	chip.SystemReset()
//
// The bootloader clears the marker as soon as it observes it, so one
// request causes exactly one bootloader entry.
package platform
