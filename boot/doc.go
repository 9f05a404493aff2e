// Package boot decides, once per reset, whether to stay in the bootloader
// or start the application.
//
// Update mode is selected when any of these hold:
//
//   - the reset pin was asserted
//   - the watchdog expired
//   - the core locked up
//   - the platform reports the application region blank
//   - the application armed the loader marker in backup memory
//
// Otherwise [Run] arms the watchdog, points the vector table at the
// application, and jumps to its reset handler. A watchdog left running by
// a hung application brings the next reset back into update mode.
package boot
