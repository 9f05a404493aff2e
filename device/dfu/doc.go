// Package dfu implements the device side of the USB Device Firmware Upgrade
// 1.1 class protocol.
//
// An [Engine] reads class requests from a [hal.DeviceHAL], runs the DFU
// state machine, and calls a [Handler] to move image data. The handler sees
// only byte offsets into the image; address arithmetic, verification and
// flash programming belong to it.
//
// Supported requests:
//
//   - DFU_DNLOAD: PrepareWrite, then the data stage is read into the
//     returned buffer; the block is committed on the following GETSTATUS
//   - DFU_UPLOAD: PrepareRead; a short block ends the upload
//   - DFU_GETSTATUS, DFU_GETSTATE, DFU_CLRSTATUS, DFU_ABORT
//   - DFU_DETACH: acknowledged, then reported to the detach callback
//
// The download offset accumulates the length of every committed block and
// is reset to zero by a DNLOAD or UPLOAD issued from dfuIDLE.
//
// # Polling
//
// The engine never starts goroutines. [Engine.Poll] services at most one
// request; [Engine.Run] loops over it and calls the idle hook between
// requests so the caller can feed a watchdog.
//
// [hal.DeviceHAL]: github.com/ardnew/softdfu/device/hal.DeviceHAL
package dfu
