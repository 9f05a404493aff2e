// Package dfu implements a DFU 1.1 host client.
//
// A [Client] drives a device in DFU mode over a [hal.HostHAL] control pipe:
// it downloads an image block by block, confirming each block with
// DFU_GETSTATUS, finishes with a zero-length DNLOAD, and can upload the
// device's memory back for verification.
//
// Errors reported by the device surface as [*StatusError], carrying the
// bStatus and bState from the failing GETSTATUS.
//
// [hal.HostHAL]: github.com/ardnew/softdfu/host/hal.HostHAL
package dfu
