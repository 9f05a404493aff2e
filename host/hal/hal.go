package hal

import (
	"context"

	devhal "github.com/ardnew/softdfu/device/hal"
)

// SetupPacket is the SETUP packet shared with the device side.
type SetupPacket = devhal.SetupPacket

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = devhal.SetupPacketSize

// DeviceAddress represents a USB device address (1-127).
type DeviceAddress uint8

// HostHAL is the host end of a control pipe to a DFU device.
//
// All methods should be safe for concurrent use where applicable.
type HostHAL interface {
	// Init prepares the transport. The context can be used to cancel
	// initialization.
	Init(ctx context.Context) error

	// Start begins watching for devices.
	Start() error

	// Stop releases the transport and any connected device.
	Stop() error

	// WaitForConnection blocks until a device connects or the context is
	// cancelled.
	WaitForConnection(ctx context.Context) error

	// ControlTransfer performs a control transfer to the connected device.
	// For OUT transfers, data contains the data to send.
	// For IN transfers, data is filled with received data.
	// Returns the number of bytes transferred in the data phase.
	ControlTransfer(ctx context.Context, addr DeviceAddress, setup *SetupPacket, data []byte) (int, error)
}
