package hal

import (
	"context"
)

// SetupPacket represents a USB SETUP packet in the HAL layer.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// RequestTypeDirIn is the direction bit of bmRequestType (device to host).
const RequestTypeDirIn = 0x80

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsIn returns true if the request has a device-to-host data stage.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&RequestTypeDirIn != 0
}

// DeviceHAL is the control-endpoint transport consumed by the DFU engine.
//
// A bootloader only ever talks on EP0, so the interface covers the
// controller lifecycle and the three phases of a control transfer.
// Enumeration and descriptors are the implementation's concern.
type DeviceHAL interface {
	// Init initializes the USB controller hardware.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Start enables the USB controller and attaches to the bus.
	Start() error

	// Stop detaches from the bus and disables the USB controller.
	Stop() error

	// ReadSetup reads the next class request addressed to the DFU
	// interface. Blocks until a SETUP packet is available or the context
	// is cancelled.
	ReadSetup(ctx context.Context, out *SetupPacket) error

	// WriteEP0 writes the data stage of an IN request.
	WriteEP0(ctx context.Context, data []byte) error

	// ReadEP0 reads the data stage of an OUT request into buf and returns
	// the number of bytes read.
	ReadEP0(ctx context.Context, buf []byte) (int, error)

	// StallEP0 stalls the control endpoint to reject a request.
	StallEP0() error

	// AckEP0 completes an OUT request with a zero-length status stage.
	AckEP0() error

	// IsConnected returns true if the device is connected to a host.
	IsConnected() bool

	// WaitConnect blocks until the device connects to a host or the
	// context is cancelled.
	WaitConnect(ctx context.Context) error
}
