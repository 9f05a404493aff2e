package pkg

import "errors"

// Transport errors.
var (
	// ErrStall indicates the control endpoint was stalled.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a control transfer timed out.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled operation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrProtocol indicates a malformed message on the control pipe.
	ErrProtocol = errors.New("protocol error")

	// ErrReset indicates a bus reset was received.
	ErrReset = errors.New("bus reset")

	// ErrNotConnected indicates no peer is attached to the control pipe.
	ErrNotConnected = errors.New("not connected")

	// ErrNotConfigured indicates the HAL has not been initialized.
	ErrNotConfigured = errors.New("not configured")

	// ErrAlreadyRunning indicates the HAL or engine is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")
)

// Bootloader errors.
var (
	// ErrInvalidRegion indicates a malformed application region descriptor.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrOutOfRegion indicates an address range outside the application region.
	ErrOutOfRegion = errors.New("address outside region")

	// ErrFlashProgram indicates the flash controller failed to program a chunk.
	ErrFlashProgram = errors.New("flash program failed")

	// ErrFlashProtected indicates a write to a protected flash area.
	ErrFlashProtected = errors.New("flash protection violation")

	// ErrFlashCollision indicates a read collision during a flash command.
	ErrFlashCollision = errors.New("flash read collision")

	// ErrFlashAccess indicates an illegal flash command or address.
	ErrFlashAccess = errors.New("flash access error")

	// ErrNotSupported indicates an unsupported platform operation.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidKey indicates an image carried an authenticity key that
	// does not match.
	ErrInvalidKey = errors.New("invalid firmware key")

	// ErrKeyRequired indicates an image without an authenticity key was
	// offered to a validator that requires one.
	ErrKeyRequired = errors.New("firmware key required")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)
