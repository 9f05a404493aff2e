// Package fifo implements the device side of a control pipe over named pipes.
//
// This HAL is intended for simulation and testing. It lets the bootloader
// running in cmd/dfuboot, or a test, receive DFU class requests from a host
// process without USB hardware.
//
// # Architecture
//
// Each device instance creates a unique subdirectory under a shared bus
// directory:
//
//	/tmp/dfu-bus/                    # Bus directory (shared with host)
//	└── device-{uuid}/               # Device subdirectory (unique per device)
//	    ├── connection               # Connection signaling (device → host)
//	    ├── host_to_device           # SETUP packets and OUT data from host
//	    └── device_to_host           # IN data, ACK, and STALL responses
//
// The UUID comes from github.com/google/uuid, so several simulated devices
// can share one bus directory in parallel tests.
//
// # Messages
//
// Every message is a 3-byte header [type, len_lo, len_hi] followed by the
// payload. A SETUP message carries [address, setup(8), data...], where the
// trailing data is the OUT data stage. The device answers every SETUP with
// exactly one DATA, ACK, or STALL message.
//
// # Usage
//
//	h := fifo.New("/tmp/dfu-bus")
//	engine := dfu.New(h, ctx)
//	if err := engine.Start(context.Background()); err != nil {
//	    return err
//	}
//	fmt.Printf("Device directory: %s\n", h.DeviceDir())
//
// The host side is [github.com/ardnew/softdfu/host/hal/fifo], pointed at the
// same bus directory.
package fifo
