// Package hal defines the control-endpoint transport used by the DFU engine.
//
// The bootloader performs no enumeration of its own: descriptors and the
// standard requests belong to the controller firmware or the simulated
// bus. What reaches the [DeviceHAL] is the stream of class requests
// addressed to the DFU interface, each a SETUP packet optionally followed
// by an OUT data stage, and answered with IN data, an ACK, or a STALL.
//
// # Implementations
//
//   - [github.com/ardnew/softdfu/device/hal/fifo]: named pipes, for
//     simulation and tests
//   - examples/tinygo-device/dfu-boot/atsamd51: the SAMD51 USB peripheral
//
// HAL implementations should reuse the buffers provided by the caller.
// The DFU engine hands [DeviceHAL.ReadEP0] the transfer staging buffer so
// that download data lands directly where it will be programmed from.
package hal
