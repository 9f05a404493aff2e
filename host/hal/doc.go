// Package hal defines the host side of the control pipe used to reach a
// DFU device.
//
// A [HostHAL] carries SETUP packets with their data stages to the device
// and returns the device's answer. DFU needs nothing but control
// transfers, so there are no data endpoints here.
//
// The FIFO implementation in [github.com/ardnew/softdfu/host/hal/fifo]
// talks to the simulated bootloader in cmd/dfuboot.
package hal
