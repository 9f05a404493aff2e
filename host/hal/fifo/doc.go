// Package fifo implements the host side of the named-pipe control pipe.
//
// The HAL polls a bus directory for device-* subdirectories created by
// [github.com/ardnew/softdfu/device/hal/fifo], waits for the device to
// signal connection, and then exchanges control transfers over the
// host_to_device and device_to_host pipes. See the device package for the
// message format.
//
// Only one device is served at a time; a newly connected device replaces
// the previous one.
//
// # Usage
//
//	h := fifo.NewHostHAL("/tmp/dfu-bus")
//	if err := h.Init(ctx); err != nil {
//	    return err
//	}
//	h.Start()
//	defer h.Stop()
//	if err := h.WaitForConnection(ctx); err != nil {
//	    return err
//	}
//	client := dfu.NewClient(h)
package fifo
