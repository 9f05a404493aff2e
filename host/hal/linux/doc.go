// Package linux provides a DFU host HAL for Linux using usbfs.
//
// Devices are discovered by scanning sysfs (/sys/bus/usb/devices/) for an
// interface of class 0xFE, subclass 0x01, and are opened through their
// usbfs node (/dev/bus/usb/BBB/DDD). Control transfers are synchronous
// USBDEVFS_CONTROL ioctls, which is all a DFU exchange needs.
//
// # Requirements
//
// The user must have read/write access to the device node, either as root
// or through a udev rule such as:
//
//	SUBSYSTEM=="usb", ATTR{idVendor}=="239a", ATTR{idProduct}=="0020", MODE="0666"
//
// # Usage
//
//	h := linux.NewHostHAL(0x239A, 0x0020)
//	h.Init(ctx)
//	h.Start()
//	h.WaitForConnection(ctx)
//	client := dfu.NewClient(h, dfu.WithInterface(uint16(h.Interface())))
package linux
