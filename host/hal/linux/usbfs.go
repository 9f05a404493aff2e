//go:build linux

package linux

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ctrlTransfer matches the kernel's struct usbdevfs_ctrltransfer.
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32 // milliseconds
	data        uintptr
}

func openDevice(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

func closeDevice(fd int) error {
	return unix.Close(fd)
}

func ioctlRetval(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}

// doControlTransfer performs a synchronous control transfer and returns
// the length of the data stage.
func doControlTransfer(fd int, reqType, req uint8, value, index uint16, data []byte, timeout uint32) (int, error) {
	ctrl := ctrlTransfer{
		requestType: reqType,
		request:     req,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     timeout,
	}
	if len(data) > 0 {
		ctrl.data = uintptr(unsafe.Pointer(&data[0]))
	}
	n, err := ioctlRetval(fd, ioctlUsbdevfsControl, unsafe.Pointer(&ctrl))
	runtime.KeepAlive(data)
	return n, err
}

func claimInterface(fd int, iface uint8) error {
	n := uint32(iface)
	_, err := ioctlRetval(fd, ioctlUsbdevfsClaimInterface, unsafe.Pointer(&n))
	return err
}

func releaseInterface(fd int, iface uint8) error {
	n := uint32(iface)
	_, err := ioctlRetval(fd, ioctlUsbdevfsReleaseInterface, unsafe.Pointer(&n))
	return err
}
