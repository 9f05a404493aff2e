//go:build linux

package linux

import "unsafe"

// ioctl number layout of the generic Linux ABI (mips, powerpc, and sparc
// use a different layout and are not supported):
//
//	bits 0-7:   command number (nr)
//	bits 8-15:  ioctl type (type)
//	bits 16-29: argument size (size)
//	bits 30-31: direction (dir)
const (
	iocWrite = 1
	iocRead  = 2

	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr | size<<iocSizeShift
}

const usbdevfsType = 'U'

// usbdevfs command numbers
const (
	ioctlControl          = 0
	ioctlClaimInterface   = 15
	ioctlReleaseInterface = 16
)

var (
	ioctlUsbdevfsControl          = ioc(iocRead|iocWrite, usbdevfsType, ioctlControl, unsafe.Sizeof(ctrlTransfer{}))
	ioctlUsbdevfsClaimInterface   = ioc(iocRead, usbdevfsType, ioctlClaimInterface, 4)
	ioctlUsbdevfsReleaseInterface = ioc(iocRead, usbdevfsType, ioctlReleaseInterface, 4)
)
