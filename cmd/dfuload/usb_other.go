//go:build !linux

package main

import (
	"fmt"

	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/pkg"
)

func newUSBHAL(id string) (hal.HostHAL, error) {
	return nil, fmt.Errorf("%w: usb devices need Linux usbfs", pkg.ErrNotSupported)
}
