//go:build linux

package main

import (
	"fmt"

	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/host/hal/linux"
	"github.com/ardnew/softdfu/pkg"
)

// newUSBHAL returns a usbfs HAL bound to devices matching id.
func newUSBHAL(id string) (hal.HostHAL, error) {
	vid, pid, ok := linux.ParseID(id)
	if !ok {
		return nil, fmt.Errorf("%w: usb id %q", pkg.ErrInvalidParameter, id)
	}
	return linux.NewHostHAL(vid, pid), nil
}
