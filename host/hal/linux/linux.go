//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/pkg"
)

// HostHAL implements hal.HostHAL over Linux usbfs. It binds to the first
// device exposing a DFU interface that matches the vendor and product
// filter and claims that interface.
type HostHAL struct {
	vendorID  uint16
	productID uint16
	sysfsRoot string

	// Transfer timeout in milliseconds
	transferTimeout uint32

	fd     int
	iface  uint8
	device usbDeviceInfo

	running bool
	mu      sync.Mutex
}

// NewHostHAL creates a HAL matching vendorID:productID. Zero matches any
// value.
func NewHostHAL(vendorID, productID uint16) *HostHAL {
	return &HostHAL{
		vendorID:        vendorID,
		productID:       productID,
		sysfsRoot:       SysfsUSBPath,
		transferTimeout: DefaultTransferTimeout,
		fd:              -1,
	}
}

// SetTransferTimeout sets the timeout for control transfers in
// milliseconds.
func (h *HostHAL) SetTransferTimeout(ms uint32) {
	h.transferTimeout = ms
}

// Interface returns the number of the claimed DFU interface.
func (h *HostHAL) Interface() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.iface
}

// DevicePath returns the devfs node of the bound device, or "".
func (h *HostHAL) DevicePath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fd < 0 {
		return ""
	}
	return h.device.devfsPath
}

// Init checks that sysfs USB enumeration is available.
func (h *HostHAL) Init(ctx context.Context) error {
	if _, err := os.Stat(h.sysfsRoot); err != nil {
		return fmt.Errorf("usb sysfs: %w", err)
	}
	return nil
}

// Start allows WaitForConnection to bind a device.
func (h *HostHAL) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return pkg.ErrAlreadyRunning
	}
	h.running = true
	return nil
}

// Stop releases the interface and closes the device.
func (h *HostHAL) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	return h.closeLocked()
}

func (h *HostHAL) closeLocked() error {
	if h.fd < 0 {
		return nil
	}
	releaseInterface(h.fd, h.iface)
	err := closeDevice(h.fd)
	h.fd = -1
	return err
}

// WaitForConnection rescans sysfs until a matching DFU device can be
// opened and its interface claimed.
func (h *HostHAL) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(ScanInterval * time.Millisecond)
	defer ticker.Stop()

	for {
		bound, err := h.bind()
		if bound || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// bind opens the first matching device. Devices that cannot be opened
// yet (permissions settling after hotplug) are retried on the next scan.
func (h *HostHAL) bind() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return false, pkg.ErrNotConfigured
	}
	if h.fd >= 0 {
		return true, nil
	}

	devices, err := findDFUDevices(h.sysfsRoot, h.vendorID, h.productID)
	if err != nil {
		return false, err
	}
	for _, dev := range devices {
		iface, _ := dev.dfuInterface()
		fd, err := openDevice(dev.devfsPath)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "open failed",
				"path", dev.devfsPath,
				"error", err)
			continue
		}
		if err := claimInterface(fd, iface.number); err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "claim failed",
				"path", dev.devfsPath,
				"interface", iface.number,
				"error", err)
			closeDevice(fd)
			continue
		}

		h.fd = fd
		h.iface = iface.number
		h.device = dev
		pkg.LogInfo(pkg.ComponentHAL, "device bound",
			"path", dev.devfsPath,
			"vendor", fmt.Sprintf("%04x", dev.vendorID),
			"product", fmt.Sprintf("%04x", dev.productID),
			"interface", iface.number,
			"mode", dfuMode(iface.protocol))
		return true, nil
	}
	return false, nil
}

// ControlTransfer performs a synchronous control transfer. The device
// address is fixed by the bound device node and ignored.
func (h *HostHAL) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return 0, pkg.ErrNotConnected
	}
	if int(setup.Length) < len(data) {
		data = data[:setup.Length]
	}
	if len(data) > MaxControlTransferSize {
		return 0, pkg.ErrBufferTooSmall
	}

	timeout := h.transferTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if ms := time.Until(deadline).Milliseconds(); ms <= 0 {
			return 0, pkg.ErrTimeout
		} else if uint32(ms) < timeout {
			timeout = uint32(ms)
		}
	}

	n, err := doControlTransfer(h.fd, setup.RequestType, setup.Request,
		setup.Value, setup.Index, data, timeout)
	if err != nil {
		return 0, h.mapError(err)
	}
	return n, nil
}

// mapError translates usbfs errno values into pkg sentinels.
func (h *HostHAL) mapError(err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return err
	}
	switch errno {
	case syscall.EPIPE:
		return pkg.ErrStall
	case syscall.ETIMEDOUT:
		return pkg.ErrTimeout
	case syscall.ENODEV, syscall.ESHUTDOWN:
		h.closeLocked()
		return pkg.ErrNotConnected
	}
	return fmt.Errorf("usbfs: %w", err)
}

func dfuMode(protocol uint8) string {
	switch protocol {
	case ProtocolRuntime:
		return "runtime"
	case ProtocolDFUMode:
		return "dfu"
	default:
		return "unknown"
	}
}

// Compile-time interface check
var _ hal.HostHAL = (*HostHAL)(nil)
