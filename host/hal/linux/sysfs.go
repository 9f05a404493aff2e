//go:build linux

package linux

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// usbDeviceInfo holds information about a USB device discovered via sysfs.
type usbDeviceInfo struct {
	sysfsPath string // Path in /sys/bus/usb/devices
	devfsPath string // Path in /dev/bus/usb
	busNum    uint8
	devNum    uint8
	vendorID  uint16
	productID uint16

	interfaces []usbInterfaceInfo
}

// usbInterfaceInfo holds information about a USB interface.
type usbInterfaceInfo struct {
	number   uint8
	class    uint8
	subclass uint8
	protocol uint8
}

// scanUSBDevices scans root for USB devices.
func scanUSBDevices(root string) ([]usbDeviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var devices []usbDeviceInfo
	for _, entry := range entries {
		name := entry.Name()

		// Skip root hubs (usb1) and interfaces (1-1:1.0)
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		info, err := parseUSBDevice(filepath.Join(root, name))
		if err != nil {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// parseUSBDevice parses USB device information from sysfs.
func parseUSBDevice(sysfsPath string) (usbDeviceInfo, error) {
	info := usbDeviceInfo{sysfsPath: sysfsPath}

	busNum, err := readSysfsUint8(filepath.Join(sysfsPath, "busnum"))
	if err != nil {
		return info, err
	}
	info.busNum = busNum

	devNum, err := readSysfsUint8(filepath.Join(sysfsPath, "devnum"))
	if err != nil {
		return info, err
	}
	info.devNum = devNum
	info.devfsPath = formatDevfsPath(info.busNum, info.devNum)

	if v, err := readSysfsHexUint16(filepath.Join(sysfsPath, "idVendor")); err == nil {
		info.vendorID = v
	}
	if v, err := readSysfsHexUint16(filepath.Join(sysfsPath, "idProduct")); err == nil {
		info.productID = v
	}

	info.interfaces = scanInterfaces(sysfsPath)
	return info, nil
}

// scanInterfaces scans sysfs for the interfaces of a device. Interface
// entries are named <device>:<config>.<interface>.
func scanInterfaces(devicePath string) []usbInterfaceInfo {
	entries, err := os.ReadDir(devicePath)
	if err != nil {
		return nil
	}

	var interfaces []usbInterfaceInfo
	prefix := filepath.Base(devicePath) + ":"
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		iface, err := parseInterface(filepath.Join(devicePath, entry.Name()))
		if err != nil {
			continue
		}
		interfaces = append(interfaces, iface)
	}
	return interfaces
}

// parseInterface parses USB interface information from sysfs.
func parseInterface(sysfsPath string) (usbInterfaceInfo, error) {
	info := usbInterfaceInfo{}

	num, err := readSysfsHexUint8(filepath.Join(sysfsPath, "bInterfaceNumber"))
	if err != nil {
		return info, err
	}
	info.number = num

	if v, err := readSysfsHexUint8(filepath.Join(sysfsPath, "bInterfaceClass")); err == nil {
		info.class = v
	}
	if v, err := readSysfsHexUint8(filepath.Join(sysfsPath, "bInterfaceSubClass")); err == nil {
		info.subclass = v
	}
	if v, err := readSysfsHexUint8(filepath.Join(sysfsPath, "bInterfaceProtocol")); err == nil {
		info.protocol = v
	}
	return info, nil
}

// dfuInterface returns the device's DFU interface, if any.
func (d *usbDeviceInfo) dfuInterface() (usbInterfaceInfo, bool) {
	for _, iface := range d.interfaces {
		if iface.class == ClassApplicationSpecific && iface.subclass == SubclassDFU {
			return iface, true
		}
	}
	return usbInterfaceInfo{}, false
}

// matches reports whether the device has the given IDs. Zero matches any.
func (d *usbDeviceInfo) matches(vendorID, productID uint16) bool {
	return (vendorID == 0 || d.vendorID == vendorID) &&
		(productID == 0 || d.productID == productID)
}

// findDFUDevices scans root for devices exposing a DFU interface.
func findDFUDevices(root string, vendorID, productID uint16) ([]usbDeviceInfo, error) {
	devices, err := scanUSBDevices(root)
	if err != nil {
		return nil, err
	}

	var found []usbDeviceInfo
	for _, dev := range devices {
		if _, ok := dev.dfuInterface(); ok && dev.matches(vendorID, productID) {
			found = append(found, dev)
		}
	}
	return found, nil
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysfsUint8(path string) (uint8, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func readSysfsHex(path string, bitSize int) (uint64, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, bitSize)
}

func readSysfsHexUint8(path string) (uint8, error) {
	v, err := readSysfsHex(path, 8)
	return uint8(v), err
}

func readSysfsHexUint16(path string) (uint16, error) {
	v, err := readSysfsHex(path, 16)
	return uint16(v), err
}

// formatDevfsPath constructs /dev/bus/usb/BBB/DDD.
func formatDevfsPath(busNum, devNum uint8) string {
	var buf [DevfsPathMaxLen]byte
	n := copy(buf[:], DevfsUSBPath)
	buf[n] = '/'
	n++
	n += formatPadded(buf[n:], busNum, 3)
	buf[n] = '/'
	n++
	n += formatPadded(buf[n:], devNum, 3)
	return string(buf[:n])
}

// formatPadded formats val zero-padded to width digits.
func formatPadded(buf []byte, val uint8, width int) int {
	s := strconv.FormatUint(uint64(val), 10)
	padding := width - len(s)
	for i := 0; i < padding && i < len(buf); i++ {
		buf[i] = '0'
	}
	copy(buf[padding:], s)
	return width
}
