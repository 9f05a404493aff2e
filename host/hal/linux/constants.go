package linux

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// DevfsPathMaxLen is the maximum length of a devfs path.
const DevfsPathMaxLen = 64

// MaxControlTransferSize is the largest data stage usbfs accepts in one
// synchronous control transfer.
const MaxControlTransferSize = 4096

// DFU interface triple (application specific class, DFU subclass).
const (
	ClassApplicationSpecific = 0xFE
	SubclassDFU              = 0x01
	ProtocolRuntime          = 0x01
	ProtocolDFUMode          = 0x02
)

// DefaultTransferTimeout is the default timeout of one control transfer in
// milliseconds.
const DefaultTransferTimeout = 5000

// ScanInterval is how often WaitForConnection rescans sysfs.
const ScanInterval = 250 // milliseconds
