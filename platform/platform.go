package platform

import (
	"bytes"
	"time"

	"github.com/ardnew/softdfu/region"
)

// ResetSource reports why the chip last reset.
type ResetSource interface {
	// ResetCause returns the latched reset-cause flags.
	ResetCause() ResetCause
}

// Watchdog controls the hardware watchdog timer.
type Watchdog interface {
	// ArmWatchdog enables the watchdog with the given timeout. Once armed
	// the watchdog cannot be disabled until the next reset.
	ArmWatchdog(timeout time.Duration)

	// FeedWatchdog restarts the watchdog countdown.
	FeedWatchdog()
}

// Flash is the flash programming adapter.
type Flash interface {
	// Stage locates or prepares the writable area that will be programmed
	// to dest. It returns nil if dest cannot be programmed.
	Stage(dest uintptr, size int) []byte

	// BeginSession starts a new programming session. Every erase block is
	// erased before its first write in a session and never again until
	// the next session begins.
	BeginSession()

	// Program writes the staged area to size bytes of flash at dest.
	Program(dest uintptr, size int) Result

	// Read returns a view of size bytes of flash beginning at addr.
	Read(addr uintptr, size int) []byte

	// ReadWord returns the little-endian 32-bit word at addr.
	ReadWord(addr uintptr) uint32

	// Blank reports whether no application is programmed in r.
	Blank(r region.Region) bool
}

// Backup is the always-powered memory holding the loader marker.
type Backup interface {
	// LoadMarker copies the marker span into buf and returns the number
	// of bytes copied.
	LoadMarker(buf []byte) int

	// StoreMarker overwrites the marker span with data.
	StoreMarker(data []byte)
}

// Launcher transfers control away from the bootloader.
type Launcher interface {
	// RelocateVectors points the exception vector table at base.
	RelocateVectors(base uintptr)

	// Jump loads the stack pointer with sp and branches to pc. On hardware
	// it never returns.
	Jump(sp, pc uint32)

	// SystemReset requests a full chip reset. On hardware it never returns.
	SystemReset()
}

// Platform is the complete capability set of a target chip.
type Platform interface {
	ResetSource
	Watchdog
	Flash
	Backup
	Launcher
}

// MagicSize is the number of bytes in the loader marker.
const MagicSize = 22

// LoaderMagic is the marker pattern an application stores in backup memory
// to request the bootloader on the next reset.
var LoaderMagic = [MagicSize]byte{
	0xFF, 0x00, 0x7F,
	'R', 'E', 'S', 'E', 'T', ' ', 'T', 'O', ' ', 'L', 'O', 'A', 'D', 'E', 'R',
	0x7F, 0x00, 0xFF, 0x00,
}

// RequestLoader arms the loader marker. The caller is expected to reset the
// chip afterwards.
func RequestLoader(b Backup) {
	b.StoreMarker(LoaderMagic[:])
}

// MarkerArmed reports whether the marker span equals magic.
func MarkerArmed(b Backup, magic []byte) bool {
	var buf [MagicSize]byte
	span := buf[:]
	if len(magic) > len(span) {
		span = make([]byte, len(magic))
	}
	n := b.LoadMarker(span[:len(magic)])
	return n == len(magic) && bytes.Equal(span[:n], magic)
}

// ClearMarker disarms the marker by writing zeros over size bytes.
func ClearMarker(b Backup, size int) {
	var buf [MagicSize]byte
	zero := buf[:]
	if size > len(zero) {
		zero = make([]byte, size)
	}
	b.StoreMarker(zero[:size])
}

// FirstWordBlank reports whether the first word of r reads as erased flash.
// Platforms without a hardware blank check implement Blank with it.
func FirstWordBlank(f Flash, r region.Region) bool {
	return f.ReadWord(r.Start) == region.ErasedWord
}
