//go:build tinygo && atsamd51

package atsamd51

import (
	"device/arm"
	"runtime/volatile"
	"time"
	"unsafe"

	"github.com/ardnew/softdfu/platform"
	"github.com/ardnew/softdfu/region"
)

// RSTC registers
const (
	rstcBase   uintptr = 0x40000C00
	rstcRCAUSE         = rstcBase + 0x00
)

// RCAUSE register bits
const (
	rcausePOR     = 1 << 0 // Power-on reset
	rcauseBODCORE = 1 << 1 // Core brown-out
	rcauseBODVDD  = 1 << 2 // VDD brown-out
	rcauseNVM     = 1 << 3 // NVM reset
	rcauseEXT     = 1 << 4 // External reset pin
	rcauseWDT     = 1 << 5 // Watchdog
	rcauseSYST    = 1 << 6 // System reset request
	rcauseBACKUP  = 1 << 7 // Backup wake
)

// WDT registers
const (
	wdtBase     uintptr = 0x40002000
	wdtCTRLA            = wdtBase + 0x00
	wdtCONFIG           = wdtBase + 0x01
	wdtSYNCBUSY         = wdtBase + 0x08
	wdtCLEAR            = wdtBase + 0x0C
)

const (
	wdtCtrlaENABLE = 1 << 1
	wdtKEY         = 0xA5
	wdtClockHz     = 1024
	wdtMaxPeriod   = 0x0B // 16384 cycles
)

// SCB vector table offset register
const scbVTOR uintptr = 0xE000ED08

// Backup RAM
const (
	bkupramBase uintptr = 0x47000000
	bkupramSize         = 8192
)

// Chip implements platform.Platform for the ATSAMD51.
type Chip struct {
	stage [StageSize]byte

	// erased has one bit per NVM block cleared in this session.
	erased [flashSize / BlockSize / 32]uint32
}

// New returns the chip. Only one should exist.
func New() *Chip {
	return &Chip{}
}

func reg8(addr uintptr) *volatile.Register8 {
	return (*volatile.Register8)(unsafe.Pointer(addr))
}

func reg16(addr uintptr) *volatile.Register16 {
	return (*volatile.Register16)(unsafe.Pointer(addr))
}

func reg32(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// ResetCause maps RCAUSE to platform flags. The ATSAMD51 latches a core
// lockup as a system reset, so ResetLockup is never reported.
func (c *Chip) ResetCause() platform.ResetCause {
	rc := reg8(rstcRCAUSE).Get()
	var cause platform.ResetCause
	if rc&rcausePOR != 0 {
		cause |= platform.ResetPowerOn
	}
	if rc&(rcauseBODCORE|rcauseBODVDD) != 0 {
		cause |= platform.ResetBrownout
	}
	if rc&rcauseEXT != 0 {
		cause |= platform.ResetPin
	}
	if rc&rcauseWDT != 0 {
		cause |= platform.ResetWatchdog
	}
	if rc&(rcauseSYST|rcauseNVM) != 0 {
		cause |= platform.ResetSoftware
	}
	if rc&rcauseBACKUP != 0 {
		cause |= platform.ResetBackup
	}
	return cause
}

// ArmWatchdog enables the WDT in normal mode with the shortest period not
// below timeout.
func (c *Chip) ArmWatchdog(timeout time.Duration) {
	cycles := uint32(timeout.Milliseconds() * wdtClockHz / 1000)
	per := uint8(0)
	for per < wdtMaxPeriod && uint32(8)<<per < cycles {
		per++
	}

	reg8(wdtCTRLA).ClearBits(wdtCtrlaENABLE)
	for reg32(wdtSYNCBUSY).Get() != 0 {
	}
	reg8(wdtCONFIG).Set(per)
	reg8(wdtCTRLA).SetBits(wdtCtrlaENABLE)
	for reg32(wdtSYNCBUSY).Get() != 0 {
	}
}

// FeedWatchdog clears the WDT counter.
func (c *Chip) FeedWatchdog() {
	if reg8(wdtCTRLA).Get()&wdtCtrlaENABLE == 0 {
		return
	}
	for reg32(wdtSYNCBUSY).Get() != 0 {
	}
	reg8(wdtCLEAR).Set(wdtKEY)
}

// LoadMarker copies the start of backup RAM into buf.
func (c *Chip) LoadMarker(buf []byte) int {
	n := len(buf)
	if n > bkupramSize {
		n = bkupramSize
	}
	for i := 0; i < n; i++ {
		buf[i] = reg8(bkupramBase + uintptr(i)).Get()
	}
	return n
}

// StoreMarker overwrites the start of backup RAM with data.
func (c *Chip) StoreMarker(data []byte) {
	for i := 0; i < len(data) && i < bkupramSize; i++ {
		reg8(bkupramBase + uintptr(i)).Set(data[i])
	}
}

// RelocateVectors writes base to SCB.VTOR.
func (c *Chip) RelocateVectors(base uintptr) {
	reg32(scbVTOR).Set(uint32(base))
	arm.Asm("dsb")
	arm.Asm("isb")
}

// Jump disables interrupts and branches into the application.
func (c *Chip) Jump(sp, pc uint32) {
	arm.DisableInterrupts()
	jump(sp, pc)
}

// SystemReset requests a system reset through the SCB.
func (c *Chip) SystemReset() {
	arm.SystemReset()
}

// Read returns a view of mapped flash.
func (c *Chip) Read(addr uintptr, size int) []byte {
	if size <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// ReadWord reads one word of mapped flash.
func (c *Chip) ReadWord(addr uintptr) uint32 {
	return reg32(addr).Get()
}

// Blank reports whether the first word of r is erased.
func (c *Chip) Blank(r region.Region) bool {
	return platform.FirstWordBlank(c, r)
}

var _ platform.Platform = (*Chip)(nil)
