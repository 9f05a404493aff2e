//go:build tinygo && atsamd51

package atsamd51

import (
	"github.com/ardnew/softdfu/platform"
)

// NVMCTRL registers
const (
	nvmBase     uintptr = 0x41004000
	nvmCTRLA            = nvmBase + 0x00
	nvmCTRLB            = nvmBase + 0x04
	nvmINTFLAG          = nvmBase + 0x10
	nvmSTATUS           = nvmBase + 0x12
	nvmADDR             = nvmBase + 0x14
)

// NVMCTRL commands
const (
	nvmCmdEB  = 0x01 // Erase block
	nvmCmdWP  = 0x03 // Write page
	nvmCmdPBC = 0x15 // Page buffer clear
	nvmCMDEX  = 0xA5 << 8
)

// INTFLAG register bits
const (
	nvmFlagDONE  = 1 << 0
	nvmFlagADDRE = 1 << 1
	nvmFlagPROGE = 1 << 2
	nvmFlagLOCKE = 1 << 3
	nvmFlagNVME  = 1 << 6
	nvmFlagError = nvmFlagADDRE | nvmFlagPROGE | nvmFlagLOCKE | nvmFlagNVME
)

const (
	nvmStatusREADY = 1 << 0
	nvmWMODEMask   = 3 << 4 // CTRLA.WMODE, 0 is manual
)

// Flash geometry
const (
	flashBase  uintptr = 0x00000000
	flashSize          = 1 << 20
	PageSize           = 512
	BlockSize          = 8192
)

// BootSize is the flash reserved for the bootloader. Stage refuses any
// destination inside it.
const BootSize uintptr = 0x4000

// StageSize is the size of the RAM staging buffer, the largest chunk the
// chip can program at once.
const StageSize = BlockSize

// Stage returns the RAM staging buffer for a page-aligned destination.
func (c *Chip) Stage(dest uintptr, size int) []byte {
	if size <= 0 || size > StageSize || size%PageSize != 0 {
		return nil
	}
	if dest%PageSize != 0 || dest < flashBase+BootSize || dest+uintptr(size) > flashBase+flashSize {
		return nil
	}
	return c.stage[:size]
}

// BeginSession forgets which blocks have been erased.
func (c *Chip) BeginSession() {
	c.erased = [len(c.erased)]uint32{}
}

// Program writes size staged bytes to dest. Each block the range touches is
// erased first unless it was already erased in this session, so skipped or
// unaligned chunks never land on old data.
func (c *Chip) Program(dest uintptr, size int) platform.Result {
	if c.Stage(dest, size) == nil {
		return platform.ResultInvalid
	}

	reg16(nvmCTRLA).ClearBits(nvmWMODEMask)

	first := (dest - flashBase) / BlockSize
	last := (dest - flashBase + uintptr(size) - 1) / BlockSize
	for b := first; b <= last; b++ {
		if c.erased[b/32]&(1<<(b%32)) != 0 {
			continue
		}
		if r := nvmCommand(flashBase+b*BlockSize, nvmCmdEB); r != platform.ResultOK {
			return r
		}
		c.erased[b/32] |= 1 << (b % 32)
	}

	for off := 0; off < size; off += PageSize {
		if r := nvmCommand(dest+uintptr(off), nvmCmdPBC); r != platform.ResultOK {
			return r
		}
		page := c.stage[off : off+PageSize]
		for i := 0; i < PageSize; i += 4 {
			word := uint32(page[i]) | uint32(page[i+1])<<8 |
				uint32(page[i+2])<<16 | uint32(page[i+3])<<24
			reg32(dest + uintptr(off+i)).Set(word)
		}
		if r := nvmCommand(dest+uintptr(off), nvmCmdWP); r != platform.ResultOK {
			return r
		}
	}
	return platform.ResultOK
}

// nvmCommand executes cmd at addr and waits for completion.
func nvmCommand(addr uintptr, cmd uint16) platform.Result {
	for reg16(nvmSTATUS).Get()&nvmStatusREADY == 0 {
	}
	reg16(nvmINTFLAG).Set(nvmFlagDONE | nvmFlagError)
	reg32(nvmADDR).Set(uint32(addr))
	reg16(nvmCTRLB).Set(nvmCMDEX | cmd)
	for reg16(nvmINTFLAG).Get()&nvmFlagDONE == 0 {
	}

	flags := reg16(nvmINTFLAG).Get()
	switch {
	case flags&nvmFlagLOCKE != 0:
		return platform.ResultProtection
	case flags&nvmFlagADDRE != 0:
		return platform.ResultAccess
	case flags&(nvmFlagPROGE|nvmFlagNVME) != 0:
		return platform.ResultError
	}
	return platform.ResultOK
}
