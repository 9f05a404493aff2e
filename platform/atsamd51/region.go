//go:build tinygo && atsamd51

package atsamd51

import (
	"unsafe"

	"github.com/ardnew/softdfu/region"
)

//go:extern _app_rom
var appROM [0]byte

//go:extern _app_rom_end
var appROMEnd [0]byte

// AppRegion returns the application region placed by the linker script.
// _app_rom_end is the first address past the region.
func AppRegion(chunkSize int) (region.Region, error) {
	start := uintptr(unsafe.Pointer(&appROM))
	end := uintptr(unsafe.Pointer(&appROMEnd)) - 1
	return region.New(start, end, chunkSize)
}
