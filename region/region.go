package region

import (
	"fmt"

	"github.com/ardnew/softdfu/pkg"
)

// ErasedByte is the value every byte of erased flash reads as.
const ErasedByte = 0xFF

// ErasedWord is the value a fully-erased 32-bit flash word reads as.
const ErasedWord uint32 = 0xFFFFFFFF

// Vector table word offsets relative to Start.
const (
	OffsetStackPointer = 0 // Initial main stack pointer
	OffsetResetHandler = 4 // Application entry point
)

// Region describes the writable application region.
type Region struct {
	Start     uintptr // First byte of the application region
	End       uintptr // Last byte of the application region (inclusive)
	ChunkSize int     // Bytes per transfer chunk
}

// New returns a validated region spanning [start, end].
func New(start, end uintptr, chunkSize int) (Region, error) {
	r := Region{Start: start, End: end, ChunkSize: chunkSize}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Validate reports whether the descriptor is well formed: Start < End, a
// positive chunk size, and a region size that is a whole number of chunks.
func (r Region) Validate() error {
	if r.Start >= r.End {
		return fmt.Errorf("%w: start 0x%08x not below end 0x%08x",
			pkg.ErrInvalidRegion, r.Start, r.End)
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", pkg.ErrInvalidRegion, r.ChunkSize)
	}
	if r.Size()%uint64(r.ChunkSize) != 0 {
		return fmt.Errorf("%w: size %d not a multiple of chunk size %d",
			pkg.ErrInvalidRegion, r.Size(), r.ChunkSize)
	}
	return nil
}

// Size returns the number of bytes in the region.
func (r Region) Size() uint64 {
	return uint64(r.End-r.Start) + 1
}

// Chunks returns the number of whole chunks the region holds.
func (r Region) Chunks() int {
	return int(r.Size() / uint64(r.ChunkSize))
}

// Address returns the absolute address of the byte at offset off.
func (r Region) Address(off int) uintptr {
	return r.Start + uintptr(off)
}

// Contains reports whether the length bytes beginning at offset off lie
// entirely inside the region. The end address is inclusive, so a range
// whose last byte is End is accepted.
func (r Region) Contains(off, length int) bool {
	if off < 0 || length < 0 {
		return false
	}
	return uint64(off)+uint64(length) <= r.Size()
}

// Window returns the number of bytes readable from offset off without
// passing End: ChunkSize, or the remainder for the final partial window.
// Offsets at or past the end yield zero.
func (r Region) Window(off int) int {
	if off < 0 || uint64(off) >= r.Size() {
		return 0
	}
	remaining := r.Size() - uint64(off)
	if remaining < uint64(r.ChunkSize) {
		return int(remaining)
	}
	return r.ChunkSize
}

// String returns a human-readable description of the region.
func (r Region) String() string {
	return fmt.Sprintf("[0x%08x-0x%08x] chunk=%d", r.Start, r.End, r.ChunkSize)
}
