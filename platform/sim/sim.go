package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ardnew/softdfu/platform"
	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/region"
)

// DefaultBackupSize is the size of simulated battery-backed memory.
const DefaultBackupSize = 32

// DefaultStageSize is the size of the simulated staging RAM.
const DefaultStageSize = 4096

// DefaultBlockSize is the simulated erase granularity. Blocks are aligned
// to absolute addresses, not to the flash base.
const DefaultBlockSize = 1024

// Call identifies a watchdog or launcher operation in the call log.
type Call string

// Recorded calls
const (
	CallArmWatchdog     Call = "arm-watchdog"
	CallRelocateVectors Call = "relocate-vectors"
	CallJump            Call = "jump"
	CallSystemReset     Call = "system-reset"
)

// Program records one call to Chip.Program.
type Program struct {
	Dest   uintptr
	Size   int
	Result platform.Result
}

// Chip implements platform.Platform in memory.
type Chip struct {
	base  uintptr
	flash []byte
	stage []byte

	blockSize int
	erased    map[uintptr]bool

	stageDest uintptr
	staged    bool

	backup []byte
	cause  platform.ResetCause

	watchdogTimeout time.Duration
	watchdogArmed   bool
	feeds           int

	vtor   uintptr
	jumped bool
	sp, pc uint32
	resets int

	programs []Program
	faults   map[uintptr]platform.Result
	calls    []Call

	mutex sync.RWMutex
}

// Option configures a Chip.
type Option func(*Chip)

// WithResetCause sets the latched reset-cause flags.
func WithResetCause(c platform.ResetCause) Option {
	return func(chip *Chip) { chip.cause = c }
}

// WithStageSize sets the size of the staging RAM.
func WithStageSize(n int) Option {
	return func(chip *Chip) { chip.stage = make([]byte, n) }
}

// WithBlockSize sets the erase granularity.
func WithBlockSize(n int) Option {
	return func(chip *Chip) {
		if n > 0 {
			chip.blockSize = n
		}
	}
}

// WithBackupSize sets the size of battery-backed memory.
func WithBackupSize(n int) Option {
	return func(chip *Chip) { chip.backup = make([]byte, n) }
}

// New creates a chip with size bytes of erased flash mapped at base.
func New(base uintptr, size int, opts ...Option) *Chip {
	c := &Chip{
		base:   base,
		flash:  make([]byte, size),
		stage:     make([]byte, DefaultStageSize),
		blockSize: DefaultBlockSize,
		erased:    make(map[uintptr]bool),
		backup:    make([]byte, DefaultBackupSize),
		faults:    make(map[uintptr]platform.Result),
	}
	fill(c.flash, region.ErasedByte)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewForRegion creates a chip whose flash covers exactly r.
func NewForRegion(r region.Region, opts ...Option) *Chip {
	return New(r.Start, int(r.Size()), opts...)
}

// Base returns the address of the first flash byte.
func (c *Chip) Base() uintptr {
	return c.base
}

// Size returns the number of flash bytes.
func (c *Chip) Size() int {
	return len(c.flash)
}

// ResetCause implements platform.ResetSource.
func (c *Chip) ResetCause() platform.ResetCause {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.cause
}

// SetResetCause replaces the latched reset-cause flags.
func (c *Chip) SetResetCause(cause platform.ResetCause) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cause = cause
}

// ArmWatchdog implements platform.Watchdog.
func (c *Chip) ArmWatchdog(timeout time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.watchdogTimeout = timeout
	c.watchdogArmed = true
	c.calls = append(c.calls, CallArmWatchdog)
	pkg.LogDebug(pkg.ComponentPlatform, "watchdog armed", "timeout", timeout)
}

// FeedWatchdog implements platform.Watchdog.
func (c *Chip) FeedWatchdog() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.feeds++
}

// Watchdog returns the armed timeout and whether the watchdog is armed.
func (c *Chip) Watchdog() (time.Duration, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.watchdogTimeout, c.watchdogArmed
}

// Feeds returns how many times the watchdog was serviced.
func (c *Chip) Feeds() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.feeds
}

// Stage implements platform.Flash. The staging area is reset to the erased
// pattern on every call.
func (c *Chip) Stage(dest uintptr, size int) []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if size <= 0 || size > len(c.stage) || !c.inFlash(dest, size) {
		return nil
	}
	c.stageDest = dest
	c.staged = true
	buf := c.stage[:size]
	fill(buf, region.ErasedByte)
	return buf
}

// BeginSession implements platform.Flash.
func (c *Chip) BeginSession() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.erased = make(map[uintptr]bool)
}

// Program implements platform.Flash. Blocks not yet erased in this session
// are erased, then the staging area is written. Like NOR flash, a write
// only clears bits, so data programmed over an unerased block is the AND
// of old and new contents.
func (c *Chip) Program(dest uintptr, size int) platform.Result {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	result := c.program(dest, size)
	c.programs = append(c.programs, Program{Dest: dest, Size: size, Result: result})
	pkg.LogDebug(pkg.ComponentFlash, "program",
		"dest", dest,
		"size", size,
		"result", result.String())
	return result
}

func (c *Chip) program(dest uintptr, size int) platform.Result {
	if fault, ok := c.faults[dest]; ok {
		delete(c.faults, dest)
		return fault
	}
	if !c.inFlash(dest, size) {
		return platform.ResultInvalid
	}
	if size > len(c.stage) {
		return platform.ResultInvalid
	}
	if !c.staged || c.stageDest != dest {
		return platform.ResultAccess
	}
	c.eraseBlocks(dest, size)
	off := int(dest - c.base)
	for i, v := range c.stage[:size] {
		c.flash[off+i] &= v
	}
	c.staged = false
	return platform.ResultOK
}

// eraseBlocks erases each block overlapping [dest, dest+size) that has not
// been erased in this session. Blocks are clipped to flash.
func (c *Chip) eraseBlocks(dest uintptr, size int) {
	bs := uintptr(c.blockSize)
	for b := dest / bs * bs; b < dest+uintptr(size); b += bs {
		if c.erased[b] {
			continue
		}
		lo, hi := b, b+bs
		if lo < c.base {
			lo = c.base
		}
		if end := c.base + uintptr(len(c.flash)); hi > end {
			hi = end
		}
		fill(c.flash[lo-c.base:hi-c.base], region.ErasedByte)
		c.erased[b] = true
	}
}

// Read implements platform.Flash. The returned slice aliases flash.
func (c *Chip) Read(addr uintptr, size int) []byte {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if size <= 0 || !c.inFlash(addr, size) {
		return nil
	}
	off := int(addr - c.base)
	return c.flash[off : off+size : off+size]
}

// ReadWord implements platform.Flash. Addresses outside flash read as
// erased.
func (c *Chip) ReadWord(addr uintptr) uint32 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.inFlash(addr, 4) {
		return region.ErasedWord
	}
	off := int(addr - c.base)
	return binary.LittleEndian.Uint32(c.flash[off : off+4])
}

// Blank implements platform.Flash.
func (c *Chip) Blank(r region.Region) bool {
	return platform.FirstWordBlank(c, r)
}

// LoadMarker implements platform.Backup.
func (c *Chip) LoadMarker(buf []byte) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return copy(buf, c.backup)
}

// StoreMarker implements platform.Backup.
func (c *Chip) StoreMarker(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	copy(c.backup, data)
}

// Backup returns a copy of battery-backed memory.
func (c *Chip) Backup() []byte {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]byte, len(c.backup))
	copy(out, c.backup)
	return out
}

// RelocateVectors implements platform.Launcher.
func (c *Chip) RelocateVectors(base uintptr) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.vtor = base
	c.calls = append(c.calls, CallRelocateVectors)
}

// VectorTable returns the current vector table base.
func (c *Chip) VectorTable() uintptr {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.vtor
}

// Jump implements platform.Launcher. It records the target and returns.
func (c *Chip) Jump(sp, pc uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.jumped = true
	c.sp = sp
	c.pc = pc
	c.calls = append(c.calls, CallJump)
	pkg.LogDebug(pkg.ComponentPlatform, "jump", "sp", sp, "pc", pc)
}

// Jumped returns the stack pointer and entry point of the last jump, and
// whether a jump happened.
func (c *Chip) Jumped() (sp, pc uint32, ok bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.sp, c.pc, c.jumped
}

// SystemReset implements platform.Launcher. It counts the request and
// latches a software reset cause.
func (c *Chip) SystemReset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.resets++
	c.cause = platform.ResetSoftware
	c.calls = append(c.calls, CallSystemReset)
}

// Calls returns the watchdog and launcher operations in the order they
// were made since the last power cycle.
func (c *Chip) Calls() []Call {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Resets returns how many system resets were requested.
func (c *Chip) Resets() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.resets
}

// PowerCycle simulates a reset with the given cause: the watchdog and jump
// state are cleared while flash and backup memory survive.
func (c *Chip) PowerCycle(cause platform.ResetCause) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cause = cause
	c.watchdogArmed = false
	c.watchdogTimeout = 0
	c.feeds = 0
	c.vtor = 0
	c.jumped = false
	c.sp, c.pc = 0, 0
	c.staged = false
	c.programs = nil
	c.calls = nil
	c.erased = make(map[uintptr]bool)
}

// Programs returns the recorded program calls.
func (c *Chip) Programs() []Program {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]Program, len(c.programs))
	copy(out, c.programs)
	return out
}

// FailProgram makes the next Program of dest return result.
func (c *Chip) FailProgram(dest uintptr, result platform.Result) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.faults[dest] = result
}

// Write copies data into flash at addr directly, bypassing the staging
// area. It is used to preload an application image.
func (c *Chip) Write(addr uintptr, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.inFlash(addr, len(data)) {
		return pkg.ErrOutOfRegion
	}
	off := int(addr - c.base)
	copy(c.flash[off:], data)
	return nil
}

// Erase resets all flash to the erased pattern.
func (c *Chip) Erase() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	fill(c.flash, region.ErasedByte)
}

// Snapshot returns a copy of flash contents.
func (c *Chip) Snapshot() []byte {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]byte, len(c.flash))
	copy(out, c.flash)
	return out
}

// inFlash reports whether [addr, addr+size) lies inside flash.
func (c *Chip) inFlash(addr uintptr, size int) bool {
	if addr < c.base || size < 0 {
		return false
	}
	return uint64(addr-c.base)+uint64(size) <= uint64(len(c.flash))
}

func fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

// Compile-time interface check
var _ platform.Platform = (*Chip)(nil)
