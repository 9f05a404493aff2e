package transfer

import (
	"github.com/ardnew/softdfu/device/dfu"
	"github.com/ardnew/softdfu/platform"
	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/region"
)

const component = pkg.ComponentTransfer

// Context is the state of one firmware transfer session.
type Context struct {
	region    region.Region
	flash     platform.Flash
	validator Validator

	verification Verification
	writeOffset  int
	terminalSeen bool

	// Transport data cannot be written straight into flash-backed memory,
	// so every chunk is staged here first.
	staging []byte
}

// New creates a transfer context for r. A nil validator is replaced by
// NoValidation.
func New(r region.Region, flash platform.Flash, v Validator) *Context {
	if v == nil {
		v = NoValidation
	}
	return &Context{
		region:    r,
		flash:     flash,
		validator: v,
		staging:   make([]byte, r.ChunkSize),
	}
}

// Reset returns the context to its initial state and begins a new flash
// session. A write at offset 0 resets the context.
func (c *Context) Reset() {
	c.verification = VerificationUnknown
	c.writeOffset = 0
	c.terminalSeen = false
	c.flash.BeginSession()
}

// Region returns the application region the context writes.
func (c *Context) Region() region.Region {
	return c.region
}

// Verification returns the verification state of the current transfer.
func (c *Context) Verification() Verification {
	return c.verification
}

// WriteOffset returns the offset just past the last programmed chunk.
func (c *Context) WriteOffset() int {
	return c.writeOffset
}

// TerminalSeen reports whether a short chunk has been accepted.
func (c *Context) TerminalSeen() bool {
	return c.terminalSeen
}

// StagingCapacity returns the size of the staging buffer.
func (c *Context) StagingCapacity() int {
	return len(c.staging)
}

// PrepareRead returns the window of the application region starting at
// off. The window is one chunk long, or shorter when it would pass the end
// of the region.
func (c *Context) PrepareRead(off int) (dfu.Status, []byte) {
	n := c.region.Window(off)
	if n == 0 {
		return dfu.StatusOK, nil
	}
	return dfu.StatusOK, c.flash.Read(c.region.Address(off), n)
}

// PrepareWrite returns the staging buffer for a chunk of length bytes at
// off.
func (c *Context) PrepareWrite(off, length int) (dfu.Status, []byte) {
	pkg.LogDebug(component, "setup write",
		"offset", off,
		"length", length,
		"last", c.terminalSeen)

	if off == 0 {
		c.Reset()
	}

	// Only the last write may be shorter than a chunk.
	if c.terminalSeen && length != 0 {
		pkg.LogWarn(component, "write after short chunk",
			"offset", off,
			"length", length)
		return dfu.StatusErrAddress, nil
	}

	if length < 0 || length > len(c.staging) {
		pkg.LogWarn(component, "write exceeds staging buffer",
			"length", length,
			"capacity", len(c.staging))
		return dfu.StatusErrAddress, nil
	}

	if length != c.region.ChunkSize {
		c.terminalSeen = true
		fill(c.staging, region.ErasedByte)
	}

	return dfu.StatusOK, c.staging[:length]
}

// FinishWrite validates and programs length bytes of buf received for the
// chunk at off.
func (c *Context) FinishWrite(buf []byte, off, length int) dfu.Status {
	if length == 0 {
		return dfu.StatusOK
	}
	if length > len(buf) {
		return dfu.StatusErrAddress
	}
	// A chunk can also arrive short of what was requested.
	if length < c.region.ChunkSize {
		c.terminalSeen = true
	}

	if off == 0 && c.verification == VerificationUnknown {
		c.writeOffset = 0

		result := c.validator.Validate(buf[:length])
		switch result {
		case KeyAbsent:
			c.verification = VerificationOK

		case KeyInvalid:
			c.verification = VerificationFailed
			pkg.LogWarn(component, "invalid firmware key")
			return dfu.StatusErrFile

		case KeyValid:
			c.verification = VerificationPending
			pkg.LogInfo(component, "valid firmware key")
			// The key chunk is consumed, not programmed.
			return dfu.StatusOK

		default:
			c.verification = VerificationFailed
			pkg.LogError(component, "unexpected validation result",
				"result", result.String())
			return dfu.StatusErrFile
		}
	}

	if !c.verification.Flashable() {
		return dfu.StatusErrFile
	}

	// Every chunk is programmed at full size, so both the data and the
	// padded chunk must fit.
	if !c.region.Contains(off, length) || !c.region.Contains(off, c.region.ChunkSize) {
		pkg.LogWarn(component, "write outside application region",
			"offset", off,
			"length", length,
			"region", c.region.String())
		return dfu.StatusErrAddress
	}

	dest := c.region.Address(off)
	target := c.flash.Stage(dest, c.region.ChunkSize)
	if len(target) < c.region.ChunkSize {
		pkg.LogWarn(pkg.ComponentFlash, "no staging area",
			"dest", dest)
		return dfu.StatusErrAddress
	}
	copy(target, buf[:length])
	fill(target[length:], region.ErasedByte)

	if result := c.flash.Program(dest, c.region.ChunkSize); result != platform.ResultOK {
		pkg.LogError(pkg.ComponentFlash, "program failed",
			"dest", dest,
			"result", result.String(),
			"error", result.Err())
		return dfu.StatusErrAddress
	}

	c.writeOffset = off + length
	return dfu.StatusOK
}

func fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

// Compile-time interface check
var _ dfu.Handler = (*Context)(nil)
