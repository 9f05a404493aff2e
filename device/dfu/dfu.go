package dfu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/softdfu/device/hal"
	"github.com/ardnew/softdfu/pkg"
)

// DefaultIdleInterval bounds how long Run waits for a request before
// calling the idle hook.
const DefaultIdleInterval = 100 * time.Millisecond

// Handler moves image data on behalf of the engine. Offsets are relative
// to the start of the image.
type Handler interface {
	// PrepareRead returns the data to upload at off. A result shorter than
	// the requested block ends the upload.
	PrepareRead(off int) (Status, []byte)

	// PrepareWrite returns the buffer the data stage of a length-byte
	// download block at off is received into.
	PrepareWrite(off, length int) (Status, []byte)

	// FinishWrite commits a received block.
	FinishWrite(buf []byte, off, length int) Status
}

// Engine runs the DFU state machine over a control endpoint.
type Engine struct {
	hal     hal.DeviceHAL
	handler Handler

	pollTimeout  time.Duration
	idleInterval time.Duration
	onDetach     func()
	onManifest   func(size int)
	onIdle       func()

	state  State
	status Status

	// Download bookkeeping: off is the offset of the next block, pending
	// is the block received but not yet committed.
	off     int
	pending []byte

	running bool
	mutex   sync.RWMutex

	// Reusable buffers for zero-allocation request handling
	setup    hal.SetupPacket
	response [StatusResponseSize]byte
}

// New creates an engine serving h and delegating data movement to handler.
func New(h hal.DeviceHAL, handler Handler, opts ...Option) *Engine {
	e := &Engine{
		hal:          h,
		handler:      handler,
		idleInterval: DefaultIdleInterval,
		state:        StateIdle,
		status:       StatusOK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start initializes the HAL and attaches to the bus.
func (e *Engine) Start(ctx context.Context) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.running {
		return pkg.ErrAlreadyRunning
	}
	if err := e.hal.Init(ctx); err != nil {
		return fmt.Errorf("init hal: %w", err)
	}
	if err := e.hal.Start(); err != nil {
		return fmt.Errorf("start hal: %w", err)
	}
	e.running = true

	pkg.LogDebug(pkg.ComponentDFU, "dfu engine started")
	return nil
}

// Stop detaches from the bus.
func (e *Engine) Stop() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	if err := e.hal.Stop(); err != nil {
		return err
	}

	pkg.LogDebug(pkg.ComponentDFU, "dfu engine stopped")
	return nil
}

// State returns the current DFU state.
func (e *Engine) State() State {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.state
}

// Status returns the current DFU status.
func (e *Engine) Status() Status {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.status
}

// Offset returns the image offset of the next download or upload block.
func (e *Engine) Offset() int {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.off
}

// Run services requests until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		pollCtx, cancel := context.WithTimeout(ctx, e.idleInterval)
		err := e.Poll(pollCtx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			pkg.LogWarn(pkg.ComponentDFU, "error handling request", "error", err)
		}
		if e.onIdle != nil {
			e.onIdle()
		}
	}
}

// Poll waits for one request and handles it. It returns the context's
// error if no request arrives before ctx is done.
func (e *Engine) Poll(ctx context.Context) error {
	if err := e.hal.ReadSetup(ctx, &e.setup); err != nil {
		if errors.Is(err, pkg.ErrReset) {
			e.reset()
			return nil
		}
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.handle(ctx, &e.setup)
}

// reset returns the engine to dfuIDLE after a bus reset.
func (e *Engine) reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentDFU, "bus reset", "state", e.state.String())
	e.state = StateIdle
	e.status = StatusOK
	e.off = 0
	e.pending = nil
}

func (e *Engine) handle(ctx context.Context, setup *hal.SetupPacket) error {
	pkg.LogDebug(pkg.ComponentDFU, "request",
		"request", setup.Request,
		"length", setup.Length,
		"state", e.state.String())

	switch {
	case setup.RequestType == RequestTypeOut:
		switch setup.Request {
		case RequestDnload:
			return e.dnload(ctx, setup)
		case RequestClrStatus:
			return e.clrStatus()
		case RequestAbort:
			return e.abort()
		case RequestDetach:
			return e.detach()
		}

	case setup.RequestType == RequestTypeIn:
		switch setup.Request {
		case RequestUpload:
			return e.upload(ctx, setup)
		case RequestGetStatus:
			return e.getStatus(ctx)
		case RequestGetState:
			e.response[0] = byte(e.state)
			return e.hal.WriteEP0(ctx, e.response[:1])
		}
	}

	return e.fail(StatusErrStalledPacket)
}

// fail enters dfuERROR with status and stalls the request.
func (e *Engine) fail(status Status) error {
	pkg.LogDebug(pkg.ComponentDFU, "request failed",
		"status", status.String(),
		"state", e.state.String())

	e.status = status
	e.state = StateError
	e.pending = nil
	if err := e.hal.StallEP0(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) dnload(ctx context.Context, setup *hal.SetupPacket) error {
	switch e.state {
	case StateIdle:
		e.off = 0
	case StateDnloadIdle:
	default:
		return e.fail(StatusErrStalledPacket)
	}

	length := int(setup.Length)
	if length == 0 && e.state == StateIdle {
		return e.fail(StatusErrNotDone)
	}

	status, buf := e.handler.PrepareWrite(e.off, length)
	if !status.OK() {
		return e.fail(status)
	}

	if length == 0 {
		e.state = StateManifestSync
		return e.hal.AckEP0()
	}

	if len(buf) < length {
		return e.fail(StatusErrAddress)
	}
	n, err := e.hal.ReadEP0(ctx, buf[:length])
	if err != nil {
		e.fail(StatusErrUnknown)
		return fmt.Errorf("read data stage: %w", err)
	}

	if n != length {
		pkg.LogWarn(pkg.ComponentDFU, "short data stage",
			"offset", e.off,
			"length", length,
			"received", n)
		return e.fail(StatusErrAddress)
	}
	e.pending = buf[:n]
	e.state = StateDnloadSync
	return e.hal.AckEP0()
}

func (e *Engine) getStatus(ctx context.Context) error {
	switch e.state {
	case StateDnloadSync:
		length := len(e.pending)
		e.status = e.handler.FinishWrite(e.pending, e.off, length)
		e.pending = nil
		if e.status.OK() {
			e.off += length
			e.state = StateDnloadIdle
		} else {
			e.state = StateError
		}

	case StateManifestSync:
		e.status = e.handler.FinishWrite(nil, e.off, 0)
		if e.status.OK() {
			pkg.LogInfo(pkg.ComponentDFU, "download complete", "size", e.off)
			if e.onManifest != nil {
				e.onManifest(e.off)
			}
			e.state = StateIdle
		} else {
			e.state = StateError
		}
	}

	ms := uint32(e.pollTimeout / time.Millisecond)
	e.response[0] = byte(e.status)
	e.response[1] = byte(ms)
	e.response[2] = byte(ms >> 8)
	e.response[3] = byte(ms >> 16)
	e.response[4] = byte(e.state)
	e.response[5] = 0 // iString
	return e.hal.WriteEP0(ctx, e.response[:])
}

func (e *Engine) upload(ctx context.Context, setup *hal.SetupPacket) error {
	switch e.state {
	case StateIdle:
		e.off = 0
		e.state = StateUploadIdle
	case StateUploadIdle:
	default:
		return e.fail(StatusErrStalledPacket)
	}

	status, data := e.handler.PrepareRead(e.off)
	if !status.OK() {
		return e.fail(status)
	}

	requested := int(setup.Length)
	if len(data) > requested {
		data = data[:requested]
	}
	e.off += len(data)
	if len(data) < requested {
		pkg.LogInfo(pkg.ComponentDFU, "upload complete", "size", e.off)
		e.state = StateIdle
	}
	return e.hal.WriteEP0(ctx, data)
}

func (e *Engine) clrStatus() error {
	if e.state != StateError {
		return e.fail(StatusErrStalledPacket)
	}
	e.status = StatusOK
	e.state = StateIdle
	return e.hal.AckEP0()
}

func (e *Engine) abort() error {
	switch e.state {
	case StateIdle, StateDnloadSync, StateDnloadIdle, StateManifestSync, StateUploadIdle:
	default:
		return e.fail(StatusErrStalledPacket)
	}
	e.state = StateIdle
	e.off = 0
	e.pending = nil
	return e.hal.AckEP0()
}

func (e *Engine) detach() error {
	if err := e.hal.AckEP0(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentDFU, "detach requested")
	if e.onDetach != nil {
		e.onDetach()
	}
	return nil
}
