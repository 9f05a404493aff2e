package dfu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softdfu/device/dfu"
	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/pkg"
)

// DefaultTransferSize is the block size used when none is configured.
const DefaultTransferSize = 1024

// maxStatusPolls bounds how many GETSTATUS requests wait out dfuDNBUSY.
const maxStatusPolls = 100

// StatusError is a DFU error reported by the device.
type StatusError struct {
	Status dfu.Status
	State  dfu.State
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device status %s in state %s", e.Status, e.State)
}

// StatusResult is a decoded DFU_GETSTATUS response.
type StatusResult struct {
	Status      dfu.Status
	PollTimeout time.Duration
	State       dfu.State
	IString     uint8
}

// Client talks to one DFU device.
type Client struct {
	hal          hal.HostHAL
	addr         hal.DeviceAddress
	iface        uint16
	transferSize int
	progress     func(done, total int)

	buf [dfu.StatusResponseSize]byte
}

// Option configures a Client.
type Option func(*Client)

// WithTransferSize sets the download and upload block size.
func WithTransferSize(n int) Option {
	return func(c *Client) {
		c.transferSize = n
	}
}

// WithInterface sets the DFU interface number placed in wIndex.
func WithInterface(n uint16) Option {
	return func(c *Client) {
		c.iface = n
	}
}

// WithAddress sets the device address.
func WithAddress(addr hal.DeviceAddress) Option {
	return func(c *Client) {
		c.addr = addr
	}
}

// WithProgress sets a function called after each block.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// NewClient creates a client over h.
func NewClient(h hal.HostHAL, opts ...Option) *Client {
	c := &Client{
		hal:          h,
		transferSize: DefaultTransferSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransferSize returns the configured block size.
func (c *Client) TransferSize() int {
	return c.transferSize
}

func (c *Client) out(ctx context.Context, req uint8, value uint16, data []byte) error {
	setup := hal.SetupPacket{
		RequestType: dfu.RequestTypeOut,
		Request:     req,
		Value:       value,
		Index:       c.iface,
		Length:      uint16(len(data)),
	}
	_, err := c.hal.ControlTransfer(ctx, c.addr, &setup, data)
	return err
}

func (c *Client) in(ctx context.Context, req uint8, value uint16, data []byte) (int, error) {
	setup := hal.SetupPacket{
		RequestType: dfu.RequestTypeIn,
		Request:     req,
		Value:       value,
		Index:       c.iface,
		Length:      uint16(len(data)),
	}
	return c.hal.ControlTransfer(ctx, c.addr, &setup, data)
}

// GetStatus issues DFU_GETSTATUS.
func (c *Client) GetStatus(ctx context.Context) (StatusResult, error) {
	n, err := c.in(ctx, dfu.RequestGetStatus, 0, c.buf[:])
	if err != nil {
		return StatusResult{}, fmt.Errorf("get status: %w", err)
	}
	if n != dfu.StatusResponseSize {
		return StatusResult{}, fmt.Errorf("get status: %w: %d byte response", pkg.ErrProtocol, n)
	}
	ms := uint32(c.buf[1]) | uint32(c.buf[2])<<8 | uint32(c.buf[3])<<16
	return StatusResult{
		Status:      dfu.Status(c.buf[0]),
		PollTimeout: time.Duration(ms) * time.Millisecond,
		State:       dfu.State(c.buf[4]),
		IString:     c.buf[5],
	}, nil
}

// GetState issues DFU_GETSTATE.
func (c *Client) GetState(ctx context.Context) (dfu.State, error) {
	n, err := c.in(ctx, dfu.RequestGetState, 0, c.buf[:1])
	if err != nil {
		return 0, fmt.Errorf("get state: %w", err)
	}
	if n != 1 {
		return 0, fmt.Errorf("get state: %w", pkg.ErrProtocol)
	}
	return dfu.State(c.buf[0]), nil
}

// ClearStatus issues DFU_CLRSTATUS.
func (c *Client) ClearStatus(ctx context.Context) error {
	if err := c.out(ctx, dfu.RequestClrStatus, 0, nil); err != nil {
		return fmt.Errorf("clear status: %w", err)
	}
	return nil
}

// Abort issues DFU_ABORT.
func (c *Client) Abort(ctx context.Context) error {
	if err := c.out(ctx, dfu.RequestAbort, 0, nil); err != nil {
		return fmt.Errorf("abort: %w", err)
	}
	return nil
}

// Detach issues DFU_DETACH with the given timeout in milliseconds.
func (c *Client) Detach(ctx context.Context, timeout uint16) error {
	if err := c.out(ctx, dfu.RequestDetach, timeout, nil); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

// Idle brings the device to dfuIDLE, clearing an error or aborting a
// transfer in progress.
func (c *Client) Idle(ctx context.Context) error {
	st, err := c.GetStatus(ctx)
	if err != nil {
		return err
	}
	switch st.State {
	case dfu.StateIdle:
		return nil
	case dfu.StateError:
		err = c.ClearStatus(ctx)
	default:
		err = c.Abort(ctx)
	}
	if err != nil {
		return err
	}

	state, err := c.GetState(ctx)
	if err != nil {
		return err
	}
	if state != dfu.StateIdle {
		return fmt.Errorf("%w: device in %s", pkg.ErrProtocol, state)
	}
	return nil
}

// waitStatus polls GETSTATUS until the device leaves dfuDNBUSY and checks
// that it reached want.
func (c *Client) waitStatus(ctx context.Context, want dfu.State) error {
	for i := 0; i < maxStatusPolls; i++ {
		st, err := c.GetStatus(ctx)
		if err != nil {
			return err
		}
		if !st.Status.OK() {
			return &StatusError{Status: st.Status, State: st.State}
		}
		if st.State == dfu.StateDnbusy {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(st.PollTimeout):
			}
			continue
		}
		if st.State != want {
			return fmt.Errorf("%w: device in %s, want %s", pkg.ErrProtocol, st.State, want)
		}
		return nil
	}
	return pkg.ErrTimeout
}

// Download writes image to the device and completes the manifestation
// phase.
func (c *Client) Download(ctx context.Context, image []byte) error {
	if c.transferSize <= 0 {
		return fmt.Errorf("%w: transfer size %d", pkg.ErrInvalidParameter, c.transferSize)
	}
	if err := c.Idle(ctx); err != nil {
		return err
	}

	var block uint16
	for off := 0; off < len(image); off += c.transferSize {
		end := min(off+c.transferSize, len(image))
		if err := c.out(ctx, dfu.RequestDnload, block, image[off:end]); err != nil {
			if errors.Is(err, pkg.ErrStall) {
				if st, serr := c.GetStatus(ctx); serr == nil {
					return &StatusError{Status: st.Status, State: st.State}
				}
			}
			return fmt.Errorf("download block %d: %w", block, err)
		}
		if err := c.waitStatus(ctx, dfu.StateDnloadIdle); err != nil {
			return fmt.Errorf("download block %d: %w", block, err)
		}
		block++

		pkg.LogDebug(pkg.ComponentHost, "block downloaded", "block", block, "offset", off)
		if c.progress != nil {
			c.progress(end, len(image))
		}
	}

	if err := c.out(ctx, dfu.RequestDnload, block, nil); err != nil {
		return fmt.Errorf("download end: %w", err)
	}
	if err := c.waitStatus(ctx, dfu.StateIdle); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	pkg.LogInfo(pkg.ComponentHost, "download complete", "size", len(image), "blocks", block)
	return nil
}

// Upload reads up to limit bytes back from the device. A limit of zero
// reads until the device sends a short block.
func (c *Client) Upload(ctx context.Context, limit int) ([]byte, error) {
	if c.transferSize <= 0 {
		return nil, fmt.Errorf("%w: transfer size %d", pkg.ErrInvalidParameter, c.transferSize)
	}
	if err := c.Idle(ctx); err != nil {
		return nil, err
	}

	var image []byte
	buf := make([]byte, c.transferSize)
	for block := uint16(0); ; block++ {
		n, err := c.in(ctx, dfu.RequestUpload, block, buf)
		if err != nil {
			return image, fmt.Errorf("upload block %d: %w", block, err)
		}
		image = append(image, buf[:n]...)
		if c.progress != nil {
			c.progress(len(image), limit)
		}

		if n < len(buf) {
			break
		}
		if limit > 0 && len(image) >= limit {
			image = image[:limit]
			if err := c.Abort(ctx); err != nil {
				return image, err
			}
			break
		}
	}

	pkg.LogInfo(pkg.ComponentHost, "upload complete", "size", len(image))
	return image, nil
}
