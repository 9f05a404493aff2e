package fifo

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softdfu/device/hal"
	"github.com/ardnew/softdfu/pkg"
)

// MaxPacketSize is the largest data stage carried in one message.
const MaxPacketSize = 4096

// Message types for FIFO protocol (must match host HAL).
const (
	msgSetup   = 0x01 // SETUP packet from host
	msgData    = 0x02 // DATA packet
	msgAck     = 0x03 // ACK response
	msgNak     = 0x04 // NAK response
	msgStall   = 0x05 // STALL response
	msgReset   = 0x12 // Port reset
	msgAddress = 0x13 // Set address
)

// Header size for messages.
const headerSize = 3 // type (1) + length (2)

// Connection signal bytes (one-way signaling to host).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// FIFO file names.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// readPoll bounds each blocking read so cancellation is observed.
const readPoll = 100 * time.Millisecond

// HAL implements hal.DeviceHAL using named pipes (FIFOs).
type HAL struct {
	// Bus directory (root directory shared with host)
	busDir string

	// Device subdirectory (busDir/device-{uuid}/)
	deviceDir string
	uuid      string

	hostToDeviceRead  *os.File // Device reads requests from host
	deviceToHostWrite *os.File // Device writes responses to host
	connectionWrite   *os.File // Device signals connection status

	connected uint32 // Atomic: 1 = connected, 0 = disconnected
	address   uint8

	mutex     sync.RWMutex
	initDone  bool
	connectCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	// Internal buffers (zero-allocation)
	readBuf  [headerSize + 1 + hal.SetupPacketSize + MaxPacketSize]byte
	writeBuf [headerSize + MaxPacketSize]byte

	// OUT data stage of the last SETUP, consumed by ReadEP0
	outData []byte
}

// New creates a new FIFO-based device HAL.
// The busDir parameter specifies the root bus directory shared with the host.
// The device will create its own subdirectory (device-{uuid}/) inside busDir.
func New(busDir string) *HAL {
	return &HAL{
		busDir:    busDir,
		connectCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
}

// Init initializes the HAL by creating the device subdirectory and FIFO files.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}

	h.uuid = uuid.NewString()
	h.deviceDir = filepath.Join(h.busDir, "device-"+h.uuid)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection} {
		if err := h.createFIFO(name); err != nil {
			h.cleanup()
			return err
		}
	}

	// O_RDWR keeps each open from blocking until the host attaches.
	var err error
	if h.connectionWrite, err = h.openFIFO(fifoConnection); err != nil {
		h.cleanup()
		return err
	}
	if h.deviceToHostWrite, err = h.openFIFO(fifoDeviceToHost); err != nil {
		h.cleanup()
		return err
	}
	if h.hostToDeviceRead, err = h.openFIFO(fifoHostToDevice); err != nil {
		h.cleanup()
		return err
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir,
		"uuid", h.uuid)

	return nil
}

// Start enables the HAL and signals connection to host.
func (h *HAL) Start() error {
	h.mutex.RLock()
	if !h.initDone {
		h.mutex.RUnlock()
		return pkg.ErrNotConfigured
	}
	conn := h.connectionWrite
	h.mutex.RUnlock()

	if _, err := conn.Write([]byte{sigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}

	atomic.StoreUint32(&h.connected, 1)

	select {
	case h.connectCh <- struct{}{}:
	default:
	}

	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL started")
	return nil
}

// Stop signals disconnection, closes the FIFOs, and removes the device
// directory.
func (h *HAL) Stop() error {
	h.mutex.RLock()
	if h.connectionWrite != nil {
		h.connectionWrite.Write([]byte{sigDisconnect})
	}
	h.mutex.RUnlock()

	atomic.StoreUint32(&h.connected, 0)

	h.closeOnce.Do(func() {
		close(h.closeCh)
	})

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.cleanup()

	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL stopped")
	return nil
}

// cleanup closes all FIFOs and removes the device directory.
func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDeviceRead, &h.deviceToHostWrite, &h.connectionWrite} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// ReadSetup reads the next SETUP packet from the host. Any OUT data stage
// carried with it is held for ReadEP0.
func (h *HAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	h.mutex.RLock()
	f := h.hostToDeviceRead
	h.mutex.RUnlock()

	if f == nil {
		return pkg.ErrNotConfigured
	}

	for {
		header := h.readBuf[:headerSize]
		if _, err := h.readWithContext(ctx, f, header); err != nil {
			return err
		}

		msgType := header[0]
		msgLen := int(binary.LittleEndian.Uint16(header[1:3]))
		if headerSize+msgLen > len(h.readBuf) {
			return fmt.Errorf("%w: message length %d", pkg.ErrProtocol, msgLen)
		}

		// A started message is always read to the end so the pipe stays
		// in sync.
		payload := h.readBuf[headerSize : headerSize+msgLen]
		if msgLen > 0 {
			if _, err := h.readWithContext(context.WithoutCancel(ctx), f, payload); err != nil {
				return err
			}
		}

		switch msgType {
		case msgSetup:
			// Payload: [address, setup_packet(8), optional_data...]
			if msgLen < 1+hal.SetupPacketSize {
				return pkg.ErrSetupPacketTooShort
			}
			if !hal.ParseSetupPacket(payload[1:1+hal.SetupPacketSize], out) {
				return pkg.ErrSetupPacketTooShort
			}
			h.outData = payload[1+hal.SetupPacketSize:]

			pkg.LogDebug(pkg.ComponentHAL, "setup received",
				"reqType", out.RequestType,
				"req", out.Request,
				"value", out.Value,
				"index", out.Index,
				"length", out.Length,
				"data", len(h.outData))
			return nil

		case msgReset:
			h.sendMessage(ctx, msgAck, nil)
			pkg.LogDebug(pkg.ComponentHAL, "port reset received")
			return pkg.ErrReset

		case msgAddress:
			if msgLen >= 1 {
				h.mutex.Lock()
				h.address = payload[0]
				h.mutex.Unlock()
				h.sendMessage(ctx, msgAck, nil)
				pkg.LogDebug(pkg.ComponentHAL, "address set", "address", payload[0])
			}
			continue

		default:
			pkg.LogWarn(pkg.ComponentHAL, "unexpected message on EP0", "type", msgType)
			continue
		}
	}
}

// WriteEP0 sends the data stage of an IN request.
func (h *HAL) WriteEP0(ctx context.Context, data []byte) error {
	if len(data) > MaxPacketSize {
		return pkg.ErrBufferTooSmall
	}
	return h.sendMessage(ctx, msgData, data)
}

// ReadEP0 copies the OUT data stage that arrived with the last SETUP packet
// into buf.
func (h *HAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	if len(h.outData) > len(buf) {
		return 0, pkg.ErrBufferTooSmall
	}
	n := copy(buf, h.outData)
	h.outData = nil
	return n, nil
}

// StallEP0 rejects the current request.
func (h *HAL) StallEP0() error {
	pkg.LogDebug(pkg.ComponentHAL, "EP0 stalled")
	return h.sendMessage(context.Background(), msgStall, nil)
}

// AckEP0 completes the current request with a zero-length status stage.
func (h *HAL) AckEP0() error {
	return h.sendMessage(context.Background(), msgAck, nil)
}

// IsConnected returns true if connected to a host.
func (h *HAL) IsConnected() bool {
	return atomic.LoadUint32(&h.connected) == 1
}

// WaitConnect blocks until connected or context is cancelled.
func (h *HAL) WaitConnect(ctx context.Context) error {
	if h.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.connectCh:
		return nil
	case <-h.closeCh:
		return pkg.ErrCancelled
	}
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.uuid
}

// Address returns the bus address last assigned by the host.
func (h *HAL) Address() uint8 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.address
}

// createFIFO creates a named pipe in the device directory.
func (h *HAL) createFIFO(name string) error {
	path := filepath.Join(h.deviceDir, name)

	os.Remove(path)

	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe for non-blocking reads and writes.
func (h *HAL) openFIFO(name string) (*os.File, error) {
	path := filepath.Join(h.deviceDir, name)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readWithContext reads exactly len(buf) bytes from a file with context
// cancellation support.
func (h *HAL) readWithContext(ctx context.Context, f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-h.closeCh:
			return total, pkg.ErrCancelled
		default:
		}

		f.SetReadDeadline(time.Now().Add(readPoll))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// sendMessage sends a protocol message with header [type, len_lo, len_hi, data...].
func (h *HAL) sendMessage(ctx context.Context, msgType byte, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closeCh:
		return pkg.ErrCancelled
	default:
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	f := h.deviceToHostWrite
	if f == nil {
		return pkg.ErrNotConfigured
	}

	n := len(data)
	buf := h.writeBuf[:headerSize+n]
	buf[0] = msgType
	binary.LittleEndian.PutUint16(buf[1:3], uint16(n))
	copy(buf[headerSize:], data)

	written := 0
	for written < len(buf) {
		m, err := f.Write(buf[written:])
		written += m
		if err != nil {
			return err
		}
	}
	return nil
}

// Compile-time interface check
var _ hal.DeviceHAL = (*HAL)(nil)
