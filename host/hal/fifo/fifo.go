package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/pkg"
)

// Message types for FIFO protocol.
const (
	msgSetup   = 0x01 // SETUP packet
	msgData    = 0x02 // DATA packet
	msgAck     = 0x03 // ACK response
	msgNak     = 0x04 // NAK response
	msgStall   = 0x05 // STALL response
	msgReset   = 0x12 // Port reset
	msgAddress = 0x13 // Set address
)

// Connection signal bytes (one-way signaling from device).
const (
	sigConnect    = 0x01 // Device connected
	sigDisconnect = 0x00 // Device disconnected
)

// Buffer sizes.
const (
	maxPacketSize = 4096 // Largest data stage
	headerSize    = 3    // Message header size (type + length)
)

// Timing constants.
const (
	pollInterval   = 50 * time.Millisecond // Directory polling interval
	readPoll       = 100 * time.Millisecond
	DefaultTimeout = 5 * time.Second // Response timeout
)

// FIFO file names (inside each device subdirectory).
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
)

// Errors.
var (
	ErrFIFOCreate = errors.New("failed to create FIFO")
	ErrFIFOOpen   = errors.New("failed to open FIFO")
)

// deviceConn represents a connected device.
type deviceConn struct {
	dir          string   // Device subdirectory path
	hostToDevice *os.File // Host writes requests
	deviceToHost *os.File // Device writes responses
}

// HostHAL implements hal.HostHAL using named pipes.
type HostHAL struct {
	busDir  string
	timeout time.Duration

	device   *deviceConn
	deviceMu sync.Mutex

	// Internal buffers (zero-allocation pattern)
	txBuf [headerSize + 1 + hal.SetupPacketSize + maxPacketSize]byte
	rxBuf [headerSize + maxPacketSize]byte

	connectCh chan *deviceConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHostHAL creates a new FIFO-based host HAL watching busDir.
func NewHostHAL(busDir string) *HostHAL {
	return &HostHAL{
		busDir:    busDir,
		timeout:   DefaultTimeout,
		connectCh: make(chan *deviceConn, 8),
	}
}

// SetTimeout sets how long ControlTransfer waits for the device to answer.
func (h *HostHAL) SetTimeout(d time.Duration) {
	h.timeout = d
}

// Init initializes the host HAL.
func (h *HostHAL) Init(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	if err := os.MkdirAll(h.busDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFIFOCreate, err)
	}

	pkg.LogInfo(pkg.ComponentHost, "host FIFO HAL initialized", "busDir", h.busDir)
	return nil
}

// Start begins polling the bus directory for devices.
func (h *HostHAL) Start() error {
	if h.ctx == nil {
		return pkg.ErrNotConfigured
	}
	h.wg.Add(1)
	go h.pollDeviceDirectories()

	pkg.LogInfo(pkg.ComponentHost, "host FIFO HAL started")
	return nil
}

// Stop stops polling and closes the connected device.
func (h *HostHAL) Stop() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	h.deviceMu.Lock()
	if h.device != nil {
		h.device.close()
		h.device = nil
	}
	h.deviceMu.Unlock()

	pkg.LogInfo(pkg.ComponentHost, "host FIFO HAL stopped")
	return nil
}

// WaitForConnection waits for a device to connect and makes it the active
// device.
func (h *HostHAL) WaitForConnection(ctx context.Context) error {
	if h.ctx == nil {
		return pkg.ErrNotConfigured
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return pkg.ErrCancelled
	case dev := <-h.connectCh:
		h.deviceMu.Lock()
		if h.device != nil {
			h.device.close()
		}
		h.device = dev
		h.deviceMu.Unlock()

		pkg.LogInfo(pkg.ComponentHost, "device connected", "dir", dev.dir)
		return nil
	}
}

// ControlTransfer sends a SETUP packet, with data for OUT requests, and
// waits for the device's answer.
func (h *HostHAL) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
	h.deviceMu.Lock()
	defer h.deviceMu.Unlock()

	if h.device == nil {
		return 0, pkg.ErrNotConnected
	}

	isIn := setup.IsIn()
	if !isIn && len(data) > maxPacketSize {
		return 0, pkg.ErrBufferTooSmall
	}

	// Build message: header + address + setup packet (+ data for OUT transfers)
	h.txBuf[0] = msgSetup
	h.txBuf[headerSize] = byte(addr)
	setup.MarshalTo(h.txBuf[headerSize+1:])

	payloadLen := 1 + hal.SetupPacketSize
	if !isIn {
		payloadLen += copy(h.txBuf[headerSize+payloadLen:], data)
	}
	binary.LittleEndian.PutUint16(h.txBuf[1:3], uint16(payloadLen))

	if err := writeAll(h.device.hostToDevice, h.txBuf[:headerSize+payloadLen]); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	header := h.rxBuf[:headerSize]
	if err := h.readFull(ctx, deadline, header); err != nil {
		return 0, err
	}
	respLen := int(binary.LittleEndian.Uint16(header[1:3]))
	if headerSize+respLen > len(h.rxBuf) {
		return 0, pkg.ErrProtocol
	}
	payload := h.rxBuf[headerSize : headerSize+respLen]
	if err := h.readFull(ctx, deadline, payload); err != nil {
		return 0, err
	}

	switch header[0] {
	case msgData:
		if !isIn {
			return 0, pkg.ErrProtocol
		}
		if respLen > len(data) {
			return 0, pkg.ErrBufferTooSmall
		}
		return copy(data, payload), nil

	case msgAck:
		if isIn {
			return 0, nil
		}
		return len(data), nil

	case msgStall:
		return 0, pkg.ErrStall

	default:
		return 0, pkg.ErrProtocol
	}
}

// readFull reads len(buf) bytes from the device before deadline.
func (h *HostHAL) readFull(ctx context.Context, deadline time.Time, buf []byte) error {
	f := h.device.deviceToHost
	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return pkg.ErrTimeout
		}
		f.SetReadDeadline(time.Now().Add(readPoll))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// pollDeviceDirectories polls the bus directory for new device subdirectories.
func (h *HostHAL) pollDeviceDirectories() {
	defer h.wg.Done()

	knownDirs := make(map[string]bool)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := os.ReadDir(h.busDir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "device-") {
				continue
			}

			dirPath := filepath.Join(h.busDir, entry.Name())
			if knownDirs[dirPath] {
				continue
			}
			if _, err := os.Stat(filepath.Join(dirPath, fifoConnection)); err != nil {
				continue
			}

			knownDirs[dirPath] = true
			h.wg.Add(1)
			go h.handleDeviceDirectory(dirPath)
		}

		for dir := range knownDirs {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				delete(knownDirs, dir)
			}
		}
	}
}

// handleDeviceDirectory waits for a device's connection signal and opens
// its control pipes.
func (h *HostHAL) handleDeviceDirectory(dirPath string) {
	defer h.wg.Done()

	pkg.LogDebug(pkg.ComponentHost, "monitoring device directory", "dir", dirPath)

	connPath := filepath.Join(dirPath, fifoConnection)
	connFile, err := os.OpenFile(connPath, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		pkg.LogWarn(pkg.ComponentHost, "failed to open connection FIFO", "path", connPath, "error", err)
		return
	}
	defer connFile.Close()

	var buf [1]byte
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}

		connFile.SetReadDeadline(time.Now().Add(readPoll))
		n, err := connFile.Read(buf[:])
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		switch buf[0] {
		case sigConnect:
			dev, err := openDevice(dirPath)
			if err != nil {
				pkg.LogWarn(pkg.ComponentHost, "failed to open device FIFOs", "dir", dirPath, "error", err)
				continue
			}
			select {
			case h.connectCh <- dev:
			case <-h.ctx.Done():
				dev.close()
				return
			}

		case sigDisconnect:
			pkg.LogInfo(pkg.ComponentHost, "device disconnected", "dir", dirPath)
			return
		}
	}
}

// openDevice opens the control pipes of the device in dirPath.
func openDevice(dirPath string) (*deviceConn, error) {
	dev := &deviceConn{dir: dirPath}

	var err error
	dev.hostToDevice, err = os.OpenFile(
		filepath.Join(dirPath, fifoHostToDevice),
		os.O_WRONLY|unix.O_NONBLOCK,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFIFOOpen, fifoHostToDevice, err)
	}

	dev.deviceToHost, err = os.OpenFile(
		filepath.Join(dirPath, fifoDeviceToHost),
		os.O_RDONLY|unix.O_NONBLOCK,
		0,
	)
	if err != nil {
		dev.hostToDevice.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrFIFOOpen, fifoDeviceToHost, err)
	}

	return dev, nil
}

func (d *deviceConn) close() {
	if d.hostToDevice != nil {
		d.hostToDevice.Close()
	}
	if d.deviceToHost != nil {
		d.deviceToHost.Close()
	}
}

// writeAll writes buf to f, retrying short writes.
func writeAll(f *os.File, buf []byte) error {
	for len(buf) > 0 {
		n, err := f.Write(buf)
		buf = buf[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

// Compile-time interface check
var _ hal.HostHAL = (*HostHAL)(nil)
