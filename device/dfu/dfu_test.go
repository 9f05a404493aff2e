package dfu

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/softdfu/device/hal"
	"github.com/ardnew/softdfu/pkg"
)

// response kinds recorded by mockHAL
const (
	respData = iota
	respAck
	respStall
)

type response struct {
	kind int
	data []byte
}

type request struct {
	setup hal.SetupPacket
	data  []byte
	err   error
}

// mockHAL implements hal.DeviceHAL for testing.
type mockHAL struct {
	initCalled  bool
	startCalled bool
	stopCalled  bool

	requests  chan request
	outData   []byte
	responses []response
	mutex     sync.Mutex
}

func newMockHAL() *mockHAL {
	return &mockHAL{
		requests: make(chan request, 16),
	}
}

func (m *mockHAL) Init(ctx context.Context) error {
	m.initCalled = true
	return nil
}

func (m *mockHAL) Start() error {
	m.startCalled = true
	return nil
}

func (m *mockHAL) Stop() error {
	m.stopCalled = true
	return nil
}

func (m *mockHAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-m.requests:
		if r.err != nil {
			return r.err
		}
		*out = r.setup
		m.outData = r.data
		return nil
	}
}

func (m *mockHAL) WriteEP0(ctx context.Context, data []byte) error {
	m.record(respData, data)
	return nil
}

func (m *mockHAL) ReadEP0(ctx context.Context, buf []byte) (int, error) {
	n := copy(buf, m.outData)
	m.outData = nil
	return n, nil
}

func (m *mockHAL) StallEP0() error {
	m.record(respStall, nil)
	return nil
}

func (m *mockHAL) AckEP0() error {
	m.record(respAck, nil)
	return nil
}

func (m *mockHAL) IsConnected() bool {
	return true
}

func (m *mockHAL) WaitConnect(ctx context.Context) error {
	return nil
}

func (m *mockHAL) record(kind int, data []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.responses = append(m.responses, response{kind: kind, data: append([]byte(nil), data...)})
}

func (m *mockHAL) last() response {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.responses) == 0 {
		return response{kind: -1}
	}
	return m.responses[len(m.responses)-1]
}

// memHandler is a Handler over an in-memory image.
type memHandler struct {
	chunk   int
	image   []byte
	staging []byte
	writes  []int // offsets passed to FinishWrite with nonzero length

	failFinish Status
}

func newMemHandler(chunk int, image []byte) *memHandler {
	return &memHandler{
		chunk:   chunk,
		image:   image,
		staging: make([]byte, chunk),
	}
}

func (h *memHandler) PrepareRead(off int) (Status, []byte) {
	if off >= len(h.image) {
		return StatusOK, nil
	}
	end := min(off+h.chunk, len(h.image))
	return StatusOK, h.image[off:end]
}

func (h *memHandler) PrepareWrite(off, length int) (Status, []byte) {
	if length > len(h.staging) {
		return StatusErrAddress, nil
	}
	return StatusOK, h.staging[:length]
}

func (h *memHandler) FinishWrite(buf []byte, off, length int) Status {
	if length == 0 {
		return StatusOK
	}
	if h.failFinish != StatusOK {
		return h.failFinish
	}
	h.writes = append(h.writes, off)
	if need := off + length; need > len(h.image) {
		h.image = append(h.image, make([]byte, need-len(h.image))...)
	}
	copy(h.image[off:], buf[:length])
	return StatusOK
}

func dnload(data []byte) request {
	return request{
		setup: hal.SetupPacket{RequestType: RequestTypeOut, Request: RequestDnload, Length: uint16(len(data))},
		data:  data,
	}
}

func upload(length int) request {
	return request{
		setup: hal.SetupPacket{RequestType: RequestTypeIn, Request: RequestUpload, Length: uint16(length)},
	}
}

func classIn(req uint8, length int) request {
	return request{
		setup: hal.SetupPacket{RequestType: RequestTypeIn, Request: req, Length: uint16(length)},
	}
}

func classOut(req uint8) request {
	return request{
		setup: hal.SetupPacket{RequestType: RequestTypeOut, Request: req},
	}
}

func getStatus() request {
	return classIn(RequestGetStatus, StatusResponseSize)
}

// poll delivers r to the engine and returns the response it produced.
func poll(t *testing.T, e *Engine, m *mockHAL, r request) response {
	t.Helper()
	m.requests <- r
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	return m.last()
}

func checkStatus(t *testing.T, resp response, status Status, state State) {
	t.Helper()
	if resp.kind != respData || len(resp.data) != StatusResponseSize {
		t.Fatalf("GETSTATUS response = %+v, want %d data bytes", resp, StatusResponseSize)
	}
	if got := Status(resp.data[0]); got != status {
		t.Errorf("bStatus = %s, want %s", got, status)
	}
	if got := State(resp.data[4]); got != state {
		t.Errorf("bState = %s, want %s", got, state)
	}
}

func TestEngineStartStop(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil))

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.initCalled || !m.startCalled {
		t.Error("Start() did not init and start the HAL")
	}
	if err := e.Start(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !m.stopCalled {
		t.Error("Stop() did not stop the HAL")
	}
	if e.State() != StateIdle {
		t.Errorf("State() = %s, want dfuIDLE", e.State())
	}
}

func TestDownload(t *testing.T) {
	m := newMockHAL()
	h := newMemHandler(4, nil)
	var manifested int
	e := New(m, h, WithManifest(func(size int) { manifested = size }))

	if r := poll(t, e, m, dnload([]byte{1, 2, 3, 4})); r.kind != respAck {
		t.Fatalf("DNLOAD response kind = %d, want ack", r.kind)
	}
	if e.State() != StateDnloadSync {
		t.Fatalf("State() = %s, want dfuDNLOAD-SYNC", e.State())
	}
	checkStatus(t, poll(t, e, m, getStatus()), StatusOK, StateDnloadIdle)

	poll(t, e, m, dnload([]byte{5, 6}))
	checkStatus(t, poll(t, e, m, getStatus()), StatusOK, StateDnloadIdle)
	if e.Offset() != 6 {
		t.Errorf("Offset() = %d, want 6", e.Offset())
	}

	poll(t, e, m, dnload(nil))
	if e.State() != StateManifestSync {
		t.Fatalf("State() = %s, want dfuMANIFEST-SYNC", e.State())
	}
	checkStatus(t, poll(t, e, m, getStatus()), StatusOK, StateIdle)

	if manifested != 6 {
		t.Errorf("manifest size = %d, want 6", manifested)
	}
	if !bytes.Equal(h.image, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("image = %v", h.image)
	}
	if len(h.writes) != 2 || h.writes[0] != 0 || h.writes[1] != 4 {
		t.Errorf("write offsets = %v, want [0 4]", h.writes)
	}
}

func TestDownloadRestartResetsOffset(t *testing.T) {
	m := newMockHAL()
	h := newMemHandler(4, nil)
	e := New(m, h)

	poll(t, e, m, dnload([]byte{1, 2, 3, 4}))
	poll(t, e, m, getStatus())
	poll(t, e, m, classOut(RequestAbort))
	if e.State() != StateIdle {
		t.Fatalf("State() after ABORT = %s, want dfuIDLE", e.State())
	}

	poll(t, e, m, dnload([]byte{9, 9, 9, 9}))
	poll(t, e, m, getStatus())
	if len(h.writes) != 2 || h.writes[1] != 0 {
		t.Errorf("write offsets = %v, want [0 0]", h.writes)
	}
}

func TestDownloadZeroLengthFromIdle(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil))

	if r := poll(t, e, m, dnload(nil)); r.kind != respStall {
		t.Fatalf("response kind = %d, want stall", r.kind)
	}
	checkStatus(t, poll(t, e, m, getStatus()), StatusErrNotDone, StateError)

	if r := poll(t, e, m, classOut(RequestClrStatus)); r.kind != respAck {
		t.Fatalf("CLRSTATUS response kind = %d, want ack", r.kind)
	}
	checkStatus(t, poll(t, e, m, getStatus()), StatusOK, StateIdle)
}

func TestDownloadErrors(t *testing.T) {
	tests := []struct {
		name   string
		chunk  int
		data   []byte
		fail   Status
		status Status
		stall  bool
	}{
		{
			name:   "prepare rejects oversize block",
			chunk:  2,
			data:   []byte{1, 2, 3},
			status: StatusErrAddress,
			stall:  true,
		},
		{
			name:   "finish rejects block",
			chunk:  4,
			data:   []byte{1, 2, 3, 4},
			fail:   StatusErrFile,
			status: StatusErrFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockHAL()
			h := newMemHandler(tt.chunk, nil)
			h.failFinish = tt.fail
			e := New(m, h)

			r := poll(t, e, m, dnload(tt.data))
			if (r.kind == respStall) != tt.stall {
				t.Errorf("DNLOAD stalled = %v, want %v", r.kind == respStall, tt.stall)
			}
			checkStatus(t, poll(t, e, m, getStatus()), tt.status, StateError)

			if r := poll(t, e, m, dnload(tt.data)); r.kind != respStall {
				t.Error("DNLOAD in dfuERROR was not stalled")
			}
		})
	}
}

func TestDownloadShortDataStage(t *testing.T) {
	m := newMockHAL()
	h := newMemHandler(4, nil)
	e := New(m, h)

	// wLength announces a full block but the host sends less.
	req := dnload([]byte{1, 2})
	req.setup.Length = 4
	if r := poll(t, e, m, req); r.kind != respStall {
		t.Fatalf("DNLOAD response kind = %d, want stall", r.kind)
	}
	checkStatus(t, poll(t, e, m, getStatus()), StatusErrAddress, StateError)
	if len(h.writes) != 0 {
		t.Errorf("write offsets = %v, want none", h.writes)
	}
	if e.Offset() != 0 {
		t.Errorf("Offset() = %d, want 0", e.Offset())
	}
}

func TestUpload(t *testing.T) {
	m := newMockHAL()
	image := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	e := New(m, newMemHandler(4, image))

	var got []byte
	for i := 0; i < 3; i++ {
		r := poll(t, e, m, upload(4))
		if r.kind != respData {
			t.Fatalf("UPLOAD %d response kind = %d, want data", i, r.kind)
		}
		got = append(got, r.data...)
	}
	if !bytes.Equal(got, image) {
		t.Errorf("uploaded = %v, want %v", got, image)
	}
	if e.State() != StateIdle {
		t.Errorf("State() after short block = %s, want dfuIDLE", e.State())
	}

	// A new upload starts again from the beginning.
	if r := poll(t, e, m, upload(4)); !bytes.Equal(r.data, image[:4]) {
		t.Errorf("restarted upload = %v, want %v", r.data, image[:4])
	}
}

func TestUploadDuringDownload(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, make([]byte, 8)))

	poll(t, e, m, dnload([]byte{1, 2, 3, 4}))
	poll(t, e, m, getStatus())
	if r := poll(t, e, m, upload(4)); r.kind != respStall {
		t.Fatalf("response kind = %d, want stall", r.kind)
	}
	if e.Status() != StatusErrStalledPacket {
		t.Errorf("Status() = %s, want errSTALLEDPKT", e.Status())
	}
}

func TestGetState(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil))

	poll(t, e, m, dnload([]byte{1, 2, 3, 4}))
	r := poll(t, e, m, classIn(RequestGetState, 1))
	if r.kind != respData || len(r.data) != 1 || State(r.data[0]) != StateDnloadSync {
		t.Errorf("GETSTATE response = %+v, want [%d]", r, StateDnloadSync)
	}
}

func TestPollTimeoutReported(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil), WithPollTimeout(0x012345*time.Millisecond))

	r := poll(t, e, m, getStatus())
	if r.data[1] != 0x45 || r.data[2] != 0x23 || r.data[3] != 0x01 {
		t.Errorf("bwPollTimeout = % x, want 45 23 01", r.data[1:4])
	}
}

func TestDetach(t *testing.T) {
	m := newMockHAL()
	detached := false
	e := New(m, newMemHandler(4, nil), WithDetach(func() { detached = true }))

	if r := poll(t, e, m, classOut(RequestDetach)); r.kind != respAck {
		t.Fatalf("response kind = %d, want ack", r.kind)
	}
	if !detached {
		t.Error("detach callback not called")
	}
}

func TestUnsupportedRequest(t *testing.T) {
	tests := []struct {
		name string
		req  request
	}{
		{"standard request", request{setup: hal.SetupPacket{RequestType: 0x80, Request: 0x06, Length: 18}}},
		{"unknown class request", classOut(0x7F)},
		{"upload with OUT direction", classOut(RequestUpload)},
		{"clear status outside error", classOut(RequestClrStatus)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockHAL()
			e := New(m, newMemHandler(4, nil))

			if r := poll(t, e, m, tt.req); r.kind != respStall {
				t.Errorf("response kind = %d, want stall", r.kind)
			}
			if e.State() != StateError {
				t.Errorf("State() = %s, want dfuERROR", e.State())
			}
		})
	}
}

func TestBusReset(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil))

	poll(t, e, m, dnload([]byte{1, 2, 3, 4}))
	m.requests <- request{err: pkg.ErrReset}
	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if e.State() != StateIdle || e.Offset() != 0 {
		t.Errorf("after reset: state %s offset %d, want dfuIDLE 0", e.State(), e.Offset())
	}
}

func TestPollNoRequest(t *testing.T) {
	m := newMockHAL()
	e := New(m, newMemHandler(4, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.Poll(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Poll() error = %v, want DeadlineExceeded", err)
	}
}

func TestRunCallsIdle(t *testing.T) {
	m := newMockHAL()
	idle := make(chan struct{}, 1)
	e := New(m, newMemHandler(4, nil), WithIdle(5*time.Millisecond, func() {
		select {
		case idle <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("idle hook not called")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "OK"},
		{StatusErrFile, "errFILE"},
		{StatusErrAddress, "errADDRESS"},
		{StatusErrStalledPacket, "errSTALLEDPKT"},
		{Status(0x42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}

	if got := StateManifestSync.String(); got != "dfuMANIFEST-SYNC" {
		t.Errorf("StateManifestSync.String() = %q", got)
	}
	if got := State(99).String(); got != "UNKNOWN" {
		t.Errorf("State(99).String() = %q", got)
	}
}
