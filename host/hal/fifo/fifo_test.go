package fifo_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softdfu/device/dfu"
	devfifo "github.com/ardnew/softdfu/device/hal/fifo"
	hostdfu "github.com/ardnew/softdfu/host/dfu"
	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/host/hal/fifo"
	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/platform/sim"
	"github.com/ardnew/softdfu/region"
	"github.com/ardnew/softdfu/transfer"
)

const (
	testBase  = 0x10000
	testChunk = 256
	testSize  = 16 * testChunk
)

// startDevice runs a DFU engine on a FIFO device HAL in busDir.
func startDevice(t *testing.T, busDir string) (*sim.Chip, *devfifo.HAL) {
	t.Helper()

	r, err := region.New(testBase, testBase+testSize-1, testChunk)
	if err != nil {
		t.Fatal(err)
	}
	chip := sim.NewForRegion(r)
	dev := devfifo.New(busDir)
	engine := dfu.New(dev, transfer.New(r, chip, nil),
		dfu.WithIdle(10*time.Millisecond, chip.FeedWatchdog))

	ctx, cancel := context.WithCancel(context.Background())
	if err := engine.Start(ctx); err != nil {
		cancel()
		t.Fatalf("engine Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		engine.Stop()
	})

	return chip, dev
}

// connectHost starts a host HAL on busDir and waits for the device.
func connectHost(t *testing.T, busDir string) *fifo.HostHAL {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := fifo.NewHostHAL(busDir)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { h.Stop() })

	if err := h.WaitForConnection(ctx); err != nil {
		t.Fatalf("WaitForConnection() error = %v", err)
	}
	return h
}

func TestDownloadOverFIFO(t *testing.T) {
	busDir := t.TempDir()
	chip, dev := startDevice(t, busDir)
	h := connectHost(t, busDir)

	if dev.DeviceDir() == "" || dev.UUID() == "" {
		t.Error("device directory not created")
	}

	image := make([]byte, 5*testChunk+17)
	for i := range image {
		image[i] = byte(i ^ 0x5A)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := hostdfu.NewClient(h, hostdfu.WithTransferSize(testChunk))
	if err := client.Download(ctx, image); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if got := chip.Snapshot()[:len(image)]; !bytes.Equal(got, image) {
		t.Error("flash does not hold the image")
	}

	back, err := client.Upload(ctx, len(image))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !bytes.Equal(back, image) {
		t.Error("uploaded image differs")
	}
	if chip.Feeds() == 0 {
		t.Error("watchdog never fed while serving requests")
	}
}

func TestStallOverFIFO(t *testing.T) {
	busDir := t.TempDir()
	startDevice(t, busDir)
	h := connectHost(t, busDir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Zero-length DNLOAD from dfuIDLE is a protocol error.
	setup := hal.SetupPacket{RequestType: dfu.RequestTypeOut, Request: dfu.RequestDnload}
	if _, err := h.ControlTransfer(ctx, 0, &setup, nil); !errors.Is(err, pkg.ErrStall) {
		t.Fatalf("ControlTransfer() error = %v, want ErrStall", err)
	}

	client := hostdfu.NewClient(h)
	st, err := client.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Status != dfu.StatusErrNotDone || st.State != dfu.StateError {
		t.Errorf("GetStatus() = %+v", st)
	}
}

func TestControlTransferNotConnected(t *testing.T) {
	h := fifo.NewHostHAL(t.TempDir())
	setup := hal.SetupPacket{RequestType: dfu.RequestTypeIn, Request: dfu.RequestGetState, Length: 1}
	var buf [1]byte
	if _, err := h.ControlTransfer(context.Background(), 0, &setup, buf[:]); !errors.Is(err, pkg.ErrNotConnected) {
		t.Errorf("ControlTransfer() error = %v, want ErrNotConnected", err)
	}
	if err := h.WaitForConnection(context.Background()); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("WaitForConnection() before Init error = %v", err)
	}
}
