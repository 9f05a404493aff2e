// Command dfuload downloads a firmware image to a DFU device on a FIFO bus,
// or uploads the device's application region to a file.
//
// Usage:
//
//	dfuload [options] <bus-dir> <image>
//	dfuload [options] -upload <file> <bus-dir>
//	dfuload [options] -usb vid:pid <image>
//	dfuload -key <hex> -print-digest
//
// Options:
//
//	-usb vid:pid         Use a USB device through Linux usbfs instead of a FIFO bus
//	-transfer n          Block size (default 1024)
//	-key hex             Prefix the image with a key header for this 32-byte key
//	-print-digest        Print the BLAKE2b digest of -key for dfuboot -key-digest
//	-verify              Upload the image after downloading and compare
//	-upload file         Upload the application region to file
//	-limit n             Upload at most n bytes (default: whole region)
//	-timeout duration    Overall timeout (default 2m)
//	-log format          Log format: auto, text, or json (default auto)
//	-v                   Enable verbose (debug) logging
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/term"

	"github.com/ardnew/softdfu/host/dfu"
	"github.com/ardnew/softdfu/host/hal"
	"github.com/ardnew/softdfu/host/hal/fifo"
	"github.com/ardnew/softdfu/keycheck"
	"github.com/ardnew/softdfu/pkg"
)

// interfaceReporter is implemented by HALs that discover the DFU
// interface number while connecting.
type interfaceReporter interface {
	Interface() uint8
}

// component identifies this executable for structured logging.
const component = pkg.ComponentHost

type options struct {
	usb         string
	transfer    int
	key         string
	printDigest bool
	verify      bool
	upload      string
	limit       int
	timeout     time.Duration
	logFormat   string
	verbose     bool
}

func main() {
	var opt options
	flag.StringVar(&opt.usb, "usb", "", "use a USB device (vid:pid, hex) instead of a FIFO bus")
	flag.IntVar(&opt.transfer, "transfer", dfu.DefaultTransferSize, "block size")
	flag.StringVar(&opt.key, "key", "", "firmware key (hex, 32 bytes)")
	flag.BoolVar(&opt.printDigest, "print-digest", false, "print the digest of -key and exit")
	flag.BoolVar(&opt.verify, "verify", false, "upload the image after downloading and compare")
	flag.StringVar(&opt.upload, "upload", "", "upload the application region to file")
	flag.IntVar(&opt.limit, "limit", 0, "upload at most n bytes")
	flag.DurationVar(&opt.timeout, "timeout", 2*time.Minute, "overall timeout")
	flag.StringVar(&opt.logFormat, "log", "auto", "log format: auto, text, or json")
	flag.BoolVar(&opt.verbose, "v", false, "enable verbose (debug) logging")
	flag.Parse()

	if err := setupLogging(opt); err != nil {
		pkg.LogError(component, "failed to set up logging", "error", err)
		os.Exit(2)
	}

	if err := run(opt, flag.Args()); err != nil {
		pkg.LogError(component, "dfuload failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(opt options) error {
	if opt.verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if opt.logFormat == "auto" {
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			pkg.SetLogFormat(pkg.LogFormatJSON)
		}
		return nil
	}
	format, err := pkg.ParseLogFormat(opt.logFormat)
	if err != nil {
		return err
	}
	pkg.SetLogFormat(format)
	return nil
}

func run(opt options, args []string) error {
	var key []byte
	if opt.key != "" {
		var err error
		if key, err = hex.DecodeString(opt.key); err != nil {
			return fmt.Errorf("%w: key: %v", pkg.ErrInvalidParameter, err)
		}
	}

	if opt.printDigest {
		if key == nil {
			return fmt.Errorf("%w: -print-digest needs -key", pkg.ErrInvalidParameter)
		}
		fmt.Println(keycheck.DigestOf(key))
		return nil
	}

	upload := opt.upload != ""
	want := 2
	if upload {
		want--
	}
	if opt.usb != "" {
		want--
	}
	if len(args) < want {
		return fmt.Errorf("%w: usage: dfuload [options] <bus-dir> <image>", pkg.ErrInvalidParameter)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opt.timeout)
	defer cancelTimeout()

	var h hal.HostHAL
	target := opt.usb
	if opt.usb != "" {
		var err error
		if h, err = newUSBHAL(opt.usb); err != nil {
			return err
		}
	} else {
		h = fifo.NewHostHAL(args[0])
		target = args[0]
		args = args[1:]
	}

	if err := h.Init(ctx); err != nil {
		return err
	}
	if err := h.Start(); err != nil {
		return err
	}
	defer h.Stop()

	pkg.LogInfo(component, "waiting for device", "target", target)
	if err := h.WaitForConnection(ctx); err != nil {
		return err
	}

	var iface uint16
	if r, ok := h.(interfaceReporter); ok {
		iface = uint16(r.Interface())
	}

	client := dfu.NewClient(h,
		dfu.WithTransferSize(opt.transfer),
		dfu.WithInterface(iface),
		dfu.WithProgress(func(done, total int) {
			pkg.LogDebug(component, "progress", "done", done, "total", total)
		}))

	if upload {
		image, err := client.Upload(ctx, opt.limit)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opt.upload, image, 0o644); err != nil {
			return err
		}
		pkg.LogInfo(component, "uploaded",
			"file", opt.upload,
			"size", len(image),
			"blake3", fmt.Sprintf("%x", blake3.Sum256(image)))
		return nil
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	pkg.LogInfo(component, "downloading",
		"file", args[0],
		"size", len(image),
		"blake3", fmt.Sprintf("%x", blake3.Sum256(image)))

	payload := image
	if key != nil {
		header, err := keycheck.Header(key, opt.transfer)
		if err != nil {
			return err
		}
		payload = append(header, image...)
	}

	if err := client.Download(ctx, payload); err != nil {
		return err
	}

	if !opt.verify {
		return nil
	}

	back, err := client.Upload(ctx, len(payload))
	if err != nil {
		return err
	}
	// A key header is consumed by the bootloader, so the image starts one
	// block in.
	if key != nil {
		if len(back) < opt.transfer {
			return fmt.Errorf("%w: readback of %d bytes", pkg.ErrProtocol, len(back))
		}
		back = back[opt.transfer:]
	}
	if len(back) > len(image) {
		back = back[:len(image)]
	}
	if !bytes.Equal(back, image) {
		return fmt.Errorf("verify: readback blake3 %x differs from image %x",
			blake3.Sum256(back), blake3.Sum256(image))
	}
	pkg.LogInfo(component, "verified", "size", len(image))
	return nil
}
