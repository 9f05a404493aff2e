// Command dfuboot runs the bootloader on a simulated chip.
//
// It makes the boot decision from the simulated reset cause, flash, and
// backup memory, and in update mode serves DFU requests over a FIFO bus
// until interrupted. With -store the chip's flash and backup memory
// persist across runs, so successive invocations behave like successive
// resets of one board.
//
// Usage:
//
//	dfuboot [options] <bus-dir>
//
// Options:
//
//	-start addr          First address of the application region (default 0x4000)
//	-end addr            Last address of the application region (default 0x3ffff)
//	-chunk n             Transfer chunk size (default 1024)
//	-cause list          Reset cause flags, e.g. "pin" or "power-on|watchdog"
//	-store path          Persist flash and backup memory in a bolt database
//	-key-digest hex      Accept images keyed with the key of this BLAKE2b digest
//	-require-key         Reject images without a key header
//	-watchdog duration   Watchdog timeout armed before the jump (default 1s)
//	-console tty         Write logs to a serial console
//	-baud n              Console baud rate (default 115200)
//	-log format          Log format: auto, text, or json (default auto)
//	-v                   Enable verbose (debug) logging
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/term"
	"github.com/zeebo/blake3"
	xterm "golang.org/x/term"

	"github.com/ardnew/softdfu/boot"
	"github.com/ardnew/softdfu/device/dfu"
	"github.com/ardnew/softdfu/device/hal/fifo"
	"github.com/ardnew/softdfu/keycheck"
	"github.com/ardnew/softdfu/platform"
	"github.com/ardnew/softdfu/platform/sim"
	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/region"
	"github.com/ardnew/softdfu/transfer"
)

// component identifies this executable for structured logging.
const component = pkg.ComponentBoot

type options struct {
	start      uint64
	end        uint64
	chunk      int
	cause      string
	store      string
	keyDigest  string
	requireKey bool
	watchdog   time.Duration
	console    string
	baud       int
	logFormat  string
	verbose    bool
}

func main() {
	var opt options
	flag.Uint64Var(&opt.start, "start", 0x4000, "first address of the application region")
	flag.Uint64Var(&opt.end, "end", 0x3FFFF, "last address of the application region")
	flag.IntVar(&opt.chunk, "chunk", 1024, "transfer chunk size")
	flag.StringVar(&opt.cause, "cause", "power-on", "reset cause flags")
	flag.StringVar(&opt.store, "store", "", "persist flash and backup memory in a bolt database")
	flag.StringVar(&opt.keyDigest, "key-digest", "", "BLAKE2b-256 digest of the firmware key (hex)")
	flag.BoolVar(&opt.requireKey, "require-key", false, "reject images without a key header")
	flag.DurationVar(&opt.watchdog, "watchdog", boot.DefaultWatchdogTimeout, "watchdog timeout armed before the jump")
	flag.StringVar(&opt.console, "console", "", "write logs to a serial console")
	flag.IntVar(&opt.baud, "baud", 115200, "console baud rate")
	flag.StringVar(&opt.logFormat, "log", "auto", "log format: auto, text, or json")
	flag.BoolVar(&opt.verbose, "v", false, "enable verbose (debug) logging")
	flag.Parse()

	if flag.NArg() < 1 {
		pkg.LogError(component, "missing bus directory argument",
			"usage", "dfuboot [options] <bus-dir>")
		os.Exit(2)
	}

	closeLog, err := setupLogging(opt)
	if err != nil {
		pkg.LogError(component, "failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(opt, flag.Arg(0)); err != nil {
		pkg.LogError(component, "bootloader failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging selects the log level, format, and destination.
func setupLogging(opt options) (func(), error) {
	if opt.verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	isTerminal := xterm.IsTerminal(int(os.Stderr.Fd()))

	if opt.console != "" {
		t, err := term.Open(opt.console, term.Speed(opt.baud), term.RawMode)
		if err != nil {
			return nil, fmt.Errorf("open console %s: %w", opt.console, err)
		}
		w = t
		closer = func() { t.Close() }
		isTerminal = true
	}

	format := pkg.LogFormatText
	switch opt.logFormat {
	case "auto":
		if !isTerminal {
			format = pkg.LogFormatJSON
		}
	default:
		f, err := pkg.ParseLogFormat(opt.logFormat)
		if err != nil {
			closer()
			return nil, err
		}
		format = f
	}

	pkg.SetLogOutput(w, format)
	return closer, nil
}

func run(opt options, busDir string) error {
	r, err := region.New(uintptr(opt.start), uintptr(opt.end), opt.chunk)
	if err != nil {
		return err
	}

	cause, ok := platform.ParseResetCause(opt.cause)
	if !ok {
		return fmt.Errorf("%w: reset cause %q", pkg.ErrInvalidParameter, opt.cause)
	}

	validator, err := newValidator(opt)
	if err != nil {
		return err
	}

	chip := sim.NewForRegion(r, sim.WithResetCause(cause))

	var store *sim.Store
	if opt.store != "" {
		if store, err = sim.OpenStore(opt.store); err != nil {
			return err
		}
		defer store.Close()
		if err := store.Load(chip); err != nil {
			return err
		}
	}
	save := func() {
		if store == nil {
			return
		}
		if err := store.Save(chip); err != nil {
			pkg.LogError(component, "failed to save chip state", "error", err)
		}
	}

	pkg.LogInfo(component, "bootloader starting",
		"region", r.String(),
		"cause", cause.String())

	if boot.Run(chip, r, boot.WithWatchdogTimeout(opt.watchdog)) == boot.ModeApplication {
		sp, pc, _ := chip.Jumped()
		pkg.LogInfo(component, "application started",
			"sp", fmt.Sprintf("0x%08x", sp),
			"pc", fmt.Sprintf("0x%08x", pc),
			"blake3", digest(chip, r, int(r.Size())))
		save()
		return nil
	}
	save()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hal := fifo.New(busDir)
	tc := transfer.New(r, chip, validator)
	engine := dfu.New(hal, tc,
		dfu.WithIdle(dfu.DefaultIdleInterval, chip.FeedWatchdog),
		dfu.WithManifest(func(size int) {
			pkg.LogInfo(component, "image received",
				"size", size,
				"programmed", tc.WriteOffset(),
				"blake3", digest(chip, r, tc.WriteOffset()))
			save()
		}),
		dfu.WithDetach(func() {
			pkg.LogInfo(component, "detach, resetting")
			chip.SystemReset()
			cancel()
		}))

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	pkg.LogInfo(component, "update mode",
		"busDir", busDir,
		"deviceDir", hal.DeviceDir())

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	save()
	return nil
}

func newValidator(opt options) (transfer.Validator, error) {
	if opt.keyDigest == "" {
		if opt.requireKey {
			return nil, fmt.Errorf("%w: -require-key needs -key-digest", pkg.ErrInvalidParameter)
		}
		return transfer.NoValidation, nil
	}
	d, err := keycheck.ParseDigest(opt.keyDigest)
	if err != nil {
		return nil, err
	}
	var kopts []keycheck.Option
	if opt.requireKey {
		kopts = append(kopts, keycheck.WithRequired())
	}
	return keycheck.New(d, kopts...), nil
}

// digest returns the BLAKE3 digest of the first size bytes of r.
func digest(f platform.Flash, r region.Region, size int) string {
	sum := blake3.Sum256(f.Read(r.Start, size))
	return fmt.Sprintf("%x", sum)
}
