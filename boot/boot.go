package boot

import (
	"strings"
	"time"

	"github.com/ardnew/softdfu/platform"
	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/region"
)

const component = pkg.ComponentBoot

// DefaultWatchdogTimeout is the watchdog period armed before jumping to the
// application.
const DefaultWatchdogTimeout = time.Second

// Mode is the outcome of the boot decision.
type Mode uint8

// Boot modes.
const (
	ModeUpdate      Mode = iota // Stay in the bootloader
	ModeApplication             // Control was handed to the application
)

// String returns a string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeUpdate:
		return "update"
	case ModeApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Reason is a set of conditions that select update mode.
type Reason uint8

// Update-mode reasons.
const (
	ReasonPin Reason = 1 << iota
	ReasonWatchdog
	ReasonLockup
	ReasonBlank
	ReasonMarker
)

var reasonNames = [...]struct {
	r    Reason
	name string
}{
	{ReasonPin, "pin"},
	{ReasonWatchdog, "watchdog"},
	{ReasonLockup, "lockup"},
	{ReasonBlank, "blank"},
	{ReasonMarker, "marker"},
}

// String returns the reasons joined with "|", or "none".
func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var names []string
	for _, n := range reasonNames {
		if r&n.r != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Inputs is the hardware state the decision is made from.
type Inputs struct {
	Cause       platform.ResetCause
	Blank       bool
	MarkerArmed bool
}

// Decision is the result of Decide.
type Decision struct {
	Mode    Mode
	Reasons Reason
}

// Decide selects the boot mode for in. Each reason is independently
// sufficient for update mode.
func Decide(in Inputs) Decision {
	var r Reason
	if in.Cause.Has(platform.ResetPin) {
		r |= ReasonPin
	}
	if in.Cause.Has(platform.ResetWatchdog) {
		r |= ReasonWatchdog
	}
	if in.Cause.Has(platform.ResetLockup) {
		r |= ReasonLockup
	}
	if in.Blank {
		r |= ReasonBlank
	}
	if in.MarkerArmed {
		r |= ReasonMarker
	}

	if r != 0 {
		return Decision{Mode: ModeUpdate, Reasons: r}
	}
	return Decision{Mode: ModeApplication}
}

// Gather reads the decision inputs from p.
func Gather(p platform.Platform, r region.Region, magic []byte) Inputs {
	return Inputs{
		Cause:       p.ResetCause(),
		Blank:       p.Blank(r),
		MarkerArmed: platform.MarkerArmed(p, magic),
	}
}

// Run makes the boot decision for the application in r and acts on it.
//
// In update mode the loader marker is cleared and Run returns ModeUpdate.
// Otherwise control is transferred to the application; on hardware Run
// does not return.
func Run(p platform.Platform, r region.Region, opts ...Option) Mode {
	cfg := config{
		watchdogTimeout: DefaultWatchdogTimeout,
		magic:           platform.LoaderMagic[:],
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	in := Gather(p, r, cfg.magic)
	d := Decide(in)

	pkg.LogInfo(component, "entry",
		"cause", in.Cause.String(),
		"blank", in.Blank,
		"marker", in.MarkerArmed,
		"mode", d.Mode.String(),
		"reasons", d.Reasons.String())

	if d.Mode == ModeUpdate {
		platform.ClearMarker(p, len(cfg.magic))
		return ModeUpdate
	}

	p.ArmWatchdog(cfg.watchdogTimeout)
	p.RelocateVectors(r.Start)

	sp := p.ReadWord(r.Start + region.OffsetStackPointer)
	pc := p.ReadWord(r.Start + region.OffsetResetHandler)
	pkg.LogDebug(component, "jump", "sp", sp, "pc", pc)
	p.Jump(sp, pc)

	return ModeApplication
}
