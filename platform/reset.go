package platform

import "strings"

// ResetCause is a set of latched reset-cause flags.
type ResetCause uint16

// Reset cause flags. Which flags a chip can report is platform specific.
const (
	ResetPowerOn  ResetCause = 1 << iota // Power-on reset
	ResetBrownout                        // Supply brown-out
	ResetPin                             // External reset pin asserted
	ResetWatchdog                        // Watchdog timeout
	ResetLockup                          // Core lockup
	ResetSoftware                        // Software-requested system reset
	ResetBackup                          // Wake from backup mode
)

var resetCauseNames = [...]string{
	"power-on",
	"brown-out",
	"pin",
	"watchdog",
	"lockup",
	"software",
	"backup",
}

// Has reports whether every flag in f is set in c.
func (c ResetCause) Has(f ResetCause) bool {
	return f != 0 && c&f == f
}

// Any reports whether at least one flag in f is set in c.
func (c ResetCause) Any(f ResetCause) bool {
	return c&f != 0
}

// String returns the set flags joined by '|', or "none".
func (c ResetCause) String() string {
	if c == 0 {
		return "none"
	}
	var b strings.Builder
	for i, name := range resetCauseNames {
		if c&(1<<i) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// ParseResetCause parses a '|' or ',' separated list of flag names as
// produced by String.
func ParseResetCause(s string) (ResetCause, bool) {
	var c ResetCause
	if s == "" || s == "none" {
		return 0, true
	}
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		found := false
		for i, name := range resetCauseNames {
			if strings.EqualFold(strings.TrimSpace(field), name) {
				c |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return c, true
}
