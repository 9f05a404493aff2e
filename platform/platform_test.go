package platform

import (
	"errors"
	"testing"

	"github.com/ardnew/softdfu/pkg"
)

// backupRAM implements Backup over a plain array.
type backupRAM struct {
	mem [32]byte
}

func (b *backupRAM) LoadMarker(buf []byte) int {
	return copy(buf, b.mem[:])
}

func (b *backupRAM) StoreMarker(data []byte) {
	copy(b.mem[:], data)
}

func TestResetCause_String(t *testing.T) {
	tests := []struct {
		cause ResetCause
		want  string
	}{
		{0, "none"},
		{ResetPin, "pin"},
		{ResetWatchdog | ResetLockup, "watchdog|lockup"},
		{ResetPowerOn | ResetSoftware, "power-on|software"},
		{1 << 15, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.cause.String(); got != tt.want {
				t.Errorf("ResetCause.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResetCause_HasAny(t *testing.T) {
	c := ResetPin | ResetWatchdog
	if !c.Has(ResetPin) {
		t.Error("Has(ResetPin) = false")
	}
	if c.Has(ResetPin | ResetLockup) {
		t.Error("Has(ResetPin|ResetLockup) = true")
	}
	if !c.Any(ResetPin | ResetLockup) {
		t.Error("Any(ResetPin|ResetLockup) = false")
	}
	if c.Has(0) {
		t.Error("Has(0) = true")
	}
}

func TestParseResetCause(t *testing.T) {
	tests := []struct {
		in     string
		want   ResetCause
		wantOK bool
	}{
		{"", 0, true},
		{"none", 0, true},
		{"pin", ResetPin, true},
		{"watchdog|lockup", ResetWatchdog | ResetLockup, true},
		{"Power-On, software", ResetPowerOn | ResetSoftware, true},
		{"bogus", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseResetCause(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseResetCause(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResult_Err(t *testing.T) {
	tests := []struct {
		result  Result
		wantErr error
	}{
		{ResultOK, nil},
		{ResultError, pkg.ErrFlashProgram},
		{ResultInvalid, pkg.ErrOutOfRegion},
		{ResultNotSupported, pkg.ErrNotSupported},
		{ResultProtection, pkg.ErrFlashProtected},
		{ResultCollision, pkg.ErrFlashCollision},
		{ResultAccess, pkg.ErrFlashAccess},
		{Result(99), pkg.ErrFlashProgram},
	}

	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			err := tt.result.Err()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Result.Err() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Result.Err() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarker(t *testing.T) {
	var b backupRAM

	if MarkerArmed(&b, LoaderMagic[:]) {
		t.Fatal("zeroed backup reported armed")
	}

	RequestLoader(&b)
	if !MarkerArmed(&b, LoaderMagic[:]) {
		t.Fatal("marker not armed after RequestLoader")
	}

	ClearMarker(&b, MagicSize)
	if MarkerArmed(&b, LoaderMagic[:]) {
		t.Fatal("marker still armed after ClearMarker")
	}
	for i, v := range b.mem[:MagicSize] {
		if v != 0 {
			t.Fatalf("marker byte %d = %#x after clear, want 0", i, v)
		}
	}
}

func TestMarker_PartialMatch(t *testing.T) {
	var b backupRAM
	RequestLoader(&b)
	b.mem[5] ^= 0x01

	if MarkerArmed(&b, LoaderMagic[:]) {
		t.Error("corrupted marker reported armed")
	}
}
