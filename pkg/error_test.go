package pkg

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	errs := []error{
		ErrStall,
		ErrTimeout,
		ErrCancelled,
		ErrProtocol,
		ErrReset,
		ErrNotConnected,
		ErrNotConfigured,
		ErrAlreadyRunning,
		ErrSetupPacketTooShort,
		ErrBufferTooSmall,
		ErrInvalidRequest,
		ErrInvalidRegion,
		ErrOutOfRegion,
		ErrFlashProgram,
		ErrFlashProtected,
		ErrFlashCollision,
		ErrFlashAccess,
		ErrNotSupported,
		ErrInvalidKey,
		ErrKeyRequired,
		ErrInvalidParameter,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrStall, "endpoint stalled"},
		{ErrTimeout, "transfer timeout"},
		{ErrOutOfRegion, "address outside region"},
		{ErrFlashProtected, "flash protection violation"},
		{ErrInvalidKey, "invalid firmware key"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("error.Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}
