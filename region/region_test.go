package region

import (
	"errors"
	"testing"

	"github.com/ardnew/softdfu/pkg"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		start   uintptr
		end     uintptr
		chunk   int
		wantErr bool
	}{
		{"valid", 0x4000, 0x7FFF, 1024, false},
		{"single chunk", 0x4000, 0x43FF, 1024, false},
		{"start equals end", 0x4000, 0x4000, 1, true},
		{"start above end", 0x8000, 0x4000, 1024, true},
		{"zero chunk", 0x4000, 0x7FFF, 0, true},
		{"negative chunk", 0x4000, 0x7FFF, -4, true},
		{"ragged size", 0x4000, 0x7FFE, 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.start, tt.end, tt.chunk)
			if tt.wantErr {
				if !errors.Is(err, pkg.ErrInvalidRegion) {
					t.Fatalf("New() error = %v, want ErrInvalidRegion", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if r.Start != tt.start || r.End != tt.end || r.ChunkSize != tt.chunk {
				t.Errorf("New() = %+v", r)
			}
		})
	}
}

func TestSizeAndChunks(t *testing.T) {
	r := Region{Start: 0x4000, End: 0x7FFF, ChunkSize: 1024}
	if got := r.Size(); got != 0x4000 {
		t.Errorf("Size() = %d, want %d", got, 0x4000)
	}
	if got := r.Chunks(); got != 16 {
		t.Errorf("Chunks() = %d, want 16", got)
	}
	if got := r.Address(0x10); got != 0x4010 {
		t.Errorf("Address(0x10) = 0x%x, want 0x4010", got)
	}
}

func TestContains(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x1FFF, ChunkSize: 256}

	tests := []struct {
		name   string
		off    int
		length int
		want   bool
	}{
		{"first chunk", 0, 256, true},
		{"last chunk", 0xF00, 256, true},
		{"last byte", 0xFFF, 1, true},
		{"one past end", 0xF00, 257, false},
		{"starts at end+1", 0x1000, 1, false},
		{"empty at end", 0x1000, 0, true},
		{"negative offset", -1, 1, false},
		{"negative length", 0, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.off, tt.length); got != tt.want {
				t.Errorf("Contains(%#x, %d) = %v, want %v", tt.off, tt.length, got, tt.want)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	// Size deliberately not a chunk multiple to exercise the partial window.
	r := Region{Start: 0x1000, End: 0x12FF, ChunkSize: 0x200}

	tests := []struct {
		off  int
		want int
	}{
		{0, 0x200},
		{0x100, 0x200},
		{0x200, 0x100},
		{0x2FF, 1},
		{0x300, 0},
		{0x400, 0},
		{-1, 0},
	}

	for _, tt := range tests {
		if got := r.Window(tt.off); got != tt.want {
			t.Errorf("Window(%#x) = %#x, want %#x", tt.off, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	r := Region{Start: 0x4000, End: 0x7FFF, ChunkSize: 1024}
	want := "[0x00004000-0x00007fff] chunk=1024"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
