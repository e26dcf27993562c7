//go:build linux && !tinygo

package mmio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func memFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestMappingReadWrite(t *testing.T) {
	page := os.Getpagesize()
	path := memFile(t, 2*page)

	// Unaligned base in the second page
	base := uint64(page + 0x100)
	m, err := OpenFile(path, base, 0x100)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}

	m.Write32(0x14, 0xdeadbeef)
	if got := m.Read32(0x14); got != 0xdeadbeef {
		t.Errorf("Read32 = %#x", got)
	}
	if m.Size() != 0x100 {
		t.Errorf("Size = %#x", m.Size())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := binary.LittleEndian.Uint32(data[base+0x14:]); got != 0xdeadbeef {
		t.Errorf("file holds %#x at the register", got)
	}
}

func TestMappingBadOffset(t *testing.T) {
	path := memFile(t, os.Getpagesize())
	m, err := OpenFile(path, 0, 0x40)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer m.Close()

	for _, tt := range []struct {
		off  uint32
		want error
	}{
		{0x2, ErrUnaligned},
		{0x40, ErrOutOfRange},
	} {
		func() {
			defer func() {
				r := recover()
				err, _ := r.(error)
				if !errors.Is(err, tt.want) {
					t.Errorf("offset %#x: recovered %v, want %v", tt.off, r, tt.want)
				}
			}()
			m.Read32(tt.off)
		}()
	}
}

func TestOpenFileErrors(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing"), 0, 0x100); err == nil {
		t.Error("OpenFile of a missing file succeeded")
	}
	if _, err := OpenFile(memFile(t, 4096), 0, 3); err == nil {
		t.Error("OpenFile accepted a size that is not a multiple of 4")
	}
}
