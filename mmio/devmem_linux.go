//go:build linux && !tinygo

package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a register block mapped from a file.
type Mapping struct {
	f     *os.File
	mem   []byte
	start uint32 // Offset of the block inside the first mapped page
	size  uint32
}

// OpenFile maps size bytes of path starting at physical address base.
// base does not need to be page aligned.
func OpenFile(path string, base uint64, size int) (*Mapping, error) {
	if size <= 0 || size%4 != 0 {
		return nil, fmt.Errorf("mmio: invalid block size %d", size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", path, err)
	}

	page := uint64(os.Getpagesize())
	aligned := base &^ (page - 1)
	start := base - aligned
	length := int(start) + size

	mem, err := unix.Mmap(int(f.Fd()), int64(aligned), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmio: map %s at %#x: %w", path, base, err)
	}

	return &Mapping{f: f, mem: mem, start: uint32(start), size: uint32(size)}, nil
}

// Size returns the size of the register block.
func (m *Mapping) Size() uint32 {
	return m.size
}

func (m *Mapping) reg(off uint32) *uint32 {
	if off%4 != 0 {
		panic(fmt.Errorf("%w: %#x", ErrUnaligned, off))
	}
	if off >= m.size {
		panic(fmt.Errorf("%w: %#x", ErrOutOfRange, off))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.start+off]))
}

// Read32 reads the register at off with a single 32-bit load.
func (m *Mapping) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.reg(off))
}

// Write32 writes the register at off with a single 32-bit store.
func (m *Mapping) Write32(off, val uint32) {
	atomic.StoreUint32(m.reg(off), val)
}

// Close unmaps the block.
func (m *Mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
