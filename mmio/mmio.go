// Package mmio maps a peripheral register block from /dev/mem (or any file
// standing in for it) and gives 32-bit access to it.
package mmio

import "errors"

// DevMem is the physical memory device.
const DevMem = "/dev/mem"

var (
	ErrUnaligned  = errors.New("mmio: unaligned register offset")
	ErrOutOfRange = errors.New("mmio: register offset outside mapping")
)
