package core

import "gotcu/smp"

// IRQController is the platform interrupt controller the TCU's physical
// interrupt lines are attached to.
type IRQController interface {
	// RequestIRQ installs handler for line. The controller calls it on the
	// CPU the interrupt was delivered to, passing that CPU's number.
	RequestIRQ(line int, name string, handler func(cpu smp.CPU)) error

	// FreeIRQ removes the handler of line.
	FreeIRQ(line int)
}
