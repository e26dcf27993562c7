// Package smp describes processor identity and synchronous cross-CPU calls.
//
// Per-CPU timer code needs two things from the platform: the number of the CPU
// an interrupt landed on, and a way to run a function on another CPU and wait
// for it. The first is passed explicitly to interrupt handlers; the second is
// the Caller interface. System is a simulated multiprocessor implementing it.
package smp

import "errors"

// CPU identifies a processor core.
type CPU int

// NoCPU marks an unset owner.
const NoCPU CPU = -1

var (
	ErrNoSuchCPU  = errors.New("smp: no such cpu")
	ErrCPUOffline = errors.New("smp: cpu offline")
	ErrStopped    = errors.New("smp: system not running")
)

// Caller runs a function on another CPU and waits for it to finish.
type Caller interface {
	// CallFunctionSingle runs fn on CPU to. The calling code executes on
	// CPU from, which keeps servicing its own incoming calls while it waits
	// so two CPUs calling each other cannot deadlock.
	CallFunctionSingle(from, to CPU, fn func(cpu CPU)) error
}
