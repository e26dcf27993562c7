package sim

import (
	"errors"
	"sync"
	"sync/atomic"

	"gotcu/core"
	"gotcu/smp"
)

var (
	ErrBadLine  = errors.New("sim: no such interrupt line")
	ErrLineBusy = errors.New("sim: interrupt line already requested")
)

type intcLine struct {
	name     string
	handler  func(cpu smp.CPU)
	affinity smp.CPU
	count    atomic.Uint64
}

// Intc is an interrupt controller delivering TCU lines to simulated CPUs.
// A line is delivered to the CPU it is routed to; if that CPU is offline
// the line migrates to the first online CPU.
type Intc struct {
	sys *smp.System

	mu    sync.Mutex
	lines [core.NumIRQs]*intcLine
}

// NewIntc creates a controller delivering on sys. With a nil sys handlers
// run on the caller's goroutine as CPU 0.
func NewIntc(sys *smp.System) *Intc {
	return &Intc{sys: sys}
}

// RequestIRQ implements core.IRQController. New lines are routed to CPU 0.
func (c *Intc) RequestIRQ(line int, name string, handler func(cpu smp.CPU)) error {
	if line < 0 || line >= core.NumIRQs {
		return ErrBadLine
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines[line] != nil {
		return ErrLineBusy
	}
	c.lines[line] = &intcLine{name: name, handler: handler}
	return nil
}

// FreeIRQ implements core.IRQController.
func (c *Intc) FreeIRQ(line int) {
	if line < 0 || line >= core.NumIRQs {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[line] = nil
}

func (c *Intc) get(line int) *intcLine {
	if line < 0 || line >= core.NumIRQs {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[line]
}

// SetAffinity routes line to cpu.
func (c *Intc) SetAffinity(line int, cpu smp.CPU) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line < 0 || line >= core.NumIRQs || c.lines[line] == nil {
		return ErrBadLine
	}
	if c.sys != nil && (cpu < 0 || int(cpu) >= c.sys.NumCPU()) {
		return smp.ErrNoSuchCPU
	}
	c.lines[line].affinity = cpu
	return nil
}

// Name returns the name line was requested with.
func (c *Intc) Name(line int) string {
	if l := c.get(line); l != nil {
		return l.name
	}
	return ""
}

// Count returns how many times line was delivered.
func (c *Intc) Count(line int) uint64 {
	if l := c.get(line); l != nil {
		return l.count.Load()
	}
	return 0
}

// Raise implements LineSink. Asserting a line nobody requested is ignored.
func (c *Intc) Raise(line int) error {
	l := c.get(line)
	if l == nil {
		return nil
	}
	l.count.Add(1)

	if c.sys == nil {
		l.handler(0)
		return nil
	}

	c.mu.Lock()
	cpu := l.affinity
	c.mu.Unlock()
	if !c.sys.IsOnline(cpu) {
		cpu = c.firstOnline()
	}
	return c.sys.Run(cpu, l.handler)
}

func (c *Intc) firstOnline() smp.CPU {
	for i := 0; i < c.sys.NumCPU(); i++ {
		if c.sys.IsOnline(smp.CPU(i)) {
			return smp.CPU(i)
		}
	}
	return 0
}
