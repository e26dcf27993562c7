// Package core implements the Timer/Counter Unit (TCU) layer: it hands out
// the hardware timer channels of a JZ47xx style TCU, programs their rates,
// demultiplexes the shared match interrupts and turns channels into per-CPU
// clock-event devices.
package core

import (
	"math/bits"

	"gotcu/smp"
)

// Config holds everything the platform supplies to Init.
type Config struct {
	Regs   Registers     // Mapped TCU register block (required)
	Desc   *Desc         // Channel table of the SoC (required, borrowed)
	Clocks ClockProvider // Source clocks for rate programming
	IRQ    IRQController // Interrupt lines; nil leaves them to be polled via LineHandler
	SMP    smp.Caller    // Cross-CPU calls; nil runs every handler on the interrupted CPU
	Events ClockEvents   // Clock-event framework used by SetupClockEvent
}

// TCU is one initialised timer/counter unit.
type TCU struct {
	desc   *Desc
	regs   Registers
	clocks ClockProvider
	irq    IRQController
	smp    smp.Caller
	events ClockEvents

	channels  []Channel
	lines     [NumIRQs]irqLine
	absent    uint32 // Flag bits of channels missing from the table
	requested int

	registry *Registry
	trace    *TraceRing
}

// Init stops every channel, computes which channels share each interrupt
// line and requests the lines. There is no partially initialised TCU: any
// failure undoes the line requests and returns the error.
func Init(cfg Config) (*TCU, error) {
	if cfg.Regs == nil {
		return nil, &ChannelError{Op: "init", Channel: AnyChannel, Err: ErrNoRegisters}
	}
	if err := cfg.Desc.Validate(); err != nil {
		return nil, err
	}

	n := cfg.Desc.NumChannels()
	t := &TCU{
		desc:     cfg.Desc,
		regs:     cfg.Regs,
		clocks:   cfg.Clocks,
		irq:      cfg.IRQ,
		smp:      cfg.SMP,
		events:   cfg.Events,
		channels: make([]Channel, n),
		registry: NewRegistry(n),
		trace:    NewTraceRing(),
	}

	// Initialise all channels as stopped & calculate IRQ maps
	for i := range t.channels {
		ch := &t.channels[i]
		ch.tcu = t
		ch.idx = i
		ch.owner.Store(int32(smp.NoCPU))
		ch.stop()
		ch.stopped.Store(true)
		if d := t.desc.Channels[i]; d.Present {
			t.lines[d.IRQ].channels |= ch.bit()
		}
	}
	for i := 0; i < MaxChannels; i++ {
		if i >= n || !t.desc.Channels[i].Present {
			t.absent |= 1 << uint(i)
		}
	}

	for l := range t.lines {
		line := &t.lines[l]
		line.tcu = t
		line.line = l
		line.single = -1
		if bits.OnesCount32(line.channels) == 1 {
			line.single = bits.TrailingZeros32(line.channels)
		}
	}

	if t.irq != nil {
		for l := range t.lines {
			if err := t.irq.RequestIRQ(l, "tcu-irq"+itoa(l), t.lines[l].handler()); err != nil {
				t.freeIRQs()
				return nil, &ChannelError{Op: "request irq " + itoa(l), Channel: AnyChannel, Err: err}
			}
			t.requested++
		}
	}

	DebugPrintln("[TCU] init: " + itoa(n) + " channels")
	return t, nil
}

func (t *TCU) freeIRQs() {
	for l := 0; l < t.requested; l++ {
		t.irq.FreeIRQ(l)
	}
	t.requested = 0
}

// Close frees the interrupt lines. Channels are left as they are.
func (t *TCU) Close() {
	if t.irq != nil {
		t.freeIRQs()
	}
}

// NumChannels returns the number of channels in the descriptor table.
func (t *TCU) NumChannels() int {
	return len(t.channels)
}

// Channel returns channel idx for inspection, or nil if out of range.
// Use RequestChannel to own a channel.
func (t *TCU) Channel(idx int) *Channel {
	if idx < 0 || idx >= len(t.channels) {
		return nil
	}
	return &t.channels[idx]
}

// LineHandler returns the dispatch function bound to interrupt line l.
func (t *TCU) LineHandler(l int) func(cpu smp.CPU) {
	if l < 0 || l >= NumIRQs {
		return nil
	}
	return t.lines[l].handler()
}

// LineChannels returns the channel bitmap of line l and, when exactly one
// channel uses the line, that channel's index (-1 otherwise).
func (t *TCU) LineChannels(l int) (channels uint32, single int) {
	if l < 0 || l >= NumIRQs {
		return 0, -1
	}
	return t.lines[l].channels, t.lines[l].single
}

// Registry returns the channels backing clock-event devices.
func (t *TCU) Registry() *Registry {
	return t.registry
}

// Trace returns the event ring of this TCU.
func (t *TCU) Trace() *TraceRing {
	return t.trace
}
