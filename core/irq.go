package core

import (
	"math/bits"
	"sync/atomic"

	"gotcu/smp"
)

// irqLine binds one physical interrupt line to the channels wired to it.
type irqLine struct {
	tcu      *TCU
	line     int
	channels uint32
	single   int // The only channel on the line, or -1 for the scan path
	warned   atomic.Bool
}

func (l *irqLine) handler() func(cpu smp.CPU) {
	if l.single >= 0 {
		return l.handleSingle
	}
	return l.handleMulti
}

// handleSingle services a line used by exactly one channel.
func (l *irqLine) handleSingle(cpu smp.CPU) {
	t := l.tcu
	c := l.single
	ch := &t.channels[c]

	pending := t.regs.Read32(RegTFR)
	l.checkStray(pending)
	var ack uint32

	// Half match first, some users treat it as a pre-fill signal
	if half := ch.halfBit(); pending&half != 0 {
		ack |= half
		l.dispatchHalf(ch, cpu)
	}
	if full := ch.bit(); pending&full != 0 {
		ack |= full
		l.dispatchFull(ch, cpu)
	}

	if ack != 0 {
		t.regs.Write32(RegTFCR, ack)
	}
}

// handleMulti services a line shared by several channels.
func (l *irqLine) handleMulti(cpu smp.CPU) {
	t := l.tcu

	pending := t.regs.Read32(RegTFR)
	l.checkStray(pending)
	pendingFull := pending & l.channels
	pendingHalf := (pending >> HalfShift) & l.channels
	var ack uint32

	for pendingHalf != 0 {
		c := bits.TrailingZeros32(pendingHalf)
		pendingHalf &^= 1 << uint(c)
		ch := &t.channels[c]
		ack |= ch.halfBit()
		l.dispatchHalf(ch, cpu)
	}

	for pendingFull != 0 {
		c := bits.TrailingZeros32(pendingFull)
		pendingFull &^= 1 << uint(c)
		ch := &t.channels[c]
		ack |= ch.bit()
		l.dispatchFull(ch, cpu)
	}

	if ack != 0 {
		t.regs.Write32(RegTFCR, ack)
	}
}

// checkStray reports, once per line, match flags raised for channels that
// are missing from the table. Such flags are never serviced or cleared.
func (l *irqLine) checkStray(pending uint32) {
	stray := (pending | pending>>HalfShift) & l.tcu.absent
	if stray == 0 || l.warned.Swap(true) {
		return
	}
	warn("irq line " + itoa(l.line) + ": flags for absent channels 0x" + hex32(stray))
}

func (l *irqLine) dispatchHalf(ch *Channel, cpu smp.CPU) {
	l.tcu.trace.Record(EvtIRQHalf, ch.idx, cpu, uint32(l.line), 0)
	if h := ch.halfHandler(); h != nil {
		h.HandleHalfMatch(ch, cpu)
	}
}

func (l *irqLine) dispatchFull(ch *Channel, cpu smp.CPU) {
	l.tcu.trace.Record(EvtIRQFull, ch.idx, cpu, uint32(l.line), 0)
	if h := ch.fullHandler(); h != nil {
		h.HandleFullMatch(ch, cpu)
	}
}
