// Package sim emulates a JZ47xx timer/counter unit and its interrupt
// controller in virtual time, so the driver can run unchanged on a host.
package sim

import (
	"sync"
	"time"

	"gotcu/clk"
	"gotcu/core"
)

// LineSink receives interrupt line assertions.
type LineSink interface {
	Raise(line int) error
}

// DefaultStep is the virtual time granularity of Advance.
const DefaultStep = 100 * time.Microsecond

const narrowWrap = 1 << 16

type counter struct {
	full  uint32
	half  uint32
	count uint32
	csr   uint32
	acc   uint64 // Source clock ticks times 1e9 not yet counted
}

// Device is an emulated TCU register block. Counters only move when Advance
// is called; interrupts are raised from Advance, never from register
// accesses, so handlers may access registers freely.
type Device struct {
	desc   *core.Desc
	clocks core.ClockProvider
	ost    int // Index of the OST channel, -1 if none

	mu   sync.Mutex
	ter  uint32
	tsr  uint32
	tfr  uint32
	tmr  uint32
	ch   [core.MaxChannels]counter
	sink LineSink
	step time.Duration
	now  time.Duration

	ostHi    uint32
	ostHiBuf uint32
	ostData  uint32
}

// New creates a device for the channels of desc counting from clocks.
// All channels come up stopped with their interrupts masked.
func New(desc *core.Desc, clocks core.ClockProvider) *Device {
	d := &Device{
		desc:   desc,
		clocks: clocks,
		ost:    -1,
		tsr:    0xffff,
		tmr:    0xffffffff,
		step:   DefaultStep,
	}
	for i, c := range desc.Channels {
		if c.Present && c.IsOST() {
			d.ost = i
		}
	}
	return d
}

// Attach routes interrupt line assertions to sink.
func (d *Device) Attach(sink LineSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// SetStep changes the virtual time granularity.
func (d *Device) SetStep(step time.Duration) {
	if step <= 0 {
		step = DefaultStep
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.step = step
}

// Now returns the virtual time elapsed so far.
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

func (d *Device) channelAt(off uint32) (int, uint32, bool) {
	if off < core.RegTDFR0 || off >= core.RegOSTDR {
		return 0, 0, false
	}
	c := int((off - core.RegTDFR0) / core.ChannelStride)
	return c, (off - core.RegTDFR0) % core.ChannelStride, true
}

// Read32 implements core.Registers.
func (d *Device) Read32(off uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case core.RegTER:
		return d.ter
	case core.RegTSR:
		return d.tsr
	case core.RegTFR:
		return d.tfr
	case core.RegTMR:
		return d.tmr
	}

	if d.ost >= 0 {
		o := &d.ch[d.ost]
		switch off {
		case core.RegOSTDR:
			return d.ostData
		case core.RegOSTCNTL:
			d.ostHiBuf = d.ostHi
			return o.count
		case core.RegOSTCNTH:
			return d.ostHi
		case core.RegOSTCNTHBUF:
			return d.ostHiBuf
		case core.RegOSTCSR:
			return o.csr
		}
	}

	if c, reg, ok := d.channelAt(off); ok && c != d.ost {
		ch := &d.ch[c]
		switch reg {
		case 0x0:
			return ch.full
		case 0x4:
			return ch.half
		case 0x8:
			return ch.count
		case 0xc:
			return ch.csr
		}
	}
	return 0
}

// Write32 implements core.Registers.
func (d *Device) Write32(off, val uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case core.RegTESR:
		d.ter |= val & 0xffff
		return
	case core.RegTECR:
		d.ter &^= val
		return
	case core.RegTSSR:
		d.tsr |= val & 0xffff
		return
	case core.RegTSCR:
		d.tsr &^= val
		return
	case core.RegTFSR:
		d.tfr |= val
		return
	case core.RegTFCR:
		d.tfr &^= val
		return
	case core.RegTMSR:
		d.tmr |= val
		return
	case core.RegTMCR:
		d.tmr &^= val
		return
	}

	if d.ost >= 0 {
		o := &d.ch[d.ost]
		switch off {
		case core.RegOSTDR:
			d.ostData = val
			return
		case core.RegOSTCNTL:
			o.count = val
			return
		case core.RegOSTCNTH:
			d.ostHi = val
			return
		case core.RegOSTCSR:
			o.csr = val
			return
		}
	}

	if c, reg, ok := d.channelAt(off); ok && c != d.ost {
		ch := &d.ch[c]
		val &= 0xffff
		switch reg {
		case 0x0:
			ch.full = val
		case 0x4:
			ch.half = val
		case 0x8:
			ch.count = val
		case 0xc:
			ch.csr = val
		}
	}
}

// Advance moves virtual time forward by dt, one step at a time, raising
// every interrupt line that is asserted at the end of a step. It returns
// the first delivery error.
func (d *Device) Advance(dt time.Duration) error {
	var first error
	for dt > 0 {
		d.mu.Lock()
		step := d.step
		if step > dt {
			step = dt
		}
		d.tickLocked(step)
		d.now += step
		lines := d.assertedLocked()
		sink := d.sink
		d.mu.Unlock()
		dt -= step

		if sink == nil {
			continue
		}
		for l := 0; l < core.NumIRQs; l++ {
			if !lines[l] {
				continue
			}
			if err := sink.Raise(l); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// sourceHz returns the count rate selected by a control register value.
func (d *Device) sourceHz(csr uint32) uint64 {
	if d.clocks == nil {
		return 0
	}
	src, ok := core.SourceOf(csr)
	if !ok {
		return 0
	}
	f, err := d.clocks.Rate(src.String())
	if err != nil {
		return 0
	}
	return uint64(clk.Hz(f))
}

func (d *Device) tickLocked(step time.Duration) {
	for i, desc := range d.desc.Channels {
		bit := uint32(1) << uint(i)
		if !desc.Present || d.ter&bit == 0 || d.tsr&bit != 0 {
			continue
		}
		ch := &d.ch[i]
		hz := d.sourceHz(ch.csr)
		if hz == 0 {
			continue
		}
		prescale := (ch.csr & core.CSRPrescaleMask) >> core.CSRPrescaleShift
		unit := uint64(time.Second) << (2 * prescale)
		ch.acc += hz * uint64(step)
		n := ch.acc / unit
		ch.acc %= unit
		if n == 0 {
			continue
		}
		if i == d.ost {
			d.countOST(ch, bit, n)
		} else {
			d.countNarrow(ch, i, n)
		}
	}
}

// crossed reports whether counting k steps up from 'from' passes through
// target in a counter of the given width.
func crossed(from, target uint32, k, wrap uint64) bool {
	dist := (uint64(target)-uint64(from)-1)%wrap + 1
	return dist <= k
}

// countNarrow advances a 16-bit channel by n counts. The counter resets to
// zero when it reaches the full value.
func (d *Device) countNarrow(ch *counter, i int, n uint64) {
	full := uint32(1) << uint(i)
	half := full << core.HalfShift
	for n > 0 {
		toFull := uint64(ch.full) - uint64(ch.count)
		if ch.count >= ch.full {
			toFull = narrowWrap - uint64(ch.count) + uint64(ch.full)
		}
		k := n
		if k > toFull {
			k = toFull
		}
		if crossed(ch.count&0xffff, ch.half, k, narrowWrap) {
			d.tfr |= half
		}
		if k == toFull {
			d.tfr |= full
			ch.count = 0
		} else {
			ch.count = uint32((uint64(ch.count) + k) % narrowWrap)
		}
		n -= k
	}
}

// countOST advances the 64-bit counter. The compare value matches against
// the low word; unless free running the counter then restarts from zero.
func (d *Device) countOST(ch *counter, bit uint32, n uint64) {
	cur := uint64(d.ostHi)<<32 | uint64(ch.count)
	if crossed(ch.count, d.ostData, n, 1<<32) {
		d.tfr |= bit
		if ch.csr&core.OSTCSRCntMD == 0 {
			dist := (uint64(d.ostData)-uint64(ch.count)-1)%(1<<32) + 1
			cur = (n - dist) % (uint64(d.ostData) + 1)
			d.ostHi = uint32(cur >> 32)
			ch.count = uint32(cur)
			return
		}
	}
	cur += n
	d.ostHi = uint32(cur >> 32)
	ch.count = uint32(cur)
}

// assertedLocked computes the level of every interrupt line.
func (d *Device) assertedLocked() [core.NumIRQs]bool {
	var lines [core.NumIRQs]bool
	active := d.tfr &^ d.tmr
	for i, desc := range d.desc.Channels {
		if !desc.Present {
			continue
		}
		bit := uint32(1) << uint(i)
		if active&(bit|bit<<core.HalfShift) != 0 {
			lines[desc.IRQ] = true
		}
	}
	return lines
}

// Output returns the level of channel c's output pin: low when the channel
// does not drive it, otherwise the initial level until the half match and
// the opposite level after it.
func (d *Device) Output(c int) bool {
	if c < 0 || c >= core.MaxChannels || c == d.ost {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := &d.ch[c]
	if ch.csr&core.CSRPWMEn == 0 {
		return false
	}
	initHigh := ch.csr&core.CSRInitHigh != 0
	if ch.count >= ch.half {
		return !initHigh
	}
	return initHigh
}
