package board

import (
	"math/bits"
	"time"

	"periph.io/x/conn/v3/physic"

	"gotcu/clk"
	"gotcu/config"
	"gotcu/core"
)

// ClocksourceRating ranks the TCU clocksource among the platform's.
const ClocksourceRating = 200

// Clocksource is a free running channel read as a monotonic counter.
type Clocksource struct {
	Name   string
	Rating int

	ch   *core.Channel
	rate uint32
}

func clkHz(f config.Frequency) uint32 {
	return clk.Hz(f.Frequency)
}

// NewClocksource claims channel idx, sets it counting from src at about hz
// and starts it. The achieved rate is what Rate reports.
func NewClocksource(tcu *core.TCU, name string, idx int, src core.Source, hz uint32) (*Clocksource, error) {
	ch, err := tcu.RequestChannel(idx)
	if err != nil {
		return nil, err
	}
	rate := ch.SetRate(src, hz)
	if rate == 0 {
		ch.Release()
		return nil, &core.ChannelError{Op: "clocksource", Channel: idx, Err: core.ErrClockUnavailable}
	}
	ch.Enable()
	return &Clocksource{Name: name, Rating: ClocksourceRating, ch: ch, rate: rate}, nil
}

// Read returns the current count.
func (cs *Clocksource) Read() uint64 {
	return cs.ch.ReadCount() & cs.Mask()
}

// Mask returns the mask of valid counter bits.
func (cs *Clocksource) Mask() uint64 {
	if cs.ch.Desc().IsOST() {
		return ^uint64(0)
	}
	return 0xffff
}

// Rate returns the counting rate in Hz.
func (cs *Clocksource) Rate() uint32 {
	return cs.rate
}

// Frequency returns the counting rate.
func (cs *Clocksource) Frequency() physic.Frequency {
	return physic.Frequency(cs.rate) * physic.Hertz
}

// Channel returns the backing channel.
func (cs *Clocksource) Channel() *core.Channel {
	return cs.ch
}

// SchedClock converts the current count to time since the counter started.
func (cs *Clocksource) SchedClock() time.Duration {
	return cyclesToDuration(cs.Read(), cs.rate)
}

func cyclesToDuration(cycles uint64, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}
	hi, lo := bits.Mul64(cycles, uint64(time.Second))
	if hi >= uint64(rate) {
		return time.Duration(1<<63 - 1)
	}
	ns, _ := bits.Div64(hi, lo, uint64(rate))
	if ns > 1<<63-1 {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(ns)
}

// Disable stops the counter.
func (cs *Clocksource) Disable() {
	cs.ch.Disable()
}

// Enable restarts the counter.
func (cs *Clocksource) Enable() {
	cs.ch.Enable()
}

// Close stops the counter and releases its channel.
func (cs *Clocksource) Close() {
	cs.ch.Disable()
	cs.ch.Release()
}
