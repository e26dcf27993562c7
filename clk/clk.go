// Package clk provides the named source clocks a timer unit counts from.
package clk

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Clock names used by the TCU source selector.
const (
	PCLK  = "pclk"
	RTC   = "rtc"
	EXTAL = "ext"
)

// ErrUnknownClock is returned when a clock name has no rate registered.
var ErrUnknownClock = errors.New("clk: unknown clock")

// Fixed is a set of fixed-rate clocks keyed by name.
type Fixed struct {
	mu    sync.RWMutex
	rates map[string]physic.Frequency
}

// NewFixed creates a provider from a name to rate map.
func NewFixed(rates map[string]physic.Frequency) *Fixed {
	f := &Fixed{rates: make(map[string]physic.Frequency, len(rates))}
	for name, rate := range rates {
		f.rates[name] = rate
	}
	return f
}

// Rate returns the rate of the named clock.
func (f *Fixed) Rate(name string) (physic.Frequency, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rate, ok := f.rates[name]
	if !ok || rate <= 0 {
		return 0, &Error{Name: name, Err: ErrUnknownClock}
	}
	return rate, nil
}

// Set changes or adds a clock. A zero rate removes it.
func (f *Fixed) Set(name string, rate physic.Frequency) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rate <= 0 {
		delete(f.rates, name)
		return
	}
	f.rates[name] = rate
}

// Error reports a failed clock lookup.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error() + " " + e.Name
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hz converts a frequency to whole hertz, saturating at the uint32 range
// timer registers work in.
func Hz(f physic.Frequency) uint32 {
	hz := int64(f / physic.Hertz)
	switch {
	case hz <= 0:
		return 0
	case hz > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(hz)
}
