// Package clockevents is a small generic clock-event framework.
//
// Timer drivers describe one-shot devices with Device and hand them to a
// Framework, which keeps the best rated device of each CPU as that CPU's tick
// device, clamps programmed deltas to the registered bounds and drives a
// periodic tick on top of one-shot hardware.
package clockevents

import (
	"errors"
	"sync/atomic"

	"gotcu/smp"
)

// Feature describes what a device can do.
type Feature uint8

const (
	FeatPeriodic Feature = 1 << iota
	FeatOneshot
)

var (
	ErrNoDevice       = errors.New("clockevents: no device for cpu")
	ErrNotOneshot     = errors.New("clockevents: device is not one-shot capable")
	ErrUnprogrammable = errors.New("clockevents: device has no SetNextEvent")
)

// EventHandler is called on the owning CPU when a device expires.
type EventHandler func(dev *Device, cpu smp.CPU)

// Device is a programmable event source bound to one CPU.
type Device struct {
	Name     string
	Features Feature
	Rating   int
	CPU      smp.CPU

	// SetNextEvent arms the device to expire after ticks device clocks.
	SetNextEvent func(ticks uint64) error

	handler atomic.Pointer[EventHandler]
	events  atomic.Uint64

	freq     uint32
	minDelta uint64
	maxDelta uint64
}

// SetEventHandler replaces the expiry handler.
func (d *Device) SetEventHandler(h EventHandler) {
	if h == nil {
		d.handler.Store(nil)
		return
	}
	d.handler.Store(&h)
}

// Handle delivers an expiry. cpu is the CPU the call runs on.
func (d *Device) Handle(cpu smp.CPU) {
	d.events.Add(1)
	if h := d.handler.Load(); h != nil {
		(*h)(d, cpu)
	}
}

// Events returns how many expiries were delivered.
func (d *Device) Events() uint64 {
	return d.events.Load()
}

// Freq returns the frequency the device was registered with.
func (d *Device) Freq() uint32 {
	return d.freq
}

// Bounds returns the registered minimum and maximum delta in ticks.
func (d *Device) Bounds() (minDelta, maxDelta uint64) {
	return d.minDelta, d.maxDelta
}

// clamp limits ticks to the registered delta range.
func (d *Device) clamp(ticks uint64) uint64 {
	if ticks < d.minDelta {
		return d.minDelta
	}
	if d.maxDelta != 0 && ticks > d.maxDelta {
		return d.maxDelta
	}
	return ticks
}
