// Package pwm drives PWM outputs from TCU channels. The full data register
// sets the period and the half data register the point in the period where
// the output goes high.
package pwm

import (
	"errors"
	"sync"

	"gotcu/core"
)

// Pin identifies a PWM output by the channel driving it.
type Pin uint32

// Value is the duty cycle value (0 to MaxValue)
type Value uint32

// MaxValue is the duty cycle value of a fully on output.
const MaxValue = 255

// Period limits in channel counts. A period needs two counts to hold both
// levels and must fit the 16-bit data registers.
const (
	MinCycleTicks = 2
	MaxCycleTicks = 0xffff
)

var (
	ErrNotConfigured = errors.New("pwm: pin not configured")
	ErrValueRange    = errors.New("pwm: duty cycle value out of range")
)

type output struct {
	ch    *core.Channel
	cycle uint32
	value Value
}

// Driver hands out TCU channels as PWM outputs, all counting from the same
// source at the same rate.
type Driver struct {
	tcu *core.TCU
	src core.Source
	hz  uint32

	mu   sync.Mutex
	outs map[Pin]*output
}

// New creates a driver whose channels count from src at about hz.
func New(tcu *core.TCU, src core.Source, hz uint32) *Driver {
	return &Driver{tcu: tcu, src: src, hz: hz, outs: make(map[Pin]*output)}
}

// ConfigureHardwarePWM claims the channel behind pin and starts it with a
// period of cycleTicks channel counts, fully off. It returns the period
// actually used, which is clamped to what the channel can hold.
func (d *Driver) ConfigureHardwarePWM(pin Pin, cycleTicks uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out, ok := d.outs[pin]
	if !ok {
		ch, err := d.claim(pin)
		if err != nil {
			return 0, err
		}
		out = &output{ch: ch}
		d.outs[pin] = out
	}

	switch {
	case cycleTicks < MinCycleTicks:
		cycleTicks = MinCycleTicks
	case cycleTicks > MaxCycleTicks:
		cycleTicks = MaxCycleTicks
	}

	ch := out.ch
	ch.Disable()
	out.cycle = cycleTicks
	out.value = 0
	if err := ch.SetFull(cycleTicks); err != nil {
		return 0, err
	}
	// Fully off: the output flips at the end of the period
	if err := ch.SetHalf(cycleTicks); err != nil {
		return 0, err
	}
	if err := ch.SetCount(0); err != nil {
		return 0, err
	}
	ch.Enable()
	return cycleTicks, nil
}

func (d *Driver) claim(pin Pin) (*core.Channel, error) {
	ch, err := d.tcu.RequestChannel(int(pin))
	if err != nil {
		return nil, err
	}
	if ch.Desc().IsOST() {
		ch.Release()
		return nil, &core.ChannelError{Op: "pwm", Channel: int(pin), Err: core.ErrInvalidArgument}
	}
	if ch.SetRate(d.src, d.hz) == 0 {
		ch.Release()
		return nil, &core.ChannelError{Op: "pwm", Channel: int(pin), Err: core.ErrClockUnavailable}
	}
	if err := ch.SetPWM(true, false); err != nil {
		ch.Release()
		return nil, err
	}
	return ch, nil
}

// SetDutyCycle sets the share of each period the output is high.
func (d *Driver) SetDutyCycle(pin Pin, value Value) error {
	if value > MaxValue {
		return ErrValueRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outs[pin]
	if !ok {
		return ErrNotConfigured
	}
	high := uint64(out.cycle) * uint64(value) / MaxValue
	if err := out.ch.SetHalf(out.cycle - uint32(high)); err != nil {
		return err
	}
	out.value = value
	return nil
}

// GetMaxValue returns the duty cycle value of a fully on output.
func (d *Driver) GetMaxValue() uint32 {
	return MaxValue
}

// DutyCycle returns the value last set on pin.
func (d *Driver) DutyCycle(pin Pin) (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outs[pin]
	if !ok {
		return 0, ErrNotConfigured
	}
	return out.value, nil
}

// Rate returns the counting rate of the channel behind pin.
func (d *Driver) Rate(pin Pin) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if out, ok := d.outs[pin]; ok {
		return out.ch.Rate()
	}
	return 0
}

// DisablePWM stops the output and returns its channel to the TCU.
func (d *Driver) DisablePWM(pin Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outs[pin]
	if !ok {
		return ErrNotConfigured
	}
	out.ch.Disable()
	if err := out.ch.SetPWM(false, false); err != nil {
		return err
	}
	out.ch.Release()
	delete(d.outs, pin)
	return nil
}
