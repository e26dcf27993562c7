package core

import "gotcu/clockevents"

// ClockEvents is the clock-event framework devices are registered with.
type ClockEvents interface {
	// ConfigAndRegister sets the device frequency and delta bounds and
	// registers it. Registering an already known device refreshes it.
	ConfigAndRegister(dev *clockevents.Device, freq uint32, minDelta, maxDelta uint64)
}
