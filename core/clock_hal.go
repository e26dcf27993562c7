package core

import "periph.io/x/conn/v3/physic"

// ClockProvider resolves the named source clocks a channel can count from.
// Platform code supplies it; rates are read on every rate query so a
// changed parent clock is picked up.
type ClockProvider interface {
	// Rate returns the current rate of the clock called name
	// ("pclk", "rtc" or "ext").
	Rate(name string) (physic.Frequency, error)
}
