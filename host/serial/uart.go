package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// Open opens the console UART described by cfg.
func Open(cfg *Config) (*Console, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return &Console{rc: port, flush: port.Flush, name: cfg.Device, live: true}, nil
}
