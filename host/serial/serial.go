// Package serial opens a board console, live on a UART or replayed from a
// captured log, for tools that read the timer layer's output.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// DefaultBaud is the console rate of JZ47xx boot loaders and kernels.
const DefaultBaud = 115200

var ErrBadConfig = errors.New("serial: bad console config")

// Config describes a console UART.
type Config struct {
	Device      string        // e.g. "/dev/ttyUSB0"
	Baud        int
	ReadTimeout time.Duration // 0 blocks until output arrives
}

// DefaultConfig returns the usual settings for a board console on device.
func DefaultConfig(device string) *Config {
	return &Config{Device: device, Baud: DefaultBaud}
}

func (c *Config) validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: no config", ErrBadConfig)
	case c.Device == "":
		return fmt.Errorf("%w: no device", ErrBadConfig)
	case c.Baud <= 0:
		return fmt.Errorf("%w: baud rate %d", ErrBadConfig, c.Baud)
	case c.ReadTimeout < 0:
		return fmt.Errorf("%w: read timeout %v", ErrBadConfig, c.ReadTimeout)
	}
	return nil
}

// Console is an open board console.
type Console struct {
	rc    io.ReadCloser
	flush func() error
	name  string
	live  bool
}

// OpenLog opens a captured console log for replay.
func OpenLog(path string) (*Console, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}
	return &Console{rc: f, name: path}, nil
}

// Name returns the device or file the console reads from.
func (c *Console) Name() string {
	return c.name
}

// Live reports whether the console is a UART rather than a log.
func (c *Console) Live() bool {
	return c.live
}

func (c *Console) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

// Close closes the console. Closing a live console unblocks a pending Read.
func (c *Console) Close() error {
	return c.rc.Close()
}

// Discard drops output received but not yet read, so reading starts with
// the next line the board prints. Logs are left as they are.
func (c *Console) Discard() error {
	if c.flush == nil {
		return nil
	}
	return c.flush()
}
