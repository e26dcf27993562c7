package serial

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyUSB0")
	if cfg.Device != "/dev/ttyUSB0" || cfg.Baud != DefaultBaud || cfg.ReadTimeout != 0 {
		t.Errorf("got %+v", cfg)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	for _, cfg := range []*Config{
		nil,
		{Baud: DefaultBaud},
		{Device: "/dev/null", Baud: 0},
		{Device: "/dev/null", Baud: DefaultBaud, ReadTimeout: -1},
	} {
		if _, err := Open(cfg); !errors.Is(err, ErrBadConfig) {
			t.Errorf("Open(%+v): got %v", cfg, err)
		}
	}
}

func TestOpenLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	if err := os.WriteFile(path, []byte("[TCU] init: 16 channels\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog failed: %v", err)
	}
	defer c.Close()

	if c.Live() || c.Name() != path {
		t.Errorf("Live = %t, Name = %q", c.Live(), c.Name())
	}
	if err := c.Discard(); err != nil {
		t.Errorf("Discard on a log: %v", err)
	}
	data, err := io.ReadAll(c)
	if err != nil || string(data) != "[TCU] init: 16 channels\n" {
		t.Errorf("read %q, %v", data, err)
	}

	if _, err := OpenLog(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("OpenLog of a missing file succeeded")
	}
}
