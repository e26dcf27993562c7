//go:build linux && !tinygo

// Command tcu-probe maps the TCU register block of a running JZ4780 board
// through /dev/mem and prints its state. It never writes a register, so it
// is safe next to the kernel's own timer driver.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"gotcu/mmio"
	"gotcu/soc/jz4780"
)

var (
	mem    = flag.String("mem", mmio.DevMem, "Physical memory device")
	base   = flag.Uint64("base", jz4780.TCUBase, "Physical address of the TCU")
	sample = flag.Duration("sample", 100*time.Millisecond, "Window for measuring the OST rate (0 to skip)")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	m, err := mmio.OpenFile(*mem, *base, jz4780.TCUSize)
	if err != nil {
		logger.Error("map tcu", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	desc := jz4780.Desc()
	dump(os.Stdout, m, desc)

	if *sample > 0 {
		rate := ostRate(m, *sample, time.Sleep)
		logger.Info("ost rate", "hz", rate, "window", *sample)
	}
}
