package pwm

import (
	"errors"
	"testing"
	"time"

	"gotcu/clk"
	"gotcu/core"
	"gotcu/sim"

	"periph.io/x/conn/v3/physic"
)

func newDriver(t *testing.T) (*Driver, *sim.Device, *core.TCU) {
	t.Helper()
	desc := &core.Desc{Channels: []core.ChannelDesc{
		core.Chan(2, core.FlagFIFO),
		core.Chan(2, 0),
		core.Chan(0, core.FlagOST),
	}}
	clocks := clk.NewFixed(map[string]physic.Frequency{clk.EXTAL: 12 * physic.MegaHertz})
	dev := sim.New(desc, clocks)
	tcu, err := core.Init(core.Config{Regs: dev, Desc: desc, Clocks: clocks})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return New(tcu, core.SourceEXTAL, 1000000), dev, tcu
}

// highShare samples the output every step over one period.
func highShare(dev *sim.Device, pin int, samples int, step time.Duration) int {
	high := 0
	for i := 0; i < samples; i++ {
		dev.Advance(step)
		if dev.Output(pin) {
			high++
		}
	}
	return high
}

func TestDutyCycle(t *testing.T) {
	d, dev, _ := newDriver(t)
	dev.SetStep(4 * time.Microsecond) // 3 counts at 750kHz

	cycle, err := d.ConfigureHardwarePWM(0, 300)
	if err != nil {
		t.Fatalf("ConfigureHardwarePWM failed: %v", err)
	}
	if cycle != 300 || d.Rate(0) != 750000 {
		t.Fatalf("cycle = %d, rate = %d", cycle, d.Rate(0))
	}

	// 100 samples of 3 counts cover one period
	if got := highShare(dev, 0, 100, 4*time.Microsecond); got != 0 {
		t.Errorf("fully off output high for %d samples", got)
	}

	if err := d.SetDutyCycle(0, 51); err != nil { // 20%
		t.Fatalf("SetDutyCycle failed: %v", err)
	}
	if got := highShare(dev, 0, 100, 4*time.Microsecond); got < 19 || got > 21 {
		t.Errorf("20%% duty cycle high for %d of 100 samples", got)
	}
	if v, _ := d.DutyCycle(0); v != 51 {
		t.Errorf("DutyCycle = %d", v)
	}
}

func TestConfigureClamps(t *testing.T) {
	d, _, _ := newDriver(t)
	if got, _ := d.ConfigureHardwarePWM(1, 1); got != MinCycleTicks {
		t.Errorf("short period = %d", got)
	}
	if got, _ := d.ConfigureHardwarePWM(1, 1<<20); got != MaxCycleTicks {
		t.Errorf("long period = %d", got)
	}
}

func TestPWMErrors(t *testing.T) {
	d, _, tcu := newDriver(t)

	if _, err := d.ConfigureHardwarePWM(2, 100); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("ost pin: got %v", err)
	}
	if !tcu.Channel(2).Stopped() {
		t.Error("ost channel kept after refusal")
	}
	if _, err := d.ConfigureHardwarePWM(7, 100); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing pin: got %v", err)
	}
	if err := d.SetDutyCycle(0, 10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured pin: got %v", err)
	}
	if err := d.SetDutyCycle(0, MaxValue+1); !errors.Is(err, ErrValueRange) {
		t.Errorf("value range: got %v", err)
	}
}

func TestDisablePWM(t *testing.T) {
	d, dev, tcu := newDriver(t)
	if _, err := d.ConfigureHardwarePWM(0, 100); err != nil {
		t.Fatalf("ConfigureHardwarePWM failed: %v", err)
	}
	d.SetDutyCycle(0, MaxValue)
	if err := d.DisablePWM(0); err != nil {
		t.Fatalf("DisablePWM failed: %v", err)
	}
	if !tcu.Channel(0).Stopped() || dev.Output(0) {
		t.Error("channel still driving its pin")
	}
	if err := d.DisablePWM(0); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("second DisablePWM: got %v", err)
	}
}
