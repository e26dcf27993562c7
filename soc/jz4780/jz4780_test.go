package jz4780

import (
	"testing"

	"gotcu/clk"
	"gotcu/config"
)

func TestDescMatchesProfile(t *testing.T) {
	b, err := Profile()
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	want := Desc()
	got := b.Desc()
	if got.NumChannels() != want.NumChannels() {
		t.Fatalf("profile has %d channels, table %d", got.NumChannels(), want.NumChannels())
	}
	for i := range want.Channels {
		if got.Channels[i] != want.Channels[i] {
			t.Errorf("channel %d: profile %+v, table %+v", i, got.Channels[i], want.Channels[i])
		}
	}
	if err := want.Validate(); err != nil {
		t.Errorf("table invalid: %v", err)
	}
}

func TestProfile(t *testing.T) {
	b, err := Profile()
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if b.CPUs != 2 || b.TickHz != 100 {
		t.Errorf("cpus = %d, tick_hz = %d", b.CPUs, b.TickHz)
	}
	if b.Clocksource == nil || b.Clocksource.Channel != 15 || b.Clocksource.Source != clk.EXTAL {
		t.Errorf("clocksource = %+v", b.Clocksource)
	}
	if len(b.ClockEvents) != 2 || b.ClockEvents[0].Channel != 5 || b.ClockEvents[1].Channel != 6 {
		t.Errorf("clockevents = %+v", b.ClockEvents)
	}
	if len(b.Hotplug) != 1 || b.Hotplug[0].Channel != 7 || b.Hotplug[0].CPU != 1 {
		t.Errorf("hotplug = %+v", b.Hotplug)
	}
	if b.PWM == nil || len(b.PWM.Outputs) != 1 || b.PWM.Outputs[0].Channel != 4 {
		t.Errorf("pwm = %+v", b.PWM)
	}
}

func TestDescIsCopied(t *testing.T) {
	d := Desc()
	d.Channels[0].IRQ = 1
	if Desc().Channels[0].IRQ != 2 {
		t.Error("Desc shares its table between callers")
	}
}

func TestProfileYAML(t *testing.T) {
	data := ProfileYAML()
	b, err := config.LoadConfig(data)
	if err != nil {
		t.Fatalf("LoadConfig of the raw profile failed: %v", err)
	}
	if b.Name != "jz4780" {
		t.Errorf("name = %q", b.Name)
	}

	data[0] = '!'
	if _, err := Profile(); err != nil {
		t.Errorf("changing the returned bytes broke the profile: %v", err)
	}
}
