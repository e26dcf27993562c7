package clk

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestFixedRate(t *testing.T) {
	f := NewFixed(map[string]physic.Frequency{
		EXTAL: 48 * physic.MegaHertz,
		RTC:   32768 * physic.Hertz,
	})

	rate, err := f.Rate(EXTAL)
	if err != nil {
		t.Fatalf("Rate(ext) failed: %v", err)
	}
	if Hz(rate) != 48000000 {
		t.Errorf("Expected 48000000 Hz, got %d", Hz(rate))
	}

	if _, err := f.Rate(PCLK); !errors.Is(err, ErrUnknownClock) {
		t.Errorf("Expected ErrUnknownClock for pclk, got %v", err)
	}

	f.Set(RTC, 0)
	if _, err := f.Rate(RTC); err == nil {
		t.Error("Expected removed clock to fail lookup")
	}
}

func TestHzSaturates(t *testing.T) {
	if got := Hz(-physic.Hertz); got != 0 {
		t.Errorf("Expected 0 for negative frequency, got %d", got)
	}
	if got := Hz(10 * physic.GigaHertz); got != ^uint32(0) {
		t.Errorf("Expected saturation, got %d", got)
	}
	if got := Hz(1500 * physic.MilliHertz); got != 1 {
		t.Errorf("Expected truncation to 1 Hz, got %d", got)
	}
}
