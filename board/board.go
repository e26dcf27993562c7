// Package board brings up the timer layer of a board from its profile: the
// clocksource channel, the boot clock-event devices and the devices of CPUs
// that come online later.
package board

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gotcu/clockevents"
	"gotcu/config"
	"gotcu/core"
	"gotcu/pwm"
	"gotcu/smp"
)

// HotplugSystem is the part of the CPU layer the timer hooks into.
type HotplugSystem interface {
	OnStarting(fn func(cpu smp.CPU))
	OnDying(fn func(cpu smp.CPU))
}

// Timer is the timer layer of a running board.
type Timer struct {
	tcu    *core.TCU
	board  *config.Board
	events *clockevents.Framework
	log    *slog.Logger

	Clocksource *Clocksource
	PWM         *pwm.Driver

	mu     sync.Mutex
	boot   []*core.ClockEvent
	hotplg []*core.ClockEvent
	errs   []error
}

// Setup claims the clocksource channel and sets up the boot clock-event
// devices listed in b. Hotplug channels are only set up when their CPU
// starts.
func Setup(tcu *core.TCU, b *config.Board, events *clockevents.Framework, log *slog.Logger) (*Timer, error) {
	if log == nil {
		log = slog.Default()
	}
	tm := &Timer{tcu: tcu, board: b, events: events, log: log}

	if cs := b.Clocksource; cs != nil {
		src, ok := core.ParseSource(cs.Source)
		if !ok {
			return nil, fmt.Errorf("board: clocksource: unknown source %q", cs.Source)
		}
		c, err := NewClocksource(tcu, b.Name+"-tcu-clocksource", cs.Channel, src, clkHz(cs.Rate))
		if err != nil {
			return nil, fmt.Errorf("board: clocksource: %w", err)
		}
		tm.Clocksource = c
		log.Info("clocksource registered", "name", c.Name, "channel", cs.Channel, "rate", c.Rate())
	}

	for _, ev := range b.ClockEvents {
		ce, err := tcu.SetupClockEvent(smp.CPU(ev.CPU), ev.Channel)
		if err != nil {
			tm.Close()
			return nil, fmt.Errorf("board: clock event channel %d: %w", ev.Channel, err)
		}
		tm.boot = append(tm.boot, ce)
		log.Info("clock event registered", "name", ce.Device().Name, "cpu", ev.CPU, "rate", ce.Device().Freq())
	}

	if err := tm.setupPWM(); err != nil {
		tm.Close()
		return nil, err
	}
	return tm, nil
}

func (tm *Timer) setupPWM() error {
	p := tm.board.PWM
	if p == nil {
		return nil
	}
	src, ok := core.ParseSource(p.Source)
	if !ok {
		return fmt.Errorf("board: pwm: unknown source %q", p.Source)
	}
	tm.PWM = pwm.New(tm.tcu, src, clkHz(p.Rate))
	for _, out := range p.Outputs {
		pin := pwm.Pin(out.Channel)
		cycle, err := tm.PWM.ConfigureHardwarePWM(pin, out.Period)
		if err != nil {
			return fmt.Errorf("board: pwm channel %d: %w", out.Channel, err)
		}
		if err := tm.PWM.SetDutyCycle(pin, pwm.Value(out.Duty)); err != nil {
			return fmt.Errorf("board: pwm channel %d: %w", out.Channel, err)
		}
		tm.log.Info("pwm output started", "channel", out.Channel, "period", cycle, "duty", out.Duty, "rate", tm.PWM.Rate(pin))
	}
	return nil
}

// Attach hooks the timer into CPU hotplug: dying CPUs lose their devices,
// starting CPUs get them back.
func (tm *Timer) Attach(sys HotplugSystem) {
	sys.OnDying(tm.CPUDying)
	sys.OnStarting(func(cpu smp.CPU) {
		if err := tm.CPUStarting(cpu); err != nil {
			tm.mu.Lock()
			tm.errs = append(tm.errs, err)
			tm.mu.Unlock()
			tm.log.Error("cpu starting", "cpu", int(cpu), "err", err)
		}
	})
}

// CPUStarting restores the clock-event devices of cpu. Devices the CPU had
// before are registered again; only a CPU that never had one gets its
// hotplug channels set up.
func (tm *Timer) CPUStarting(cpu smp.CPU) error {
	if n := tm.tcu.ReregisterClockEvents(cpu); n > 0 {
		tm.log.Debug("clock events re-registered", "cpu", int(cpu), "count", n)
		return nil
	}

	var errs []error
	for _, ev := range tm.board.Hotplug {
		if smp.CPU(ev.CPU) != cpu {
			continue
		}
		ce, err := tm.tcu.SetupClockEvent(cpu, ev.Channel)
		if err != nil {
			errs = append(errs, fmt.Errorf("board: hotplug channel %d: %w", ev.Channel, err))
			continue
		}
		tm.mu.Lock()
		tm.hotplg = append(tm.hotplg, ce)
		tm.mu.Unlock()
		tm.log.Info("clock event registered", "name", ce.Device().Name, "cpu", int(cpu), "rate", ce.Device().Freq())
	}
	return errors.Join(errs...)
}

// CPUDying unregisters every device of cpu from the framework. The channels
// stay claimed for CPUStarting.
func (tm *Timer) CPUDying(cpu smp.CPU) {
	if tm.events == nil {
		return
	}
	n := tm.events.Teardown(cpu)
	tm.log.Debug("clock events torn down", "cpu", int(cpu), "count", n)
}

// Suspend stops every channel the timer uses.
func (tm *Timer) Suspend() {
	tm.tcu.DisableClocks()
	if tm.Clocksource != nil {
		tm.Clocksource.Disable()
	}
}

// Resume restarts the channels stopped by Suspend.
func (tm *Timer) Resume() {
	if tm.Clocksource != nil {
		tm.Clocksource.Enable()
	}
	tm.tcu.EnableClocks()
}

// ClockEvents returns the devices set up so far, boot ones first.
func (tm *Timer) ClockEvents() []*core.ClockEvent {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := append([]*core.ClockEvent(nil), tm.boot...)
	return append(out, tm.hotplg...)
}

// Errors returns the errors hotplug hooks ran into.
func (tm *Timer) Errors() []error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]error(nil), tm.errs...)
}

// Close releases every channel the timer claimed.
func (tm *Timer) Close() {
	for _, ce := range tm.ClockEvents() {
		ce.Channel().Release()
	}
	tm.mu.Lock()
	tm.boot, tm.hotplg = nil, nil
	tm.mu.Unlock()
	if tm.Clocksource != nil {
		tm.Clocksource.Close()
		tm.Clocksource = nil
	}
	if p := tm.board.PWM; p != nil && tm.PWM != nil {
		for _, out := range p.Outputs {
			tm.PWM.DisablePWM(pwm.Pin(out.Channel))
		}
		tm.PWM = nil
	}
}
