package core

import (
	"sync/atomic"

	"gotcu/clockevents"
	"gotcu/smp"
)

// Clock-event devices count at about 1MHz from the crystal and accept
// deltas that fit the 16-bit data register.
const (
	ClockEventRate     = 1000000
	ClockEventRating   = 200
	ClockEventMinDelta = 10
	ClockEventMaxDelta = 1<<16 - 1
)

// EventState is the state of a clock-event channel.
type EventState uint8

const (
	EventIdle  EventState = iota // Handler installed, full match unmasked
	EventArmed                   // Counting towards the next event
)

func (s EventState) String() string {
	if s == EventArmed {
		return "armed"
	}
	return "idle"
}

// ClockEvent is a channel driven as a one-shot clock-event device of one CPU.
type ClockEvent struct {
	tcu   *TCU
	ch    *Channel
	owner smp.CPU
	dev   *clockevents.Device
	armed atomic.Bool
}

// SetupClockEvent claims channel idx (or any free channel) for a one-shot
// clock-event device owned by cpu and registers the device. On failure
// every step already taken is undone.
func (t *TCU) SetupClockEvent(cpu smp.CPU, idx int) (*ClockEvent, error) {
	if t.events == nil {
		return nil, &ChannelError{Op: "setup clock event", Channel: idx, Err: ErrNoDevice}
	}

	ch, err := t.RequestChannel(idx)
	if err != nil {
		return nil, err
	}
	ch.owner.Store(int32(cpu))

	rate := ch.SetRate(SourceEXTAL, ClockEventRate)
	if rate == 0 {
		ch.Release()
		return nil, &ChannelError{Op: "setup clock event", Channel: ch.idx, Err: ErrClockUnavailable}
	}

	ce := &ClockEvent{tcu: t, ch: ch, owner: cpu}
	ce.dev = &clockevents.Device{
		Name:         "tcu-chan" + itoa(ch.idx),
		Features:     clockevents.FeatOneshot,
		Rating:       ClockEventRating,
		CPU:          cpu,
		SetNextEvent: ce.SetNextEvent,
	}

	// The entry is only published once the device is complete
	if err := t.registry.add(ch, cpu, ce); err != nil {
		ch.Release()
		return nil, err
	}

	ch.SetFullHandler(ce)
	ch.UnmaskFull()
	t.events.ConfigAndRegister(ce.dev, rate, ClockEventMinDelta, ClockEventMaxDelta)

	t.trace.Record(EvtSetup, ch.idx, cpu, rate, 0)
	return ce, nil
}

// SetNextEvent arms the channel to match after ticks counts. The range is
// not checked beyond what the data register can hold; the framework clamps
// to the registered bounds.
func (ce *ClockEvent) SetNextEvent(ticks uint64) error {
	if ticks > uint64(^uint32(0)) {
		return &ChannelError{Op: "set next event", Channel: ce.ch.idx, Err: ErrInvalidArgument}
	}
	if err := ce.ch.SetFull(uint32(ticks)); err != nil {
		return err
	}
	if err := ce.ch.SetCount(0); err != nil {
		return err
	}
	ce.armed.Store(true)
	ce.ch.Enable()
	ce.tcu.trace.Record(EvtArm, ce.ch.idx, ce.owner, uint32(ticks), 0)
	return nil
}

// HandleFullMatch stops the one-shot channel and delivers the event on the
// owning CPU. The interrupt may land on another CPU than the owner; the
// event is then handed over with a synchronous cross-CPU call. The channel
// is disabled before the hand-off so it cannot re-enter.
func (ce *ClockEvent) HandleFullMatch(ch *Channel, cpu smp.CPU) {
	ch.Disable()
	ce.armed.Store(false)

	if cpu == ce.owner || ce.tcu.smp == nil {
		ce.dev.Handle(cpu)
		return
	}

	ce.tcu.trace.Record(EvtHandoff, ch.idx, cpu, uint32(ce.owner), 0)
	DebugAsync("[TCU] ch" + itoa(ch.idx) + " match on cpu" + itoa(int(cpu)) + ", handing off to cpu" + itoa(int(ce.owner)))
	if err := ce.tcu.smp.CallFunctionSingle(cpu, ce.owner, ce.dev.Handle); err != nil {
		warn("clock event channel " + itoa(ch.idx) + ": hand-off to cpu " +
			itoa(int(ce.owner)) + ": " + err.Error())
	}
}

// Device returns the registered clock-event device.
func (ce *ClockEvent) Device() *clockevents.Device {
	return ce.dev
}

// Channel returns the backing channel.
func (ce *ClockEvent) Channel() *Channel {
	return ce.ch
}

// Owner returns the CPU the device belongs to.
func (ce *ClockEvent) Owner() smp.CPU {
	return ce.owner
}

// State reports whether an event is pending.
func (ce *ClockEvent) State() EventState {
	if ce.armed.Load() {
		return EventArmed
	}
	return EventIdle
}
