package core

import (
	"sync"

	"gotcu/smp"
)

type registration struct {
	ch  *Channel
	cpu smp.CPU
	ce  *ClockEvent
}

// Registry lists the channels backing clock-event devices, in setup order.
// It has a fixed capacity, like the channel table it indexes.
type Registry struct {
	mu      sync.Mutex
	entries []registration
}

// NewRegistry creates a registry holding at most capacity entries.
func NewRegistry(capacity int) *Registry {
	return &Registry{entries: make([]registration, 0, capacity)}
}

func (r *Registry) add(ch *Channel, cpu smp.CPU, ce *ClockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == cap(r.entries) {
		return &ChannelError{Op: "register", Channel: ch.idx, Err: ErrResourceExhausted}
	}
	r.entries = append(r.entries, registration{ch: ch, cpu: cpu, ce: ce})
	return nil
}

func (r *Registry) remove(ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ch == ch {
			copy(r.entries[i:], r.entries[i+1:])
			r.entries[len(r.entries)-1] = registration{}
			r.entries = r.entries[:len(r.entries)-1]
			return true
		}
	}
	return false
}

func (r *Registry) snapshot() []registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registration(nil), r.entries...)
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Owned returns the clock events registered for cpu, in setup order.
func (r *Registry) Owned(cpu smp.CPU) []*ClockEvent {
	var out []*ClockEvent
	for _, e := range r.snapshot() {
		if e.cpu == cpu {
			out = append(out, e.ce)
		}
	}
	return out
}

// EnableClocks starts every registered channel counting.
func (t *TCU) EnableClocks() {
	for _, e := range t.registry.snapshot() {
		e.ch.Enable()
	}
}

// DisableClocks stops every registered channel counting, e.g. before suspend.
func (t *TCU) DisableClocks() {
	for _, e := range t.registry.snapshot() {
		e.ch.Disable()
	}
}

// ReregisterClockEvents registers again the clock-event devices that cpu
// owned before the framework tore them down, e.g. when the CPU comes back
// from suspend. The channels keep their programming; only the current rate
// is read back. It returns the number of devices restored; a caller should
// set up a new device only when it returns zero.
func (t *TCU) ReregisterClockEvents(cpu smp.CPU) int {
	if t.events == nil {
		return 0
	}
	n := 0
	for _, e := range t.registry.snapshot() {
		if e.cpu != cpu || e.ce == nil || e.ce.dev == nil {
			continue
		}
		rate := e.ch.Rate()
		t.events.ConfigAndRegister(e.ce.dev, rate, ClockEventMinDelta, ClockEventMaxDelta)
		t.trace.Record(EvtReregister, e.ch.idx, cpu, rate, 0)
		n++
	}
	return n
}
