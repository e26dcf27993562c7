package core

import (
	"sync"

	"gotcu/smp"
)

// EventKind identifies a traced driver event.
type EventKind uint8

// Event kinds
const (
	EvtRequest     EventKind = iota + 1 // Channel claimed (v1 = flags)
	EvtRequestFail                      // Claim refused
	EvtRelease                          // Channel returned
	EvtStopTimeout                      // Stop bit never read back (v1 = polls)
	EvtRate                             // Rate programmed (v1 = asked, v2 = got)
	EvtSetup                            // Clock event set up (v1 = Hz)
	EvtArm                              // One-shot armed (v1 = ticks)
	EvtIRQFull                          // Full match serviced (v1 = line)
	EvtIRQHalf                          // Half match serviced (v1 = line)
	EvtHandoff                          // Event sent to owner (v1 = owner)
	EvtReregister                       // Clock event registered again (v1 = Hz)
)

var kindNames = [...]string{
	EvtRequest:     "REQUEST",
	EvtRequestFail: "REQUEST_FAIL",
	EvtRelease:     "RELEASE",
	EvtStopTimeout: "STOP_TIMEOUT",
	EvtRate:        "RATE",
	EvtSetup:       "SETUP",
	EvtArm:         "ARM",
	EvtIRQFull:     "IRQ_FULL",
	EvtIRQHalf:     "IRQ_HALF",
	EvtHandoff:     "HANDOFF",
	EvtReregister:  "REREGISTER",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// KindByName returns the kind printed as name, or 0.
func KindByName(name string) EventKind {
	for k, n := range kindNames {
		if n != "" && n == name {
			return EventKind(k)
		}
	}
	return 0
}

// TraceEvent is one entry of the trace ring.
type TraceEvent struct {
	Kind    EventKind
	Channel int
	CPU     smp.CPU
	Seq     uint32
	V1      uint32
	V2      uint32
}

// TraceRingSize is the number of events kept for post-mortem dumps.
const TraceRingSize = 32

// TraceRing keeps the last TraceRingSize driver events. Recording never
// blocks for long and never allocates, so it is safe from interrupt
// handlers.
type TraceRing struct {
	mu     sync.Mutex
	events [TraceRingSize]TraceEvent
	head   int
	seq    uint32
}

// NewTraceRing returns an empty ring.
func NewTraceRing() *TraceRing {
	return &TraceRing{}
}

// Record appends an event, overwriting the oldest once the ring is full.
func (r *TraceRing) Record(kind EventKind, ch int, cpu smp.CPU, v1, v2 uint32) {
	r.mu.Lock()
	r.seq++
	r.events[r.head] = TraceEvent{
		Kind:    kind,
		Channel: ch,
		CPU:     cpu,
		Seq:     r.seq,
		V1:      v1,
		V2:      v2,
	}
	r.head = (r.head + 1) % TraceRingSize
	r.mu.Unlock()
}

// Snapshot returns the recorded events, oldest first.
func (r *TraceRing) Snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, 0, TraceRingSize)
	for i := 0; i < TraceRingSize; i++ {
		evt := r.events[(r.head+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Dump writes the ring to w, one line per event, oldest first.
func (r *TraceRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("[TCU] === Trace Dump ===")
	for _, evt := range r.Snapshot() {
		w(FormatEvent(evt))
	}
	w("[TCU] === End Dump ===")
}

// FormatEvent renders evt the way Dump prints it.
func FormatEvent(evt TraceEvent) string {
	return "[TCU] " + evt.Kind.String() +
		" ch=" + itoa(evt.Channel) +
		" cpu=" + itoa(int(evt.CPU)) +
		" seq=" + utoa(evt.Seq) +
		" v1=" + utoa(evt.V1) +
		" v2=" + utoa(evt.V2)
}

// Clear empties the ring.
func (r *TraceRing) Clear() {
	r.mu.Lock()
	r.events = [TraceRingSize]TraceEvent{}
	r.head = 0
	r.seq = 0
	r.mu.Unlock()
}
