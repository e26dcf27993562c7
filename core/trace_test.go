package core

import (
	"strings"
	"testing"
)

func TestTraceRingWraps(t *testing.T) {
	r := NewTraceRing()
	for i := 0; i < TraceRingSize+5; i++ {
		r.Record(EvtArm, i, 0, uint32(i), 0)
	}

	events := r.Snapshot()
	if len(events) != TraceRingSize {
		t.Fatalf("got %d events, want %d", len(events), TraceRingSize)
	}
	if events[0].Channel != 5 || events[0].Seq != 6 {
		t.Errorf("oldest event = %+v, want channel 5 seq 6", events[0])
	}
	last := events[len(events)-1]
	if last.Seq != TraceRingSize+5 {
		t.Errorf("newest seq = %d", last.Seq)
	}

	r.Clear()
	if len(r.Snapshot()) != 0 {
		t.Error("Clear left events behind")
	}
}

func TestTraceDump(t *testing.T) {
	r := NewTraceRing()
	r.Record(EvtRate, 3, -1, 1000000, 750000)

	var out []string
	r.Dump(func(s string) { out = append(out, s) })

	if len(out) != 3 {
		t.Fatalf("dump = %q", out)
	}
	want := "[TCU] RATE ch=3 cpu=-1 seq=1 v1=1000000 v2=750000"
	if out[1] != want {
		t.Errorf("got %q, want %q", out[1], want)
	}
	if !strings.Contains(out[0], "Trace Dump") {
		t.Errorf("missing header: %q", out[0])
	}
}

func TestKindNames(t *testing.T) {
	for k := EvtRequest; k <= EvtReregister; k++ {
		if got := KindByName(k.String()); got != k {
			t.Errorf("KindByName(%q) = %d, want %d", k.String(), got, k)
		}
	}
	if KindByName("BOGUS") != 0 || EventKind(200).String() != "UNKNOWN" {
		t.Error("unknown kinds should not resolve")
	}
}

func TestItoa(t *testing.T) {
	tests := map[int]string{0: "0", 7: "7", -42: "-42", 65535: "65535"}
	for n, want := range tests {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
	if got := hex32(0x1f0); got != "1f0" {
		t.Errorf("hex32 = %q", got)
	}
}
