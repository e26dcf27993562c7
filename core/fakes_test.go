package core

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"gotcu/clk"
	"gotcu/clockevents"
	"gotcu/smp"

	"periph.io/x/conn/v3/physic"
)

// fakeRegs is a register bank that applies the set/clear register pairs
// and logs every write.
type fakeRegs struct {
	mu     sync.Mutex
	vals   map[uint32]uint32
	writes []regWrite
	stuck  bool // Stop register never reads back set
}

type regWrite struct {
	off uint32
	val uint32
}

func newFakeRegs() *fakeRegs {
	return &fakeRegs{vals: make(map[uint32]uint32)}
}

func (r *fakeRegs) Read32(off uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if off == RegTSR && r.stuck {
		return 0
	}
	return r.vals[off]
}

func (r *fakeRegs) Write32(off, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, regWrite{off, val})
	switch off {
	case RegTESR:
		r.vals[RegTER] |= val
	case RegTECR:
		r.vals[RegTER] &^= val
	case RegTSSR:
		r.vals[RegTSR] |= val
	case RegTSCR:
		r.vals[RegTSR] &^= val
	case RegTFSR:
		r.vals[RegTFR] |= val
	case RegTFCR:
		r.vals[RegTFR] &^= val
	case RegTMSR:
		r.vals[RegTMR] |= val
	case RegTMCR:
		r.vals[RegTMR] &^= val
	default:
		r.vals[off] = val
	}
}

func (r *fakeRegs) get(off uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vals[off]
}

func (r *fakeRegs) set(off, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals[off] = val
}

// writesTo returns the values written to off since the last clearLog.
func (r *fakeRegs) writesTo(off uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, w := range r.writes {
		if w.off == off {
			out = append(out, w.val)
		}
	}
	return out
}

func (r *fakeRegs) clearLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

// fakeIRQ records requested lines. Requesting failLine fails.
type fakeIRQ struct {
	handlers map[int]func(smp.CPU)
	names    map[int]string
	freed    []int
	failLine int
}

func newFakeIRQ() *fakeIRQ {
	return &fakeIRQ{
		handlers: make(map[int]func(smp.CPU)),
		names:    make(map[int]string),
		failLine: -1,
	}
}

func (f *fakeIRQ) RequestIRQ(line int, name string, handler func(cpu smp.CPU)) error {
	if line == f.failLine {
		return errors.New("line busy")
	}
	f.handlers[line] = handler
	f.names[line] = name
	return nil
}

func (f *fakeIRQ) FreeIRQ(line int) {
	f.freed = append(f.freed, line)
	delete(f.handlers, line)
}

// fakeCaller runs cross-CPU calls inline and records them.
type fakeCaller struct {
	calls []fakeCall
	err   error
}

type fakeCall struct {
	from, to smp.CPU
}

func (f *fakeCaller) CallFunctionSingle(from, to smp.CPU, fn func(cpu smp.CPU)) error {
	f.calls = append(f.calls, fakeCall{from, to})
	if f.err != nil {
		return f.err
	}
	fn(to)
	return nil
}

// jzDesc mirrors the JZ4780 channel table.
func jzDesc() *Desc {
	ch := make([]ChannelDesc, 16)
	ch[0] = Chan(2, FlagFIFO)
	ch[1] = Chan(2, 0)
	ch[2] = Chan(2, 0)
	ch[3] = Chan(2, FlagFIFO)
	ch[4] = Chan(2, FlagFIFO)
	ch[5] = Chan(1, FlagFIFO)
	ch[6] = Chan(2, 0)
	ch[7] = Chan(2, 0)
	ch[15] = Chan(0, FlagOST)
	return &Desc{Channels: ch}
}

type testRig struct {
	tcu    *TCU
	regs   *fakeRegs
	irq    *fakeIRQ
	clocks *clk.Fixed
	events *clockevents.Framework
	caller *fakeCaller
}

func newRig(t *testing.T, desc *Desc) *testRig {
	t.Helper()
	r := &testRig{
		regs: newFakeRegs(),
		irq:  newFakeIRQ(),
		clocks: clk.NewFixed(map[string]physic.Frequency{
			clk.EXTAL: 48 * physic.MegaHertz,
			clk.RTC:   32768 * physic.Hertz,
		}),
		events: clockevents.New(),
		caller: &fakeCaller{},
	}
	tcu, err := Init(Config{
		Regs:   r.regs,
		Desc:   desc,
		Clocks: r.clocks,
		IRQ:    r.irq,
		SMP:    r.caller,
		Events: r.events,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	r.tcu = tcu
	return r
}

// captureDebug redirects debug output for the duration of the test.
func captureDebug(t *testing.T) *[]string {
	t.Helper()
	var mu sync.Mutex
	lines := &[]string{}
	SetDebugWriter(func(s string) {
		mu.Lock()
		*lines = append(*lines, s)
		mu.Unlock()
	})
	t.Cleanup(func() { SetDebugWriter(nil) })
	return lines
}

func containsLine(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}
