package core_test

import (
	"context"
	"testing"
	"time"

	"gotcu/clk"
	"gotcu/clockevents"
	"gotcu/core"
	"gotcu/sim"
	"gotcu/smp"

	"periph.io/x/conn/v3/physic"
)

// twoChannelDesc has a FIFO channel on line 2 and the OST as channel 1.
func twoChannelDesc() *core.Desc {
	return &core.Desc{Channels: []core.ChannelDesc{
		core.Chan(2, core.FlagFIFO),
		core.Chan(0, core.FlagOST),
	}}
}

type bench struct {
	dev    *sim.Device
	intc   *sim.Intc
	sys    *smp.System
	events *clockevents.Framework
	tcu    *core.TCU
}

func newBench(t *testing.T, cpus int) *bench {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clocks := clk.NewFixed(map[string]physic.Frequency{clk.EXTAL: 48 * physic.MegaHertz})
	desc := twoChannelDesc()
	b := &bench{
		dev:    sim.New(desc, clocks),
		sys:    smp.NewSystem(cpus),
		events: clockevents.New(),
	}
	b.sys.Start(ctx)
	b.intc = sim.NewIntc(b.sys)
	b.dev.Attach(b.intc)

	tcu, err := core.Init(core.Config{
		Regs:   b.dev,
		Desc:   desc,
		Clocks: clocks,
		IRQ:    b.intc,
		SMP:    b.sys,
		Events: b.events,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	b.tcu = tcu
	return b
}

func TestOSTCountsMonotonically(t *testing.T) {
	b := newBench(t, 1)

	ost, err := b.tcu.RequestChannel(1)
	if err != nil {
		t.Fatalf("RequestChannel failed: %v", err)
	}
	if rate := ost.SetRate(core.SourceEXTAL, 1000000); rate != 750000 {
		t.Fatalf("SetRate = %d, want 750000", rate)
	}
	ost.Enable()

	prev := ost.ReadCount()
	for i := 0; i < 5; i++ {
		if err := b.dev.Advance(10 * time.Millisecond); err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		now := ost.ReadCount()
		if now-prev != 7500 {
			t.Errorf("step %d: count moved by %d, want 7500", i, now-prev)
		}
		prev = now
	}
}

func TestClockEventTicksAcrossCPUs(t *testing.T) {
	b := newBench(t, 2)
	b.events.SetTickRate(100)

	// The line stays routed to CPU 0, so every expiry is handed to CPU 1
	ce, err := b.tcu.SetupClockEvent(1, 0)
	if err != nil {
		t.Fatalf("SetupClockEvent failed: %v", err)
	}
	if ce.State() != core.EventArmed {
		t.Fatal("tick device not armed on registration")
	}

	if err := b.dev.Advance(100 * time.Millisecond); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got := b.events.Ticks(1); got != 10 {
		t.Errorf("cpu 1 got %d ticks in 100ms at 100Hz, want 10", got)
	}
	if got := b.events.Ticks(0); got != 0 {
		t.Errorf("cpu 0 got %d ticks", got)
	}

	handoffs := 0
	for _, evt := range b.tcu.Trace().Snapshot() {
		if evt.Kind == core.EvtHandoff {
			handoffs++
			if evt.CPU != 0 || evt.V1 != 1 {
				t.Errorf("hand-off %+v, want from 0 to 1", evt)
			}
		}
	}
	if handoffs == 0 {
		t.Error("no hand-off traced")
	}
}
