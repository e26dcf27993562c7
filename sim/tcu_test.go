package sim

import (
	"context"
	"testing"
	"time"

	"gotcu/clk"
	"gotcu/core"
	"gotcu/smp"

	"periph.io/x/conn/v3/physic"
)

func testDesc() *core.Desc {
	ch := make([]core.ChannelDesc, 16)
	ch[0] = core.Chan(2, core.FlagFIFO)
	ch[1] = core.Chan(2, 0)
	ch[5] = core.Chan(1, core.FlagFIFO)
	ch[15] = core.Chan(0, core.FlagOST)
	return &core.Desc{Channels: ch}
}

func testClocks() *clk.Fixed {
	return clk.NewFixed(map[string]physic.Frequency{
		clk.EXTAL: 48 * physic.MegaHertz,
	})
}

type lineLog struct {
	raised []int
}

func (l *lineLog) Raise(line int) error {
	l.raised = append(l.raised, line)
	return nil
}

// startChannel programs channel c to count from ext with prescale k.
func startChannel(d *Device, c int, k uint32) {
	d.Write32(core.RegTSCR, 1<<uint(c))
	d.Write32(core.RegTCSR(c), core.CSRExtEn|k<<core.CSRPrescaleShift)
	d.Write32(core.RegTESR, 1<<uint(c))
}

func TestResetState(t *testing.T) {
	d := New(testDesc(), testClocks())
	if d.Read32(core.RegTSR) != 0xffff {
		t.Errorf("TSR = %#x, want all stopped", d.Read32(core.RegTSR))
	}
	if d.Read32(core.RegTMR) != 0xffffffff {
		t.Errorf("TMR = %#x, want all masked", d.Read32(core.RegTMR))
	}
	if d.Read32(core.RegTER) != 0 {
		t.Error("counters enabled at reset")
	}
}

func TestNarrowCounting(t *testing.T) {
	d := New(testDesc(), testClocks())
	startChannel(d, 1, 3) // 750kHz

	if err := d.Advance(10 * time.Millisecond); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got := d.Read32(core.RegTCNT(1)); got != 7500 {
		t.Errorf("TCNT = %d, want 7500", got)
	}
	if d.Now() != 10*time.Millisecond {
		t.Errorf("Now = %v", d.Now())
	}

	// A stopped clock freezes the count
	d.Write32(core.RegTSSR, 1<<1)
	d.Advance(time.Millisecond)
	if got := d.Read32(core.RegTCNT(1)); got != 7500 {
		t.Errorf("TCNT = %d after stop, want 7500", got)
	}
}

func TestMatchFlags(t *testing.T) {
	d := New(testDesc(), testClocks())
	log := &lineLog{}
	d.Attach(log)

	d.Write32(core.RegTDFR(1), 1000)
	d.Write32(core.RegTDHR(1), 400)
	startChannel(d, 1, 3)

	d.Advance(time.Millisecond) // 750 counts
	if got := d.Read32(core.RegTFR); got != 1<<(core.HalfShift+1) {
		t.Errorf("TFR = %#x, want half flag only", got)
	}
	if len(log.raised) != 0 {
		t.Error("masked flag raised a line")
	}

	d.Write32(core.RegTMCR, 1<<1)
	d.Advance(time.Millisecond) // 1500 counts: full at 1000, restart
	if got := d.Read32(core.RegTFR); got&(1<<1) == 0 {
		t.Errorf("TFR = %#x, want full flag", got)
	}
	if got := d.Read32(core.RegTCNT(1)); got != 500 {
		t.Errorf("TCNT = %d, want 500 after restart", got)
	}
	if len(log.raised) == 0 || log.raised[0] != 2 {
		t.Errorf("raised lines = %v, want line 2", log.raised)
	}

	d.Write32(core.RegTFCR, 0xffffffff)
	log.raised = nil
	d.Advance(DefaultStep)
	if len(log.raised) != 0 {
		t.Errorf("line raised after ack: %v", log.raised)
	}
}

func TestOSTLatch(t *testing.T) {
	d := New(testDesc(), testClocks())
	d.Write32(core.RegOSTCSR, core.OSTCSRCntMD|core.CSRExtEn)
	d.Write32(core.RegOSTCNTL, 0xfffffff0)
	d.Write32(core.RegOSTCNTH, 7)
	d.Write32(core.RegOSTDR, 0xffffffff)
	d.Write32(core.RegTSCR, 1<<15)
	d.Write32(core.RegTESR, 1<<15)

	d.Advance(time.Microsecond) // 48 counts, carries into the high word
	lo := d.Read32(core.RegOSTCNTL)
	d.Advance(time.Microsecond)
	hi := d.Read32(core.RegOSTCNTHBUF)
	if hi != 8 || lo != 0x20 {
		t.Errorf("latched count = %#x:%#x, want 8:0x20", hi, lo)
	}
	if d.Read32(core.RegTFR)&(1<<15) == 0 {
		t.Error("compare match not flagged")
	}
}

func TestIntcDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys := smp.NewSystem(2)
	sys.Start(ctx)

	intc := NewIntc(sys)
	ran := make(chan smp.CPU, 4)
	if err := intc.RequestIRQ(1, "tcu-irq1", func(cpu smp.CPU) { ran <- cpu }); err != nil {
		t.Fatalf("RequestIRQ failed: %v", err)
	}
	if err := intc.RequestIRQ(1, "again", func(smp.CPU) {}); err != ErrLineBusy {
		t.Errorf("double request: got %v", err)
	}
	if err := intc.SetAffinity(1, 1); err != nil {
		t.Fatalf("SetAffinity failed: %v", err)
	}

	if err := intc.Raise(1); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if cpu := <-ran; cpu != 1 {
		t.Errorf("delivered on cpu %d, want 1", cpu)
	}

	// Lines routed to an offline CPU migrate
	if err := sys.Offline(1); err != nil {
		t.Fatalf("Offline failed: %v", err)
	}
	if err := intc.Raise(1); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if cpu := <-ran; cpu != 0 {
		t.Errorf("delivered on cpu %d, want 0", cpu)
	}
	if intc.Count(1) != 2 || intc.Name(1) != "tcu-irq1" {
		t.Errorf("Count = %d, Name = %q", intc.Count(1), intc.Name(1))
	}

	intc.FreeIRQ(1)
	if err := intc.Raise(1); err != nil {
		t.Errorf("raising a free line: %v", err)
	}
}

func TestDriverOnDevice(t *testing.T) {
	d := New(testDesc(), testClocks())
	intc := NewIntc(nil)
	d.Attach(intc)

	tcu, err := core.Init(core.Config{Regs: d, Desc: testDesc(), Clocks: testClocks(), IRQ: intc})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	ch, err := tcu.RequestChannel(5)
	if err != nil {
		t.Fatalf("RequestChannel failed: %v", err)
	}
	if rate := ch.SetRate(core.SourceEXTAL, 1000000); rate != 750000 {
		t.Fatalf("SetRate = %d", rate)
	}

	matches := 0
	ch.SetFullHandler(core.FullMatchFunc(func(c *core.Channel, cpu smp.CPU) {
		matches++
	}))
	ch.SetFull(750)
	ch.SetCount(0)
	ch.UnmaskFull()
	ch.Enable()

	d.Advance(10 * time.Millisecond)
	if matches != 10 {
		t.Errorf("got %d matches in 10ms at 1kHz, want 10", matches)
	}
	if intc.Count(1) != 10 {
		t.Errorf("line 1 delivered %d times", intc.Count(1))
	}
}
