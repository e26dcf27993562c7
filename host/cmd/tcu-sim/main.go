// Command tcu-sim boots the timer layer of a board on the emulated TCU and
// runs it in virtual time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"gotcu/board"
	"gotcu/clockevents"
	"gotcu/config"
	"gotcu/core"
	"gotcu/pwm"
	"gotcu/sim"
	"gotcu/smp"
	"gotcu/soc/jz4780"
)

var (
	configPath = flag.String("config", "", "Board profile (default: built-in JZ4780 profile)")
	duration   = flag.Duration("duration", time.Second, "Virtual time to run")
	step       = flag.Duration("step", sim.DefaultStep, "Virtual time resolution")
	realtime   = flag.Bool("realtime", false, "Pace virtual time with the wall clock")
	dump       = flag.Bool("dump", false, "Dump the trace ring at exit")
	debug      = flag.Bool("debug", false, "Enable timer layer debug output")
	writeCfg   = flag.Bool("print-config", false, "Print the board profile and exit")
)

// chunk is how much virtual time passes between wall clock checks.
const chunk = 10 * time.Millisecond

func loadBoard() (*config.Board, error) {
	if *configPath == "" {
		return jz4780.Profile()
	}
	return config.LoadFile(*configPath)
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	b, err := loadBoard()
	if err != nil {
		logger.Error("load board", "err", err)
		os.Exit(1)
	}
	if *writeCfg {
		// The built-in profile is printed as shipped, comments included
		data := jz4780.ProfileYAML()
		if *configPath != "" {
			if data, err = b.Marshal(); err != nil {
				logger.Error("marshal board", "err", err)
				os.Exit(1)
			}
		}
		os.Stdout.Write(data)
		return
	}

	core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
	core.SetDebugEnabled(*debug)
	if *debug {
		// Hand-off messages come from interrupt context
		core.InitAsyncDebug()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, b, logger); err != nil {
		logger.Error("simulation failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, b *config.Board, logger *slog.Logger) error {
	sys := smp.NewSystem(b.CPUs)
	sys.Start(ctx)

	clocks := b.ClockProvider()
	desc := b.Desc()
	dev := sim.New(desc, clocks)
	dev.SetStep(*step)
	intc := sim.NewIntc(sys)
	dev.Attach(intc)

	events := clockevents.New()
	events.SetTickRate(b.TickHz)
	events.SetErrorFunc(func(d *clockevents.Device, err error) {
		logger.Warn("tick re-arm failed", "device", d.Name, "cpu", int(d.CPU), "err", err)
	})

	tcu, err := core.Init(core.Config{
		Regs:   dev,
		Desc:   desc,
		Clocks: clocks,
		IRQ:    intc,
		SMP:    sys,
		Events: events,
	})
	if err != nil {
		return fmt.Errorf("init tcu: %w", err)
	}
	defer tcu.Close()

	for line, cpu := range b.IRQAffinity {
		if err := intc.SetAffinity(line, smp.CPU(cpu)); err != nil {
			return fmt.Errorf("irq %d affinity: %w", line, err)
		}
	}

	timer, err := board.Setup(tcu, b, events, logger)
	if err != nil {
		return err
	}
	defer timer.Close()
	timer.Attach(sys)

	// Secondary CPUs start after the boot CPU has set up the timer
	hotplug := hotplugCPUs(b)
	for _, cpu := range hotplug {
		if err := cycleCPU(sys, cpu); err != nil {
			return err
		}
	}

	logger.Info("running", "board", b.Name, "cpus", b.CPUs, "duration", *duration)
	start := time.Now()
	cycled := false
	for elapsed := time.Duration(0); elapsed < *duration; elapsed += chunk {
		if ctx.Err() != nil {
			break
		}
		d := chunk
		if rest := *duration - elapsed; rest < d {
			d = rest
		}
		if err := dev.Advance(d); err != nil {
			logger.Warn("interrupt delivery", "err", err)
		}

		// Take the hotplug CPUs down and up once halfway through
		if !cycled && elapsed >= *duration/2 {
			cycled = true
			for _, cpu := range hotplug {
				if err := cycleCPU(sys, cpu); err != nil {
					return err
				}
			}
		}

		if *realtime {
			if ahead := dev.Now() - time.Since(start); ahead > 0 {
				time.Sleep(ahead)
			}
		}
	}
	for _, err := range timer.Errors() {
		logger.Error("hotplug", "err", err)
	}

	report(dev, tcu, timer, events, intc, b)
	if *dump {
		tcu.Trace().Dump(func(s string) { fmt.Println(s) })
	}
	return nil
}

func hotplugCPUs(b *config.Board) []smp.CPU {
	seen := make(map[int]bool)
	var out []smp.CPU
	for _, ev := range b.Hotplug {
		if !seen[ev.CPU] {
			seen[ev.CPU] = true
			out = append(out, smp.CPU(ev.CPU))
		}
	}
	return out
}

func cycleCPU(sys *smp.System, cpu smp.CPU) error {
	if err := sys.Offline(cpu); err != nil {
		return fmt.Errorf("offline cpu %d: %w", cpu, err)
	}
	if err := sys.Online(cpu); err != nil {
		return fmt.Errorf("online cpu %d: %w", cpu, err)
	}
	return nil
}

func report(dev *sim.Device, tcu *core.TCU, timer *board.Timer, events *clockevents.Framework, intc *sim.Intc, b *config.Board) {
	fmt.Printf("virtual time: %v\n", dev.Now())
	if cs := timer.Clocksource; cs != nil {
		fmt.Printf("clocksource %s: count=%d rate=%v sched_clock=%v\n",
			cs.Name, cs.Read(), cs.Frequency(), cs.SchedClock())
	}
	for cpu := 0; cpu < b.CPUs; cpu++ {
		name := "-"
		if d := events.Active(smp.CPU(cpu)); d != nil {
			name = d.Name
		}
		fmt.Printf("cpu %d: ticks=%d tick_errors=%d tick_device=%s\n",
			cpu, events.Ticks(smp.CPU(cpu)), events.TickErrors(smp.CPU(cpu)), name)
	}
	for _, ce := range timer.ClockEvents() {
		d := ce.Device()
		fmt.Printf("%s: owner=cpu%d events=%d rate=%dHz state=%v\n",
			d.Name, ce.Owner(), d.Events(), d.Freq(), ce.State())
	}
	if p := b.PWM; p != nil && timer.PWM != nil {
		for _, out := range p.Outputs {
			pin := pwm.Pin(out.Channel)
			duty, err := timer.PWM.DutyCycle(pin)
			if err != nil {
				continue
			}
			level := "low"
			if dev.Output(out.Channel) {
				level = "high"
			}
			fmt.Printf("pwm channel %d: duty=%d/%d rate=%dHz output=%s\n",
				out.Channel, duty, timer.PWM.GetMaxValue(), timer.PWM.Rate(pin), level)
		}
	}
	for line := 0; line < core.NumIRQs; line++ {
		channels, single := tcu.LineChannels(line)
		fmt.Printf("%s: channels=%#06x single=%d delivered=%d\n",
			intc.Name(line), channels, single, intc.Count(line))
	}
}
