// Package config loads board profiles: which TCU channels a SoC has, the
// rates of its source clocks and how the timer layer uses the channels.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"gotcu/clk"
	"gotcu/core"
	"gotcu/smp"
)

// Frequency is a rate written like "48MHz" or "32.768kHz".
type Frequency struct {
	physic.Frequency
}

// UnmarshalYAML parses the frequency string.
func (f *Frequency) UnmarshalYAML(n *yaml.Node) error {
	if err := f.Set(n.Value); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

// MarshalYAML writes the frequency back as a string.
func (f Frequency) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// ChannelConfig describes one present channel.
type ChannelConfig struct {
	Index int   `yaml:"index"`
	IRQ   uint8 `yaml:"irq"`
	FIFO  bool  `yaml:"fifo,omitempty"`
	OST   bool  `yaml:"ost,omitempty"`
}

// ClocksourceConfig selects the free running channel used as clocksource.
type ClocksourceConfig struct {
	Channel int       `yaml:"channel"`
	Source  string    `yaml:"source"`
	Rate    Frequency `yaml:"rate"`
}

// ClockEventConfig binds a channel to a CPU as its clock-event device.
type ClockEventConfig struct {
	Channel int `yaml:"channel"`
	CPU     int `yaml:"cpu"`
}

// PWMOutput is one PWM output: its channel, period in channel counts and
// duty cycle (0 to 255).
type PWMOutput struct {
	Channel int    `yaml:"channel"`
	Period  uint32 `yaml:"period"`
	Duty    uint32 `yaml:"duty"`
}

// PWMConfig lists the PWM outputs, which all count from the same clock.
type PWMConfig struct {
	Source  string      `yaml:"source"`
	Rate    Frequency   `yaml:"rate"`
	Outputs []PWMOutput `yaml:"outputs"`
}

// Board is a board profile.
type Board struct {
	Name        string               `yaml:"name"`
	CPUs        int                  `yaml:"cpus"`
	Clocks      map[string]Frequency `yaml:"clocks"`
	Channels    []ChannelConfig      `yaml:"channels"`
	Clocksource *ClocksourceConfig   `yaml:"clocksource,omitempty"`
	ClockEvents []ClockEventConfig   `yaml:"clockevents"`
	Hotplug     []ClockEventConfig   `yaml:"hotplug,omitempty"`
	IRQAffinity map[int]int          `yaml:"irq_affinity,omitempty"`
	PWM         *PWMConfig           `yaml:"pwm,omitempty"`
	TickHz      uint32               `yaml:"tick_hz"`
}

var ErrInvalid = errors.New("config: invalid board profile")

// LoadConfig parses a YAML board profile, applies defaults and validates it.
// Unknown keys are rejected.
func LoadConfig(data []byte) (*Board, error) {
	var board Board

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&board); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyDefaults(&board)

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// LoadFile reads and parses a board profile from path.
func LoadFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return LoadConfig(data)
}

// applyDefaults fills in missing values
func applyDefaults(b *Board) {
	if b.Name == "" {
		b.Name = "board"
	}
	if b.CPUs == 0 {
		b.CPUs = 1
	}
	if b.TickHz == 0 {
		b.TickHz = 100
	}
	if cs := b.Clocksource; cs != nil {
		if cs.Source == "" {
			cs.Source = clk.EXTAL
		}
		if cs.Rate.Frequency == 0 {
			cs.Rate.Frequency = physic.MegaHertz
		}
	}
	if p := b.PWM; p != nil {
		if p.Source == "" {
			p.Source = clk.EXTAL
		}
		if p.Rate.Frequency == 0 {
			p.Rate.Frequency = physic.MegaHertz
		}
		for i := range p.Outputs {
			if p.Outputs[i].Period == 0 {
				p.Outputs[i].Period = 1000
			}
		}
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the profile for consistency.
func (b *Board) Validate() error {
	if b.CPUs < 1 {
		return invalid("cpus must be at least 1, got %d", b.CPUs)
	}
	if len(b.Channels) == 0 {
		return invalid("no channels")
	}

	seen := make(map[int]ChannelConfig, len(b.Channels))
	ost := 0
	for _, c := range b.Channels {
		if c.Index < 0 || c.Index >= core.MaxChannels {
			return invalid("channel index %d out of range", c.Index)
		}
		if _, dup := seen[c.Index]; dup {
			return invalid("channel %d listed twice", c.Index)
		}
		if int(c.IRQ) >= core.NumIRQs {
			return invalid("channel %d: irq %d out of range", c.Index, c.IRQ)
		}
		if c.OST {
			ost++
		}
		seen[c.Index] = c
	}
	if ost > 1 {
		return invalid("%d channels marked ost, at most one allowed", ost)
	}

	for name, f := range b.Clocks {
		if _, ok := core.ParseSource(name); !ok {
			return invalid("unknown clock %q", name)
		}
		if clk.Hz(f.Frequency) == 0 {
			return invalid("clock %s: rate %v below 1Hz", name, f.Frequency)
		}
	}

	used := make(map[int]string)
	claim := func(ch int, what string) error {
		if _, ok := seen[ch]; !ok {
			return invalid("%s: channel %d not present", what, ch)
		}
		if prev, ok := used[ch]; ok {
			return invalid("%s: channel %d already used by %s", what, ch, prev)
		}
		used[ch] = what
		return nil
	}

	if cs := b.Clocksource; cs != nil {
		if err := claim(cs.Channel, "clocksource"); err != nil {
			return err
		}
		if _, ok := core.ParseSource(cs.Source); !ok {
			return invalid("clocksource: unknown source %q", cs.Source)
		}
		if _, ok := b.Clocks[cs.Source]; !ok {
			return invalid("clocksource: clock %q has no rate", cs.Source)
		}
	}

	for _, list := range []struct {
		what string
		evs  []ClockEventConfig
	}{{"clockevent", b.ClockEvents}, {"hotplug", b.Hotplug}} {
		for _, ev := range list.evs {
			if err := claim(ev.Channel, list.what); err != nil {
				return err
			}
			if ev.CPU < 0 || ev.CPU >= b.CPUs {
				return invalid("%s channel %d: cpu %d out of range", list.what, ev.Channel, ev.CPU)
			}
			if seen[ev.Channel].OST {
				return invalid("%s channel %d: the ost cannot drive clock events", list.what, ev.Channel)
			}
		}
	}
	if len(b.ClockEvents)+len(b.Hotplug) > 0 {
		if _, ok := b.Clocks[clk.EXTAL]; !ok {
			return invalid("clock events need the %s clock", clk.EXTAL)
		}
	}

	if p := b.PWM; p != nil {
		if _, ok := core.ParseSource(p.Source); !ok {
			return invalid("pwm: unknown source %q", p.Source)
		}
		if _, ok := b.Clocks[p.Source]; !ok {
			return invalid("pwm: clock %q has no rate", p.Source)
		}
		for _, out := range p.Outputs {
			if err := claim(out.Channel, "pwm"); err != nil {
				return err
			}
			if seen[out.Channel].OST {
				return invalid("pwm channel %d: the ost has no output pin", out.Channel)
			}
			if out.Duty > 255 {
				return invalid("pwm channel %d: duty %d above 255", out.Channel, out.Duty)
			}
		}
	}

	for line, cpu := range b.IRQAffinity {
		if line < 0 || line >= core.NumIRQs {
			return invalid("irq_affinity: line %d out of range", line)
		}
		if cpu < 0 || cpu >= b.CPUs {
			return invalid("irq_affinity: line %d: cpu %d out of range", line, cpu)
		}
	}
	return nil
}

// Desc builds the channel table of the board.
func (b *Board) Desc() *core.Desc {
	n := 0
	for _, c := range b.Channels {
		if c.Index+1 > n {
			n = c.Index + 1
		}
	}
	desc := &core.Desc{Channels: make([]core.ChannelDesc, n)}
	for _, c := range b.Channels {
		var flags core.ChannelFlags
		if c.FIFO {
			flags |= core.FlagFIFO
		}
		if c.OST {
			flags |= core.FlagOST
		}
		desc.Channels[c.Index] = core.Chan(c.IRQ, flags)
	}
	return desc
}

// ClockProvider returns the board's clocks as fixed-rate clocks.
func (b *Board) ClockProvider() *clk.Fixed {
	rates := make(map[string]physic.Frequency, len(b.Clocks))
	for name, f := range b.Clocks {
		rates[name] = f.Frequency
	}
	return clk.NewFixed(rates)
}

// ClockEventCPUs returns the CPUs with a clock-event channel, hotplug ones
// included, in ascending order.
func (b *Board) ClockEventCPUs() []smp.CPU {
	has := make([]bool, b.CPUs)
	for _, ev := range b.ClockEvents {
		has[ev.CPU] = true
	}
	for _, ev := range b.Hotplug {
		has[ev.CPU] = true
	}
	var out []smp.CPU
	for cpu, ok := range has {
		if ok {
			out = append(out, smp.CPU(cpu))
		}
	}
	return out
}

// Marshal writes the profile back as YAML.
func (b *Board) Marshal() ([]byte, error) {
	return yaml.Marshal(b)
}

// DefaultBoard returns a single-CPU board with one clock-event channel and
// the OST as clocksource.
func DefaultBoard() *Board {
	return &Board{
		Name: "minimal",
		CPUs: 1,
		Clocks: map[string]Frequency{
			clk.EXTAL: {48 * physic.MegaHertz},
		},
		Channels: []ChannelConfig{
			{Index: 0, IRQ: 2, FIFO: true},
			{Index: 1, IRQ: 0, OST: true},
		},
		Clocksource: &ClocksourceConfig{
			Channel: 1,
			Source:  clk.EXTAL,
			Rate:    Frequency{physic.MegaHertz},
		},
		ClockEvents: []ClockEventConfig{{Channel: 0, CPU: 0}},
		TickHz:      100,
	}
}
