package core

// Hardware limits
const (
	MaxChannels = 16
	NumIRQs     = 3
)

// ChannelFlags describe channel capabilities.
type ChannelFlags uint8

const (
	FlagFIFO ChannelFlags = 1 << iota // FIFO backed (PWM capable) channel
	FlagOST                           // 64-bit free running operating system timer
)

// ChannelDesc describes one hardware channel of a SoC.
type ChannelDesc struct {
	Present bool
	IRQ     uint8 // Interrupt line the channel's match flags are wired to
	Flags   ChannelFlags
}

// Chan describes a present channel wired to irq.
func Chan(irq uint8, flags ChannelFlags) ChannelDesc {
	return ChannelDesc{Present: true, IRQ: irq, Flags: flags}
}

// IsOST reports whether the channel is the wide free running counter.
func (c ChannelDesc) IsOST() bool {
	return c.Flags&FlagOST != 0
}

// Desc is the channel table of a SoC, indexed by channel number.
// Absent channels are zero entries.
type Desc struct {
	Channels []ChannelDesc
}

// NumChannels returns the size of the table.
func (d *Desc) NumChannels() int {
	return len(d.Channels)
}

// Validate checks the table against the hardware limits.
func (d *Desc) Validate() error {
	if d == nil || len(d.Channels) == 0 {
		return &ChannelError{Op: "validate", Channel: AnyChannel, Err: ErrInvalidArgument}
	}
	if len(d.Channels) > MaxChannels {
		return &ChannelError{Op: "validate", Channel: len(d.Channels) - 1, Err: ErrInvalidArgument}
	}
	ost := 0
	for i, c := range d.Channels {
		if !c.Present {
			continue
		}
		if c.IRQ >= NumIRQs {
			return &ChannelError{Op: "validate irq", Channel: i, Err: ErrInvalidArgument}
		}
		if c.IsOST() {
			ost++
			if ost > 1 {
				return &ChannelError{Op: "validate ost", Channel: i, Err: ErrInvalidArgument}
			}
		}
	}
	return nil
}
