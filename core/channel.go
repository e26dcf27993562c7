package core

import (
	"sync"
	"sync/atomic"

	"gotcu/smp"
)

// FullMatchHandler is called when a channel's count reaches its full data value.
type FullMatchHandler interface {
	HandleFullMatch(ch *Channel, cpu smp.CPU)
}

// HalfMatchHandler is called when a channel's count reaches its half data value.
type HalfMatchHandler interface {
	HandleHalfMatch(ch *Channel, cpu smp.CPU)
}

// FullMatchFunc adapts a function to FullMatchHandler.
type FullMatchFunc func(ch *Channel, cpu smp.CPU)

func (f FullMatchFunc) HandleFullMatch(ch *Channel, cpu smp.CPU) { f(ch, cpu) }

// HalfMatchFunc adapts a function to HalfMatchHandler.
type HalfMatchFunc func(ch *Channel, cpu smp.CPU)

func (f HalfMatchFunc) HandleHalfMatch(ch *Channel, cpu smp.CPU) { f(ch, cpu) }

type matchHandlers struct {
	full FullMatchHandler
	half HalfMatchHandler
}

// Channel is one hardware counter. Channels live in the TCU's table and are
// obtained with RequestChannel.
//
// A channel is free while stopped is set; claiming it clears the flag.
type Channel struct {
	tcu *TCU
	idx int

	owner   atomic.Int32
	stopped atomic.Bool
	enabled atomic.Bool

	mu       sync.Mutex // serialises handler updates
	handlers atomic.Pointer[matchHandlers]
}

// Index returns the hardware channel number.
func (c *Channel) Index() int {
	return c.idx
}

// Desc returns the channel's descriptor.
func (c *Channel) Desc() ChannelDesc {
	return c.tcu.desc.Channels[c.idx]
}

// Owner returns the CPU a clock-event device on this channel belongs to.
func (c *Channel) Owner() smp.CPU {
	return smp.CPU(c.owner.Load())
}

// Stopped reports whether the channel is free.
func (c *Channel) Stopped() bool {
	return c.stopped.Load()
}

// Enabled reports whether the channel is counting.
func (c *Channel) Enabled() bool {
	return c.enabled.Load()
}

func (c *Channel) bit() uint32 {
	return 1 << uint(c.idx)
}

func (c *Channel) halfBit() uint32 {
	return 1 << uint(HalfShift+c.idx)
}

func (c *Channel) isOST() bool {
	return c.tcu.desc.Channels[c.idx].IsOST()
}

// csr returns the control register offset of the channel.
func (c *Channel) csr() uint32 {
	if c.isOST() {
		return RegOSTCSR
	}
	return RegTCSR(c.idx)
}

// stop gates the channel's clock.
func (c *Channel) stop() {
	c.tcu.regs.Write32(RegTSSR, c.bit())
}

// start ungates the channel's clock.
func (c *Channel) start() {
	c.tcu.regs.Write32(RegTSCR, c.bit())
}

// Enable starts the channel counting.
func (c *Channel) Enable() {
	c.tcu.regs.Write32(RegTESR, c.bit())
	c.enabled.Store(true)
}

// Disable stops the channel counting. It is always safe to call and is how
// a pending one-shot event is cancelled.
func (c *Channel) Disable() {
	c.tcu.regs.Write32(RegTECR, c.bit())
	c.enabled.Store(false)
}

// MaskFull masks the full match interrupt.
func (c *Channel) MaskFull() {
	c.tcu.regs.Write32(RegTMSR, c.bit())
}

// UnmaskFull unmasks the full match interrupt.
func (c *Channel) UnmaskFull() {
	c.tcu.regs.Write32(RegTMCR, c.bit())
}

// MaskHalf masks the half match interrupt.
func (c *Channel) MaskHalf() {
	c.tcu.regs.Write32(RegTMSR, c.halfBit())
}

// UnmaskHalf unmasks the half match interrupt.
func (c *Channel) UnmaskHalf() {
	c.tcu.regs.Write32(RegTMCR, c.halfBit())
}

// ReadCount returns the current count. The OST counter is 64 bits wide and
// read as the low word followed by the high word latched by that read;
// other channels return their 16-bit count.
func (c *Channel) ReadCount() uint64 {
	regs := c.tcu.regs
	if !c.isOST() {
		return uint64(regs.Read32(RegTCNT(c.idx)))
	}
	state := localIRQSave()
	lo := regs.Read32(RegOSTCNTL)
	hi := regs.Read32(RegOSTCNTHBUF)
	localIRQRestore(state)
	return uint64(hi)<<32 | uint64(lo)
}

// SetCount sets the current count.
func (c *Channel) SetCount(count uint64) error {
	regs := c.tcu.regs
	if c.isOST() {
		regs.Write32(RegOSTCNTL, uint32(count))
		regs.Write32(RegOSTCNTH, uint32(count>>32))
		return nil
	}
	if count > narrowMax {
		return &ChannelError{Op: "set count", Channel: c.idx, Err: ErrInvalidArgument}
	}
	regs.Write32(RegTCNT(c.idx), uint32(count))
	return nil
}

// SetFull sets the count at which the full match interrupt triggers.
func (c *Channel) SetFull(data uint32) error {
	regs := c.tcu.regs
	if c.isOST() {
		regs.Write32(RegOSTDR, data)
		return nil
	}
	if data > narrowMax {
		return &ChannelError{Op: "set full", Channel: c.idx, Err: ErrInvalidArgument}
	}
	regs.Write32(RegTDFR(c.idx), data)
	return nil
}

// SetHalf sets the count at which the half match interrupt triggers.
// The OST has no half match.
func (c *Channel) SetHalf(data uint32) error {
	if c.isOST() || data > narrowMax {
		return &ChannelError{Op: "set half", Channel: c.idx, Err: ErrInvalidArgument}
	}
	c.tcu.regs.Write32(RegTDHR(c.idx), data)
	return nil
}

// SetPWM routes the compare output to the channel's pin. The output starts
// each period at the initial level and flips at the half match. Changing the
// setting only takes effect while the channel is disabled.
func (c *Channel) SetPWM(enable, initHigh bool) error {
	if c.isOST() {
		return &ChannelError{Op: "set pwm", Channel: c.idx, Err: ErrInvalidArgument}
	}
	if c.enabled.Load() {
		return &ChannelError{Op: "set pwm", Channel: c.idx, Err: ErrBusy}
	}
	reg := c.csr()
	csr := c.tcu.regs.Read32(reg) &^ (CSRPWMEn | CSRInitHigh)
	if enable {
		csr |= CSRPWMEn
		if initHigh {
			csr |= CSRInitHigh
		}
	}
	c.tcu.regs.Write32(reg, csr)
	return nil
}

// SetFullHandler installs the function called on a full match. nil removes it.
func (c *Channel) SetFullHandler(h FullMatchHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := matchHandlers{full: h}
	if cur := c.handlers.Load(); cur != nil {
		next.half = cur.half
	}
	c.handlers.Store(&next)
}

// SetHalfHandler installs the function called on a half match. nil removes it.
func (c *Channel) SetHalfHandler(h HalfMatchHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := matchHandlers{half: h}
	if cur := c.handlers.Load(); cur != nil {
		next.full = cur.full
	}
	c.handlers.Store(&next)
}

func (c *Channel) clearHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.Store(nil)
}

func (c *Channel) fullHandler() FullMatchHandler {
	if h := c.handlers.Load(); h != nil {
		return h.full
	}
	return nil
}

func (c *Channel) halfHandler() HalfMatchHandler {
	if h := c.handlers.Load(); h != nil {
		return h.half
	}
	return nil
}
