package core

import (
	"gotcu/clk"
	"gotcu/smp"
)

// Source selects the clock a channel counts from.
type Source uint8

const (
	SourcePCLK Source = iota
	SourceRTC
	SourceEXTAL
)

func (s Source) String() string {
	switch s {
	case SourcePCLK:
		return "pclk"
	case SourceRTC:
		return "rtc"
	case SourceEXTAL:
		return "ext"
	}
	return "source(" + itoa(int(s)) + ")"
}

// ParseSource maps a clock name back to its Source.
func ParseSource(name string) (Source, bool) {
	switch name {
	case clk.PCLK:
		return SourcePCLK, true
	case clk.RTC:
		return SourceRTC, true
	case clk.EXTAL:
		return SourceEXTAL, true
	}
	return 0, false
}

func (s Source) enableBit() (uint32, bool) {
	switch s {
	case SourcePCLK:
		return CSRPCKEn, true
	case SourceRTC:
		return CSRRTCEn, true
	case SourceEXTAL:
		return CSRExtEn, true
	}
	return 0, false
}

// The prescale field selects a divider of 4^k, k = 0..maxPrescale
// (1, 4, 16, 64, 256, 1024).
const maxPrescale = 5

// prescaleFor returns the prescale field value k whose divider 4^k is
// nearest to the divider srcHz/targetHz on a log2 scale: the nearest even
// number to log2 of the rounded divider, halved. A divider exactly between
// two steps takes the smaller one.
func prescaleFor(srcHz, targetHz uint32) uint32 {
	div := (uint64(srcHz) + uint64(targetHz)/2) / uint64(targetHz)
	k := uint32(0)
	// log2(div) rounds to 2k while div <= 2^(2k+1)
	for k < maxPrescale && div > uint64(1)<<(2*k+1) {
		k++
	}
	return k
}

func (t *TCU) clockRate(name string) (uint32, error) {
	if t.clocks == nil {
		return 0, ErrClockUnavailable
	}
	f, err := t.clocks.Rate(name)
	if err != nil {
		return 0, err
	}
	hz := clk.Hz(f)
	if hz == 0 {
		return 0, ErrClockUnavailable
	}
	return hz, nil
}

// SetRate selects src and the prescaler that bring the channel's count
// rate closest to hz, and returns the rate actually achieved. Callers must
// use the returned rate, not hz.
//
// Source and prescaler only latch while the channel is not counting, so an
// enabled channel is left alone. Zero is returned for an enabled channel,
// a zero hz or an unavailable source clock.
func (c *Channel) SetRate(src Source, hz uint32) uint32 {
	if c.enabled.Load() || hz == 0 {
		return 0
	}
	enable, ok := src.enableBit()
	if !ok {
		return 0
	}

	t := c.tcu
	reg := c.csr()
	csr := t.regs.Read32(reg)
	csr &^= CSRPrescaleMask | CSRSrcMask

	srcHz, err := t.clockRate(src.String())
	if err != nil {
		warn("set rate channel " + itoa(c.idx) + ": clock " + src.String() + ": " + err.Error())
		return 0
	}

	k := prescaleFor(srcHz, hz)
	csr |= enable | k<<CSRPrescaleShift
	t.regs.Write32(reg, csr)

	rate := srcHz >> (2 * k)
	t.trace.Record(EvtRate, c.idx, smp.NoCPU, hz, rate)
	return rate
}

// SourceOf returns the clock a control register value counts from. With
// several source bits set the hardware uses pclk over rtc over ext.
func SourceOf(csr uint32) (Source, bool) {
	switch {
	case csr&CSRPCKEn != 0:
		return SourcePCLK, true
	case csr&CSRRTCEn != 0:
		return SourceRTC, true
	case csr&CSRExtEn != 0:
		return SourceEXTAL, true
	}
	return 0, false
}

// Rate returns the rate the channel is programmed to count at, or zero if
// no source is selected or the source clock is unavailable.
func (c *Channel) Rate() uint32 {
	t := c.tcu
	csr := t.regs.Read32(c.csr())

	src, ok := SourceOf(csr)
	if !ok {
		return 0
	}

	srcHz, err := t.clockRate(src.String())
	if err != nil {
		warn("get rate channel " + itoa(c.idx) + ": clock " + src.String() + ": " + err.Error())
		return 0
	}

	prescale := (csr & CSRPrescaleMask) >> CSRPrescaleShift
	return srcHz >> (prescale * 2)
}
