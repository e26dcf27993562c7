//go:build linux && !tinygo

package main

import (
	"fmt"
	"io"
	"time"

	"gotcu/core"
)

// readOST reads the 64-bit OST counter. Reading the low word latches the
// high word into its buffer register, so the pair is consistent.
func readOST(regs core.Registers) uint64 {
	lo := regs.Read32(core.RegOSTCNTL)
	hi := regs.Read32(core.RegOSTCNTHBUF)
	return uint64(hi)<<32 | uint64(lo)
}

// sourceName names the clock selected by a channel control register, the
// same one the driver reads the rate of.
func sourceName(csr uint32) string {
	if src, ok := core.SourceOf(csr); ok {
		return src.String()
	}
	return "none"
}

// dump prints the global registers and the state of every present channel.
// It only reads registers.
func dump(w io.Writer, regs core.Registers, desc *core.Desc) {
	ter := regs.Read32(core.RegTER)
	tsr := regs.Read32(core.RegTSR)
	tfr := regs.Read32(core.RegTFR)
	tmr := regs.Read32(core.RegTMR)
	fmt.Fprintf(w, "TER=%#06x TSR=%#06x TFR=%#010x TMR=%#010x\n", ter, tsr, tfr, tmr)

	for i, c := range desc.Channels {
		if !c.Present {
			continue
		}
		bit := uint32(1) << uint(i)
		state := "stopped"
		if tsr&bit == 0 {
			state = "clocked"
			if ter&bit != 0 {
				state = "counting"
			}
		}
		if c.IsOST() {
			csr := regs.Read32(core.RegOSTCSR)
			fmt.Fprintf(w, "ch%-2d ost  irq=%d %-8s src=%s div=%d free_running=%t count=%d compare=%#x\n",
				i, c.IRQ, state, sourceName(csr), prescale(csr), csr&core.OSTCSRCntMD != 0,
				readOST(regs), regs.Read32(core.RegOSTDR))
			continue
		}
		csr := regs.Read32(core.RegTCSR(i))
		kind := "tcu"
		if c.Flags&core.FlagFIFO != 0 {
			kind = "fifo"
		}
		fmt.Fprintf(w, "ch%-2d %-4s irq=%d %-8s src=%s div=%d pwm=%t count=%d full=%d half=%d\n",
			i, kind, c.IRQ, state, sourceName(csr), prescale(csr), csr&core.CSRPWMEn != 0,
			regs.Read32(core.RegTCNT(i)), regs.Read32(core.RegTDFR(i)), regs.Read32(core.RegTDHR(i)))
	}
}

func prescale(csr uint32) uint32 {
	return 1 << (2 * ((csr & core.CSRPrescaleMask) >> core.CSRPrescaleShift))
}

// ostRate measures how fast the OST counts over the given wall time, in Hz.
// sleep is time.Sleep outside of tests.
func ostRate(regs core.Registers, window time.Duration, sleep func(time.Duration)) uint64 {
	if window <= 0 {
		return 0
	}
	before := readOST(regs)
	sleep(window)
	after := readOST(regs)
	return (after - before) * uint64(time.Second) / uint64(window)
}
