package core

import "gotcu/smp"

// AnyChannel asks RequestChannel for the first free channel.
const AnyChannel = -1

// StopSpinLimit bounds how often Release polls for the stop bit.
const StopSpinLimit = 1000

// RequestChannel claims channel idx, or the first free present channel when
// idx is AnyChannel. The claimed channel has both match interrupts masked,
// its clock running, counting disabled and its control register reset.
//
// Masking comes first so a stale pending flag cannot fire against the new
// owner.
func (t *TCU) RequestChannel(idx int) (*Channel, error) {
	ch, err := t.claim(idx)
	if err != nil {
		t.trace.Record(EvtRequestFail, idx, smp.NoCPU, 0, 0)
		return nil, err
	}

	ch.MaskHalf()
	ch.MaskFull()
	ch.start()
	ch.Disable()

	if ch.isOST() {
		t.regs.Write32(ch.csr(), OSTCSRCntMD)
	} else {
		t.regs.Write32(ch.csr(), 0)
	}

	t.trace.Record(EvtRequest, ch.idx, smp.NoCPU, uint32(t.desc.Channels[ch.idx].Flags), 0)
	return ch, nil
}

// claim atomically flips a free channel to allocated.
func (t *TCU) claim(idx int) (*Channel, error) {
	if idx == AnyChannel {
		for i := range t.channels {
			if !t.desc.Channels[i].Present {
				continue
			}
			if t.channels[i].stopped.CompareAndSwap(true, false) {
				return &t.channels[i], nil
			}
		}
		return nil, &ChannelError{Op: "request", Channel: AnyChannel, Err: ErrNoDevice}
	}

	if idx < 0 || idx >= len(t.channels) || !t.desc.Channels[idx].Present {
		return nil, &ChannelError{Op: "request", Channel: idx, Err: ErrNotFound}
	}
	if !t.channels[idx].stopped.CompareAndSwap(true, false) {
		return nil, &ChannelError{Op: "request", Channel: idx, Err: ErrBusy}
	}
	return &t.channels[idx], nil
}

// Release returns the channel to the free pool: it drops the channel from
// the clock-event registry, removes both match handlers and gates its clock.
// Match interrupts are left as they are. Releasing a free channel does
// nothing.
func (c *Channel) Release() {
	if c.stopped.Load() {
		return
	}
	t := c.tcu

	t.registry.remove(c)
	c.clearHandlers()
	c.stop()
	if !c.waitStopped() {
		warn((&ChannelError{Op: "release", Channel: c.idx, Err: ErrHardwareTimeout}).Error())
		t.trace.Record(EvtStopTimeout, c.idx, smp.NoCPU, StopSpinLimit, 0)
	}

	c.owner.Store(int32(smp.NoCPU))
	c.stopped.Store(true)
	t.trace.Record(EvtRelease, c.idx, smp.NoCPU, 0, 0)
}

// waitStopped polls the stop register until it shows the channel stopped
// or StopSpinLimit reads have passed. Callers must not assume the channel
// stopped when it returns false.
func (c *Channel) waitStopped() bool {
	for i := 0; i < StopSpinLimit; i++ {
		if c.tcu.regs.Read32(RegTSR)&c.bit() != 0 {
			return true
		}
	}
	return false
}
