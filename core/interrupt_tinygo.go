//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// localIRQSave disables interrupts on this CPU and returns the previous state
func localIRQSave() irqState {
	return interrupt.Disable()
}

// localIRQRestore restores the interrupt state
func localIRQRestore(state irqState) {
	interrupt.Restore(state)
}
