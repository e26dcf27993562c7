//go:build !tinygo

package core

// irqState is a placeholder for the interrupt state on regular Go
type irqState uintptr

// localIRQSave is a no-op on regular Go; register accessors there are
// serialised by the emulator.
func localIRQSave() irqState {
	return 0
}

func localIRQRestore(state irqState) {}
