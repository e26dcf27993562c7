package core

import "sync/atomic"

// DebugWriter writes one line of driver output, e.g. to a console UART.
type DebugWriter func(string)

var (
	debugOut     atomic.Pointer[DebugWriter]
	debugEnabled atomic.Bool
	debugQueue   atomic.Pointer[chan string]
)

func discard(string) {}

func writeDebug(msg string) {
	if w := debugOut.Load(); w != nil {
		(*w)(msg)
	}
}

// SetDebugWriter routes driver output to w. nil discards it.
func SetDebugWriter(w DebugWriter) {
	if w == nil {
		w = discard
	}
	debugOut.Store(&w)
}

// SetDebugEnabled switches debug output on or off. Warnings are written
// either way.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled reports whether debug output is on.
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// InitAsyncDebug starts the goroutine that writes messages queued with
// DebugAsync. Only the first call starts one.
func InitAsyncDebug() {
	q := make(chan string, 16)
	if !debugQueue.CompareAndSwap(nil, &q) {
		return
	}
	go func() {
		for msg := range q {
			writeDebug(msg)
		}
	}()
}

// DebugPrintln writes msg if debug output is on. It blocks for as long as
// the writer does; interrupt handlers use DebugAsync.
func DebugPrintln(msg string) {
	if debugEnabled.Load() {
		writeDebug(msg)
	}
}

// DebugAsync queues msg for the InitAsyncDebug goroutine. The message is
// dropped when the queue is full or was never started.
func DebugAsync(msg string) {
	if !debugEnabled.Load() {
		return
	}
	q := debugQueue.Load()
	if q == nil {
		return
	}
	select {
	case *q <- msg:
	default:
	}
}

// warn reports a condition the driver recovers from.
func warn(msg string) {
	writeDebug("[TCU] WARN: " + msg)
}
