package core

import "errors"

var (
	ErrNotFound          = errors.New("tcu: channel not present")
	ErrBusy              = errors.New("tcu: channel busy")
	ErrNoDevice          = errors.New("tcu: no free channel")
	ErrInvalidArgument   = errors.New("tcu: invalid argument")
	ErrResourceExhausted = errors.New("tcu: registry full")
	ErrHardwareTimeout   = errors.New("tcu: hardware did not acknowledge")
	ErrClockUnavailable  = errors.New("tcu: source clock unavailable")
	ErrNoRegisters       = errors.New("tcu: register block not mapped")
)

// ChannelError records a failed channel operation.
type ChannelError struct {
	Op      string
	Channel int // AnyChannel when no specific channel is involved
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Channel == AnyChannel {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " channel " + itoa(e.Channel) + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
