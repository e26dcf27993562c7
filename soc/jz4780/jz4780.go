// Package jz4780 describes the timer/counter unit of the Ingenic JZ4780.
package jz4780

import (
	_ "embed"

	"gotcu/config"
	"gotcu/core"
)

// Physical location of the TCU register block.
const (
	TCUBase = 0x10002000
	TCUSize = core.RegBlockSize
)

//go:embed board.yaml
var profile []byte

var channels = [16]core.ChannelDesc{
	0: core.Chan(2, core.FlagFIFO),
	1: core.Chan(2, 0),
	2: core.Chan(2, 0),
	3: core.Chan(2, core.FlagFIFO),
	4: core.Chan(2, core.FlagFIFO),
	5: core.Chan(1, core.FlagFIFO),
	6: core.Chan(2, 0),
	7: core.Chan(2, 0),

	15: core.Chan(0, core.FlagOST),
}

// Desc returns the channel table. Callers get their own copy.
func Desc() *core.Desc {
	ch := channels
	return &core.Desc{Channels: ch[:]}
}

// Profile returns the board profile of a dual core JZ4780 board.
func Profile() (*config.Board, error) {
	return config.LoadConfig(profile)
}

// ProfileYAML returns the raw profile, e.g. for writing it out as a
// starting point for another board.
func ProfileYAML() []byte {
	return append([]byte(nil), profile...)
}
