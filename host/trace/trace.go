// Package trace parses the "[TCU]" lines the timer layer prints and keeps
// statistics over them.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gotcu/core"
	"gotcu/smp"
)

const (
	prefix     = "[TCU] "
	warnPrefix = "[TCU] WARN: "
)

var (
	ErrNotTrace = errors.New("trace: not a trace line")
	ErrSyntax   = errors.New("trace: malformed trace line")
)

// LineKind classifies a console line.
type LineKind int

const (
	LineOther LineKind = iota // Not from the timer layer
	LineEvent                 // A trace ring entry
	LineWarn                  // A warning
	LineInfo                  // Any other timer layer message
)

// ParseLine parses one console line. Event lines yield the event; warnings
// yield their message.
func ParseLine(line string) (LineKind, core.TraceEvent, string, error) {
	line = strings.TrimRight(line, "\r\n")
	i := strings.Index(line, prefix)
	if i < 0 {
		return LineOther, core.TraceEvent{}, "", nil
	}
	line = line[i:]

	if strings.HasPrefix(line, warnPrefix) {
		return LineWarn, core.TraceEvent{}, line[len(warnPrefix):], nil
	}

	fields := strings.Fields(line[len(prefix):])
	if len(fields) == 0 {
		return LineInfo, core.TraceEvent{}, "", nil
	}
	kind := core.KindByName(fields[0])
	if kind == 0 {
		return LineInfo, core.TraceEvent{}, line[len(prefix):], nil
	}

	evt, err := parseEvent(kind, fields[1:])
	if err != nil {
		return LineEvent, core.TraceEvent{}, "", fmt.Errorf("%w: %q: %v", ErrSyntax, line, err)
	}
	return LineEvent, evt, "", nil
}

func parseEvent(kind core.EventKind, fields []string) (core.TraceEvent, error) {
	evt := core.TraceEvent{Kind: kind}
	seen := 0
	for _, f := range fields {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			return evt, fmt.Errorf("field %q", f)
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return evt, fmt.Errorf("field %s: %w", key, err)
		}
		switch key {
		case "ch":
			evt.Channel = int(n)
		case "cpu":
			evt.CPU = smp.CPU(n)
		case "seq":
			evt.Seq = uint32(n)
		case "v1":
			evt.V1 = uint32(n)
		case "v2":
			evt.V2 = uint32(n)
		default:
			continue
		}
		seen++
	}
	if seen != 5 {
		return evt, fmt.Errorf("%d of 5 fields", seen)
	}
	return evt, nil
}

// Stats accumulates parsed lines.
type Stats struct {
	Events   int
	Warnings []string
	Errors   int
	Gaps     int // Sequence numbers skipped between consecutive events

	byKind    map[core.EventKind]int
	byChannel map[int]map[core.EventKind]int
	lastSeq   uint32
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{
		byKind:    make(map[core.EventKind]int),
		byChannel: make(map[int]map[core.EventKind]int),
	}
}

// AddLine parses and records one line.
func (s *Stats) AddLine(line string) {
	kind, evt, msg, err := ParseLine(line)
	if err != nil {
		s.Errors++
		return
	}
	switch kind {
	case LineEvent:
		s.AddEvent(evt)
	case LineWarn:
		s.Warnings = append(s.Warnings, msg)
	}
}

// AddEvent records one event.
func (s *Stats) AddEvent(evt core.TraceEvent) {
	s.Events++
	s.byKind[evt.Kind]++
	ch := s.byChannel[evt.Channel]
	if ch == nil {
		ch = make(map[core.EventKind]int)
		s.byChannel[evt.Channel] = ch
	}
	ch[evt.Kind]++

	// A dump restarts from a lower sequence number
	if s.lastSeq != 0 && evt.Seq > s.lastSeq+1 {
		s.Gaps += int(evt.Seq - s.lastSeq - 1)
	}
	s.lastSeq = evt.Seq
}

// Count returns the number of events of kind.
func (s *Stats) Count(kind core.EventKind) int {
	return s.byKind[kind]
}

// ChannelCount returns the number of events of kind on channel ch.
func (s *Stats) ChannelCount(ch int, kind core.EventKind) int {
	return s.byChannel[ch][kind]
}

// Channels returns the channels seen, ascending.
func (s *Stats) Channels() []int {
	out := make([]int, 0, len(s.byChannel))
	for ch := range s.byChannel {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// ReadFrom reads lines from r until EOF.
func (s *Stats) ReadFrom(r io.Reader) (int64, error) {
	var n int64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n += int64(len(sc.Bytes())) + 1
		s.AddLine(sc.Text())
	}
	return n, sc.Err()
}

// WriteSummary prints the statistics as a table.
func (s *Stats) WriteSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "events: %d  warnings: %d  malformed: %d  lost: %d\n",
		s.Events, len(s.Warnings), s.Errors, s.Gaps)

	kinds := make([]core.EventKind, 0, len(s.byKind))
	for k := range s.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, ch := range s.Channels() {
		fmt.Fprintf(bw, "channel %d:", ch)
		for _, k := range kinds {
			if n := s.byChannel[ch][k]; n > 0 {
				fmt.Fprintf(bw, " %s=%d", k, n)
			}
		}
		fmt.Fprintln(bw)
	}
	for _, msg := range s.Warnings {
		fmt.Fprintf(bw, "warning: %s\n", msg)
	}
	return bw.Flush()
}
