// Command tcu-monitor reads a board console, live from a serial port or
// from a captured log, and summarises the timer layer's trace output.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"gotcu/host/serial"
	"gotcu/host/trace"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate")
	file    = flag.String("file", "", "Read a captured console log instead of the serial port")
	verbose = flag.Bool("verbose", false, "Echo timer layer lines as they arrive")
)

// echoReader copies trace lines to stdout while they are counted.
type echoReader struct {
	r    io.Reader
	line []byte
}

func (e *echoReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	for _, b := range p[:n] {
		if b != '\n' {
			e.line = append(e.line, b)
			continue
		}
		if kind, _, _, _ := trace.ParseLine(string(e.line)); kind != trace.LineOther {
			fmt.Println(string(e.line))
		}
		e.line = e.line[:0]
	}
	return n, err
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		src *serial.Console
		err error
	)
	if *file != "" {
		src, err = serial.OpenLog(*file)
	} else {
		src, err = serial.Open(&serial.Config{Device: *device, Baud: *baud})
	}
	if err != nil {
		logger.Error("open console", "err", err)
		os.Exit(1)
	}
	if src.Live() {
		if err := src.Discard(); err != nil {
			logger.Warn("discard console input", "err", err)
		}
		logger.Info("monitoring", "device", src.Name(), "baud", *baud)
	}

	// A live port never ends; stop on interrupt and close it to unblock the reader
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		src.Close()
	}()

	var r io.Reader = src
	if *verbose {
		r = &echoReader{r: src}
	}

	stats := trace.NewStats()
	if _, err := stats.ReadFrom(r); err != nil && ctx.Err() == nil {
		logger.Error("read", "err", err)
	}
	src.Close()

	if err := stats.WriteSummary(os.Stdout); err != nil {
		logger.Error("write summary", "err", err)
		os.Exit(1)
	}
}
