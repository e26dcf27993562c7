package clockevents

import (
	"sync"
	"sync/atomic"

	"gotcu/smp"
)

type cpuTick struct {
	active *Device
	spares []*Device
	ticks  atomic.Uint64
	errs   atomic.Uint64 // Failed periodic re-arms
}

// Framework tracks registered devices per CPU.
type Framework struct {
	mu     sync.Mutex
	cpus   map[smp.CPU]*cpuTick
	tickHz uint32
	tick   func(cpu smp.CPU)
	onErr  func(dev *Device, err error)
}

// New creates an empty framework with periodic ticks disabled.
func New() *Framework {
	return &Framework{cpus: make(map[smp.CPU]*cpuTick)}
}

// SetTickRate sets the periodic tick frequency started on every device
// that becomes a CPU's tick device. Zero leaves devices idle until
// programmed explicitly.
func (f *Framework) SetTickRate(hz uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickHz = hz
}

// SetTickFunc installs a function called on each tick of a CPU's tick device.
func (f *Framework) SetTickFunc(fn func(cpu smp.CPU)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick = fn
}

// SetErrorFunc installs a function called when arming the periodic tick
// fails. Failures are counted either way, see TickErrors.
func (f *Framework) SetErrorFunc(fn func(dev *Device, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onErr = fn
}

func (f *Framework) cpu(cpu smp.CPU) *cpuTick {
	ct, ok := f.cpus[cpu]
	if !ok {
		ct = &cpuTick{}
		f.cpus[cpu] = ct
	}
	return ct
}

// ConfigAndRegister records the device's frequency and delta bounds and
// registers it. The best rated device of a CPU becomes its tick device; the
// others are kept as spares. Registering a device again only refreshes its
// configuration. A nil device is ignored.
func (f *Framework) ConfigAndRegister(dev *Device, freq uint32, minDelta, maxDelta uint64) {
	if dev == nil {
		return
	}
	if maxDelta != 0 && minDelta > maxDelta {
		minDelta = maxDelta
	}

	f.mu.Lock()
	dev.freq = freq
	dev.minDelta = minDelta
	dev.maxDelta = maxDelta
	dev.SetEventHandler(f.handleEvent)

	ct := f.cpu(dev.CPU)
	promoted := false
	switch {
	case ct.active == dev:
		promoted = true
	case ct.active == nil || dev.Rating > ct.active.Rating:
		if ct.active != nil {
			ct.spares = append(ct.spares, ct.active)
		}
		ct.spares = removeDevice(ct.spares, dev)
		ct.active = dev
		promoted = true
	default:
		if !containsDevice(ct.spares, dev) {
			ct.spares = append(ct.spares, dev)
		}
	}
	hz := f.tickHz
	onErr := f.onErr
	f.mu.Unlock()

	if promoted && hz != 0 && freq != 0 {
		f.rearm(ct, dev, uint64(freq/hz), onErr)
	}
}

// Teardown unregisters every device of cpu, as happens when the CPU is
// taken down. The devices themselves are left intact for re-registration.
// It returns the number of devices removed.
func (f *Framework) Teardown(cpu smp.CPU) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.cpus[cpu]
	if !ok {
		return 0
	}
	n := len(ct.spares)
	if ct.active != nil {
		ct.active.SetEventHandler(nil)
		n++
	}
	for _, d := range ct.spares {
		d.SetEventHandler(nil)
	}
	ct.active = nil
	ct.spares = nil
	return n
}

// Active returns the tick device of cpu, or nil.
func (f *Framework) Active(cpu smp.CPU) *Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ct, ok := f.cpus[cpu]; ok {
		return ct.active
	}
	return nil
}

// Registered returns the number of devices registered for cpu.
func (f *Framework) Registered(cpu smp.CPU) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.cpus[cpu]
	if !ok {
		return 0
	}
	n := len(ct.spares)
	if ct.active != nil {
		n++
	}
	return n
}

// Ticks returns the number of ticks delivered to cpu.
func (f *Framework) Ticks(cpu smp.CPU) uint64 {
	f.mu.Lock()
	ct, ok := f.cpus[cpu]
	f.mu.Unlock()
	if !ok {
		return 0
	}
	return ct.ticks.Load()
}

// TickErrors returns how often arming the periodic tick of cpu failed.
func (f *Framework) TickErrors(cpu smp.CPU) uint64 {
	f.mu.Lock()
	ct, ok := f.cpus[cpu]
	f.mu.Unlock()
	if !ok {
		return 0
	}
	return ct.errs.Load()
}

// Program arms the tick device of cpu to expire after ticks, clamped to
// the device's bounds.
func (f *Framework) Program(cpu smp.CPU, ticks uint64) error {
	dev := f.Active(cpu)
	if dev == nil {
		return ErrNoDevice
	}
	return f.program(dev, ticks)
}

func (f *Framework) program(dev *Device, ticks uint64) error {
	if dev.Features&FeatOneshot == 0 {
		return ErrNotOneshot
	}
	if dev.SetNextEvent == nil {
		return ErrUnprogrammable
	}
	return dev.SetNextEvent(dev.clamp(ticks))
}

// handleEvent is installed on every registered device.
func (f *Framework) handleEvent(dev *Device, cpu smp.CPU) {
	f.mu.Lock()
	ct := f.cpus[dev.CPU]
	isTick := ct != nil && ct.active == dev
	hz := f.tickHz
	tick := f.tick
	onErr := f.onErr
	f.mu.Unlock()

	if !isTick {
		return
	}
	ct.ticks.Add(1)
	if tick != nil {
		tick(cpu)
	}
	if hz != 0 && dev.freq != 0 {
		f.rearm(ct, dev, uint64(dev.freq/hz), onErr)
	}
}

// rearm programs the next periodic tick and records a failure.
func (f *Framework) rearm(ct *cpuTick, dev *Device, ticks uint64, onErr func(*Device, error)) {
	err := f.program(dev, ticks)
	if err == nil {
		return
	}
	ct.errs.Add(1)
	if onErr != nil {
		onErr(dev, err)
	}
}

func containsDevice(list []*Device, dev *Device) bool {
	for _, d := range list {
		if d == dev {
			return true
		}
	}
	return false
}

func removeDevice(list []*Device, dev *Device) []*Device {
	for i, d := range list {
		if d == dev {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
