package smp

import (
	"context"
	"sync"
	"sync/atomic"
)

// callQueueDepth bounds the per-CPU mailbox, like the two-entry hardware
// FIFOs inter-core messaging is built on, but deep enough for bursts.
const callQueueDepth = 8

type call struct {
	fn   func(CPU)
	done chan struct{}
}

type processor struct {
	id     CPU
	calls  chan call
	online atomic.Bool
}

// System is a simulated multiprocessor. Each CPU is a goroutine draining a
// mailbox of calls; anything run on a CPU sees that CPU's number.
type System struct {
	cpus []*processor

	mu       sync.Mutex
	starting []func(CPU)
	dying    []func(CPU)

	startOnce sync.Once
	running   atomic.Bool
	done      <-chan struct{}
}

// NewSystem creates a system with n CPUs, all online. Call Start before use.
func NewSystem(n int) *System {
	if n < 1 {
		n = 1
	}
	s := &System{cpus: make([]*processor, n)}
	for i := range s.cpus {
		p := &processor{id: CPU(i), calls: make(chan call, callQueueDepth)}
		p.online.Store(true)
		s.cpus[i] = p
	}
	return s
}

// NumCPU returns the number of CPUs, online or not.
func (s *System) NumCPU() int {
	return len(s.cpus)
}

// Start launches one goroutine per CPU. They exit when ctx is cancelled.
func (s *System) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.done = ctx.Done()
		s.running.Store(true)
		for _, p := range s.cpus {
			go s.loop(ctx, p)
		}
		go func() {
			<-ctx.Done()
			s.running.Store(false)
		}()
	})
}

func (s *System) loop(ctx context.Context, p *processor) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-p.calls:
			s.exec(p, c)
		}
	}
}

func (s *System) exec(p *processor, c call) {
	c.fn(p.id)
	close(c.done)
}

func (s *System) lookup(cpu CPU) (*processor, error) {
	if cpu < 0 || int(cpu) >= len(s.cpus) {
		return nil, ErrNoSuchCPU
	}
	return s.cpus[cpu], nil
}

// Run executes fn on cpu and waits for it. It must be called from outside
// the simulated CPUs, e.g. by an interrupt controller or a test.
func (s *System) Run(cpu CPU, fn func(CPU)) error {
	p, err := s.lookup(cpu)
	if err != nil {
		return err
	}
	if !s.running.Load() {
		return ErrStopped
	}
	if !p.online.Load() {
		return ErrCPUOffline
	}
	return s.send(p, fn)
}

func (s *System) send(p *processor, fn func(CPU)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case p.calls <- c:
	case <-s.done:
		return ErrStopped
	}
	select {
	case <-c.done:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// CallFunctionSingle implements Caller.
func (s *System) CallFunctionSingle(from, to CPU, fn func(CPU)) error {
	src, err := s.lookup(from)
	if err != nil {
		return err
	}
	dst, err := s.lookup(to)
	if err != nil {
		return err
	}
	if !dst.online.Load() {
		return ErrCPUOffline
	}
	if from == to {
		fn(to)
		return nil
	}
	if !s.running.Load() {
		return ErrStopped
	}

	c := call{fn: fn, done: make(chan struct{})}
	sent := false
	for {
		var out chan call
		if !sent {
			out = dst.calls
		}
		select {
		case out <- c:
			sent = true
		case <-c.done:
			return nil
		case in := <-src.calls:
			// Waiting with interrupts enabled: serve whoever is
			// calling us meanwhile.
			s.exec(src, in)
		case <-s.done:
			return ErrStopped
		}
	}
}

// OnStarting registers a hook run on a CPU right after it comes online.
func (s *System) OnStarting(fn func(CPU)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = append(s.starting, fn)
}

// OnDying registers a hook run on a CPU right before it goes offline.
func (s *System) OnDying(fn func(CPU)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dying = append(s.dying, fn)
}

func (s *System) hooks(list *[]func(CPU)) []func(CPU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]func(CPU){}, (*list)...)
}

// IsOnline reports whether cpu accepts calls.
func (s *System) IsOnline(cpu CPU) bool {
	p, err := s.lookup(cpu)
	return err == nil && p.online.Load()
}

// Offline runs the dying hooks on cpu and then takes it offline.
func (s *System) Offline(cpu CPU) error {
	p, err := s.lookup(cpu)
	if err != nil {
		return err
	}
	if !p.online.Load() {
		return nil
	}
	hooks := s.hooks(&s.dying)
	if err := s.send(p, func(c CPU) {
		for _, h := range hooks {
			h(c)
		}
	}); err != nil {
		return err
	}
	p.online.Store(false)
	return nil
}

// Online brings cpu back and runs the starting hooks on it.
func (s *System) Online(cpu CPU) error {
	p, err := s.lookup(cpu)
	if err != nil {
		return err
	}
	if p.online.Swap(true) {
		return nil
	}
	if !s.running.Load() {
		return ErrStopped
	}
	hooks := s.hooks(&s.starting)
	return s.send(p, func(c CPU) {
		for _, h := range hooks {
			h(c)
		}
	})
}
