// Package progress drives a simulated completion percentage for a request
// whose real progress cannot be observed.
package progress

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultInterval = 400 * time.Millisecond
	DefaultCeiling  = 95.0
	DefaultStep     = 10.0
	Complete        = 100.0
)

type Options struct {
	Interval time.Duration
	Ceiling  float64
	Step     float64
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
	// OnChange is called with every new value, outside internal locks.
	OnChange func(v float64)
}

// Simulator owns one ticker at a time. Start, Succeed and Fail may be called
// from any goroutine; OnChange must not call back into the Simulator.
type Simulator struct {
	opts Options

	mu      sync.Mutex
	value   float64
	running bool

	ctl  sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(opts Options) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Ceiling <= 0 || opts.Ceiling >= Complete {
		opts.Ceiling = DefaultCeiling
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Simulator{opts: opts}
}

// Start resets the value to 0 and begins ticking. A ticker left over from a
// previous Start is stopped first.
func (s *Simulator) Start() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.halt()
	s.mu.Lock()
	s.value = 0
	s.running = true
	s.mu.Unlock()
	s.notify(0)

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// Succeed stops ticking and snaps to 100.
func (s *Simulator) Succeed() { s.finish(Complete) }

// Fail stops ticking and resets to 0.
func (s *Simulator) Fail() { s.finish(0) }

// Reset zeroes the value without calling OnChange. A running ticker is not
// stopped.
func (s *Simulator) Reset() {
	s.mu.Lock()
	s.value = 0
	s.mu.Unlock()
}

func (s *Simulator) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Running reports whether a ticker is still advancing the value.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) finish(v float64) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.halt()
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
	s.notify(v)
}

// halt stops the current ticker and waits for it to exit. Caller holds ctl.
func (s *Simulator) halt() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Simulator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v, atCeiling := s.advance()
			// a stop may have raced the tick; drop the stale value
			select {
			case <-stop:
				return
			default:
			}
			s.notify(v)
			if atCeiling {
				return
			}
		}
	}
}

func (s *Simulator) advance() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.value + s.opts.Rand()*s.opts.Step
	if next >= s.opts.Ceiling {
		next = s.opts.Ceiling
	}
	s.value = next
	return next, next >= s.opts.Ceiling
}

func (s *Simulator) notify(v float64) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(v)
	}
}
