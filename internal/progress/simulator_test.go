package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) add(v float64) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

func TestSimulatorStopsAtCeiling(t *testing.T) {
	rec := &recorder{}
	s := New(Options{
		Interval: time.Millisecond,
		Rand:     func() float64 { return 0.99 },
		OnChange: rec.add,
	})
	s.Start()

	require.Eventually(t, func() bool { return !s.Running() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, DefaultCeiling, s.Value())

	values := rec.snapshot()
	require.NotEmpty(t, values)
	assert.Equal(t, 0.0, values[0])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
		assert.LessOrEqual(t, values[i], DefaultCeiling)
	}
}

func TestSimulatorSucceedSnapsTo100(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Interval: time.Millisecond, Rand: func() float64 { return 0.01 }, OnChange: rec.add})
	s.Start()
	require.Eventually(t, func() bool { return s.Value() > 0 }, time.Second, time.Millisecond)

	s.Succeed()
	assert.Equal(t, Complete, s.Value())
	assert.False(t, s.Running())

	n := len(rec.snapshot())
	time.Sleep(20 * time.Millisecond)
	values := rec.snapshot()
	assert.Len(t, values, n, "no ticks after Succeed")
	assert.Equal(t, Complete, values[len(values)-1])
}

func TestSimulatorFailResetsToZero(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, Rand: func() float64 { return 0.5 }})
	s.Start()
	require.Eventually(t, func() bool { return s.Value() > 0 }, time.Second, time.Millisecond)

	s.Fail()
	assert.Equal(t, 0.0, s.Value())
	assert.False(t, s.Running())
}

func TestSimulatorRestartResets(t *testing.T) {
	var step atomic.Value
	step.Store(0.99)
	s := New(Options{Interval: time.Millisecond, Rand: func() float64 { return step.Load().(float64) }})
	s.Start()
	require.Eventually(t, func() bool { return s.Value() == DefaultCeiling }, 2*time.Second, time.Millisecond)

	step.Store(0.0)
	s.Start()
	assert.Equal(t, 0.0, s.Value())
	assert.True(t, s.Running())
	s.Fail()
}

func TestSimulatorStepBounds(t *testing.T) {
	s := New(Options{Interval: time.Hour, Rand: func() float64 { return 0.999 }})
	v, atCeiling := s.advance()
	assert.InDelta(t, 9.99, v, 1e-9)
	assert.False(t, atCeiling)
}

func TestSimulatorDefaults(t *testing.T) {
	s := New(Options{Ceiling: 120})
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.Equal(t, DefaultCeiling, s.opts.Ceiling)
	assert.Equal(t, DefaultStep, s.opts.Step)
	assert.NotNil(t, s.opts.Rand)
	assert.False(t, s.Running())
	s.Succeed()
	assert.Equal(t, Complete, s.Value())
}

func TestSimulatorResetIsSilent(t *testing.T) {
	var calls atomic.Int32
	s := New(Options{Interval: time.Hour, OnChange: func(float64) { calls.Add(1) }})
	s.Succeed()
	require.Equal(t, Complete, s.Value())
	before := calls.Load()

	s.Reset()
	assert.Equal(t, 0.0, s.Value())
	assert.Equal(t, before, calls.Load())
	assert.False(t, s.Running())
}
