package utils

import (
	"sync"
	"time"
)

// Phase is one timed step of a longer operation.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer completes a phase started with Timer.Start.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.stop(pt.name)
}

// Timer records named phases in start order.
type Timer struct {
	mu      sync.Mutex
	name    string
	started time.Time
	phases  []*Phase
	byName  map[string]*Phase
	logger  Logger
	enabled bool
	clock   Clock
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithLogger sets where PrintSummary writes.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled turns the timer into a no-op when false.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a Timer.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		byName:  make(map[string]*Phase),
		enabled: true,
		clock:   RealClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.clock.Now()
	return t
}

// Start begins timing a phase.
func (t *Timer) Start(name string) *PhaseTimer {
	if t.enabled {
		t.mu.Lock()
		p := &Phase{Name: name, Start: t.clock.Now()}
		t.phases = append(t.phases, p)
		t.byName[name] = p
		t.mu.Unlock()
	}
	return &PhaseTimer{timer: t, name: name}
}

func (t *Timer) stop(name string) time.Duration {
	if !t.enabled {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byName[name]
	if !ok {
		return 0
	}
	if !p.done {
		p.Duration = t.clock.Since(p.Start)
		p.done = true
	}
	return p.Duration
}

// TimeFunc times fn as a phase.
func (t *Timer) TimeFunc(name string, fn func() error) error {
	pt := t.Start(name)
	defer pt.Stop()
	return fn()
}

// Duration returns the recorded duration of a phase.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byName[name]; ok {
		return p.Duration
	}
	return 0
}

// Phases returns copies of all phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Phase, 0, len(t.phases))
	for _, p := range t.phases {
		out = append(out, *p)
	}
	return out
}

// Total returns the time elapsed since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.started)
}

// PrintSummary writes every phase at debug level.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	for i, p := range t.Phases() {
		t.logger.Debug("%s phase %d - %s: %s", t.name, i+1, p.Name, FormatDuration(p.Duration))
	}
	t.logger.Debug("%s total: %s", t.name, FormatDuration(t.Total()))
}
