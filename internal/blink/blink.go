// Package blink implements a cancellable repeating task that toggles an
// output at a fixed interval.
//
// A Blinker is Idle or Blinking. Start moves it to Blinking and runs the first
// step immediately. Every step runs under the Blinker's lock and is guarded by
// a single read of the active flag: when the flag is set the next step is
// armed and the step function runs, otherwise the step does nothing. Cancel
// clears the flag under the same lock, so once Cancel returns no further step
// function runs.
package blink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-skill/internal/metrics"
)

// DefaultInterval is the delay between two steps.
const DefaultInterval = 10 * time.Second

// Timer is a pending scheduled step.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

// AfterFunc is the production Scheduler.
func AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config for a Blinker.
type Config struct {
	// Interval between steps. Defaults to DefaultInterval.
	Interval time.Duration
	// Step is called once per interval while blinking.
	Step func()
	// Scheduler defaults to AfterFunc.
	Scheduler Scheduler
}

// Blinker toggles something at a fixed interval until cancelled.
type Blinker struct {
	log      zerolog.Logger
	interval time.Duration
	step     func()
	schedule Scheduler

	active atomic.Bool

	mu    sync.Mutex
	gen   uint64
	timer Timer
	steps uint64
}

var (
	blinkActiveGauge = metrics.MustRegisterGauge("blink",
		"active",
		"Whether the blink loop is active (0=idle, 1=blinking)")
	blinkStepsTotal = metrics.MustRegisterCounter("blink",
		"steps_total",
		"Number of blink steps executed")
)

// New creates an idle Blinker.
func New(cfg Config, log zerolog.Logger) *Blinker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = AfterFunc
	}
	if cfg.Step == nil {
		cfg.Step = func() {}
	}
	return &Blinker{
		log:      log.With().Str("component", "blink").Logger(),
		interval: cfg.Interval,
		step:     cfg.Step,
		schedule: cfg.Scheduler,
	}
}

// Active reports whether the Blinker is in the Blinking state.
func (b *Blinker) Active() bool {
	return b.active.Load()
}

// Interval returns the delay between steps.
func (b *Blinker) Interval() time.Duration {
	return b.interval
}

// Start moves an idle Blinker to Blinking and runs the first step
// immediately. It returns false if the Blinker was already blinking.
func (b *Blinker) Start() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked()
}

// Cancel moves the Blinker to Idle. It returns false if it was already idle.
func (b *Blinker) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked()
}

// Toggle cancels a blinking Blinker or starts an idle one, and returns the
// new state.
func (b *Blinker) Toggle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active.Load() {
		b.cancelLocked()
		return false
	}
	b.startLocked()
	return true
}

func (b *Blinker) startLocked() bool {
	if !b.active.CompareAndSwap(false, true) {
		return false
	}
	// A new generation orphans any step still pending from an earlier chain.
	b.gen++
	blinkActiveGauge.Set(1)
	b.log.Debug().Dur("interval", b.interval).Msg("blink started")
	b.runLocked(b.gen)
	return true
}

func (b *Blinker) cancelLocked() bool {
	was := b.active.Swap(false)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if was {
		blinkActiveGauge.Set(0)
		b.log.Debug().Uint64("steps", b.steps).Msg("blink cancelled")
	}
	return was
}

func (b *Blinker) fire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runLocked(gen)
}

func (b *Blinker) runLocked(gen uint64) {
	if gen != b.gen || !b.active.Load() {
		return
	}
	b.timer = b.schedule(b.interval, func() { b.fire(gen) })
	b.steps++
	blinkStepsTotal.Inc()
	b.step()
}
