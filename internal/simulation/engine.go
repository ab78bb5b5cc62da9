// Package simulation advances the bioreactor's present values toward their
// setpoints on a fixed tick.
package simulation

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/bioreactor/internal/logging"
	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
)

// timeConstantDivisor sets the effective time constant of the relaxation.
const timeConstantDivisor = 10.0

// noiseFraction is the noise amplitude as a fraction of the setpoint.
const noiseFraction = 0.01

// Relax returns the next PV of one parameter: a first-order step toward sp
// plus zero-mean uniform noise scaled by sp. u must be drawn from [0, 1).
// The result is rounded to two decimal places.
func Relax(pv, sp, rate, dt, u float64) float64 {
	change := (sp - pv) * rate * (dt / timeConstantDivisor)
	noise := (u - 0.5) * sp * noiseFraction
	return round2(pv + change + noise)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TickObserver is notified after every tick with the post-tick snapshot.
type TickObserver func(snapshot map[string]models.ParameterStatus)

// Engine owns the tick loop that mutates the registry's PVs.
type Engine struct {
	registry *reactor.Registry
	config   *Config
	log      *slog.Logger
	history  *History

	rngMu sync.Mutex
	rng   *rand.Rand

	ticks     atomic.Uint64
	observers []TickObserver

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine for registry. A nil cfg uses DefaultConfig.
func New(registry *reactor.Registry, cfg *Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		registry: registry,
		config:   cfg,
		log:      logger,
		history:  NewHistory(registry.Names(), cfg.HistorySize),
		rng:      rand.New(rand.NewSource(seed)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnTick registers an observer. Observers must be added before Start.
func (e *Engine) OnTick(o TickObserver) {
	e.observers = append(e.observers, o)
}

// Start begins the tick loop. It runs until Stop or process exit.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.loop()
	e.log.Info("simulation started", "tick", e.config.TickInterval.String())
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	e.log.Info("simulation stopped", "ticks", e.ticks.Load())
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick advances every parameter by one step. Each parameter's PV is
// replaced atomically with respect to concurrent readers and writers.
func (e *Engine) Tick() {
	dt := e.config.TickInterval.Seconds()

	e.rngMu.Lock()
	e.registry.Advance(func(spec reactor.Spec, pv, sp float64) float64 {
		return Relax(pv, sp, spec.Rate, dt, e.rng.Float64())
	})
	e.rngMu.Unlock()

	n := e.ticks.Add(1)
	snap := e.registry.Snapshot()
	e.history.Record(snap)
	for _, o := range e.observers {
		o(snap)
	}
	e.log.Log(e.ctx, logging.LevelTrace, "tick", "n", n)
}

// Ticks returns the number of ticks performed so far.
func (e *Engine) Ticks() uint64 {
	return e.ticks.Load()
}

// History returns the recent PV samples of one parameter, oldest first.
func (e *Engine) History(name string) ([]float64, error) {
	if !e.registry.Has(name) {
		return nil, &reactor.UnknownParameterError{Name: name}
	}
	return e.history.Values(name), nil
}
