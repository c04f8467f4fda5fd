// Package ticker runs the fixed-period refresh that re-derives the floor views.
package ticker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the refresh period of the floor screen.
const DefaultInterval = time.Second

var (
	errMissingSource  = errors.New("ticker: frame source is required")
	errMissingSink    = errors.New("ticker: frame sink is required")
	errAlreadyRunning = errors.New("ticker: driver already running")
)

// Source produces one frame from the current state without mutating it.
type Source[F any] func() F

// Sink receives every produced frame.
type Sink[F any] func(F)

// Config describes a Driver.
type Config[F any] struct {
	Interval time.Duration
	Source   Source[F]
	Sink     Sink[F]
	Logger   *zap.Logger
}

// Driver repeatedly pulls a frame from Source and hands it to Sink.
type Driver[F any] struct {
	interval time.Duration
	source   Source[F]
	sink     Sink[F]
	logger   *zap.Logger
	running  atomic.Bool
	busy     atomic.Bool
	ticks    atomic.Uint64
	skipped  atomic.Uint64
}

// NewDriver validates cfg and returns a stopped driver.
func NewDriver[F any](cfg Config[F]) (*Driver[F], error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Sink == nil {
		return nil, errMissingSink
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver[F]{
		interval: interval,
		source:   cfg.Source,
		sink:     cfg.Sink,
		logger:   logger,
	}, nil
}

// Interval returns the refresh period.
func (d *Driver[F]) Interval() time.Duration {
	return d.interval
}

// Tick produces and delivers one frame. A tick that overlaps a running one is
// skipped and reported as false.
func (d *Driver[F]) Tick() bool {
	if !d.busy.CompareAndSwap(false, true) {
		d.skipped.Add(1)
		return false
	}
	defer d.busy.Store(false)

	d.sink(d.source())
	d.ticks.Add(1)
	return true
}

// Run ticks every interval until ctx is cancelled. The first frame is delivered
// immediately.
func (d *Driver[F]) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer d.running.Store(false)

	d.logger.Info("tick driver started", zap.Duration("interval", d.interval))
	timer := time.NewTicker(d.interval)
	defer timer.Stop()

	d.Tick()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("tick driver stopped",
				zap.Uint64("ticks", d.ticks.Load()),
				zap.Uint64("skipped", d.skipped.Load()))
			return nil
		case <-timer.C:
			d.Tick()
		}
	}
}

// Start runs the driver in the background and returns a function that stops it and
// waits for the loop to exit.
func (d *Driver[F]) Start(ctx context.Context) func() {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.Run(runCtx); err != nil {
			d.logger.Warn("tick driver not started", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Ticks returns the number of delivered frames.
func (d *Driver[F]) Ticks() uint64 {
	return d.ticks.Load()
}
