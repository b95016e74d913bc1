// Package worker runs the task consumption pipeline: an admission
// gate bounds concurrency, a consumer loop claims messages from the
// queue, and a processor drives each task through its agent and
// records the outcome.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/errors"
	"github.com/tasklab/agentq/queue"
)

// Worker states.
const (
	stateStopped int32 = iota
	stateStarting
	stateRunning
	stateStopping
)

// Config holds worker tuning. Zero values fall back to defaults.
type Config struct {
	// MaxConcurrent bounds tasks processed at once. Default: 10.
	MaxConcurrent int

	// BatchCap caps messages claimed per receive. Default: 16.
	BatchCap int

	// Visibility is the redelivery window for claimed messages.
	// Default: 30s.
	Visibility time.Duration

	// IdleDelay is the pause after an empty poll. Default: 100ms.
	IdleDelay time.Duration

	// ErrorPause is the pause after a receive error. Default: 1s.
	ErrorPause time.Duration

	// StopTimeout bounds waiting for the consumer loop to exit.
	// Default: 10s.
	StopTimeout time.Duration

	// DrainTimeout bounds waiting for in-flight tasks on shutdown.
	// Default: 30s.
	DrainTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// Worker owns the consumer loop and its admission gate, and manages
// the start/stop lifecycle around them.
type Worker struct {
	cfg       Config
	source    queue.Source
	processor *Processor
	gate      *Gate
	metrics   *Metrics
	log       zerolog.Logger

	state atomic.Int32

	loop       *Loop
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// taskCancel aborts in-flight processing, used only when the
	// drain window expires.
	taskCancel context.CancelFunc
}

// New assembles a worker around an already-constructed processor.
func New(cfg Config, source queue.Source, processor *Processor, metrics *Metrics, log zerolog.Logger) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:       cfg,
		source:    source,
		processor: processor,
		gate:      NewGate(cfg.MaxConcurrent),
		metrics:   metrics,
		log:       log.With().Str("component", "worker").Logger(),
	}
}

// Gate exposes the admission gate, mainly for tests and metrics.
func (w *Worker) Gate() *Gate { return w.gate }

// Start launches the consumer loop. It returns an error if the worker
// is not stopped.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(stateStopped, stateStarting) {
		return errors.New(errors.ErrCodeProcessing, "worker already started")
	}

	loopCtx, loopCancel := context.WithCancel(ctx)
	taskCtx, taskCancel := context.WithCancel(context.Background())
	w.loopCancel = loopCancel
	w.taskCancel = taskCancel
	w.loopDone = make(chan struct{})

	w.loop = NewLoop(w.source, w.gate, w.processor, LoopConfig{
		BatchCap:   w.cfg.BatchCap,
		Visibility: w.cfg.Visibility,
		IdleDelay:  w.cfg.IdleDelay,
		ErrorPause: w.cfg.ErrorPause,
	}, taskCtx, w.metrics, w.log)

	go func() {
		defer close(w.loopDone)
		w.loop.Run(loopCtx)
	}()

	w.state.Store(stateRunning)
	w.log.Info().
		Int("max_concurrent", w.cfg.MaxConcurrent).
		Dur("visibility", w.cfg.Visibility).
		Msg("worker started")
	return nil
}

// Stop performs the ordered shutdown: stop claiming new work, wait for
// the loop to exit, drain in-flight tasks within the drain window, then
// close the message source. In-flight tasks that outlive the drain
// window have their contexts canceled; their messages were already
// acked, so their statuses resolve through the failure path or stay
// running until a retry.
func (w *Worker) Stop() error {
	if !w.state.CompareAndSwap(stateRunning, stateStopping) {
		return errors.New(errors.ErrCodeProcessing, "worker not running")
	}
	defer w.state.Store(stateStopped)

	w.log.Info().Msg("worker stopping")
	w.loop.Stop()
	w.loopCancel()

	select {
	case <-w.loopDone:
	case <-time.After(w.cfg.StopTimeout):
		w.log.Warn().Dur("timeout", w.cfg.StopTimeout).Msg("consumer loop did not stop in time")
	}

	drained := make(chan struct{})
	go func() {
		w.loop.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		w.log.Info().Msg("in-flight tasks drained")
	case <-time.After(w.cfg.DrainTimeout):
		w.log.Warn().
			Dur("timeout", w.cfg.DrainTimeout).
			Int("in_flight", w.gate.InFlight()).
			Msg("drain window expired, canceling in-flight tasks")
		w.taskCancel()
		<-drained
	}
	w.taskCancel()

	if err := w.source.Close(); err != nil {
		w.log.Error().Err(err).Msg("closing message source")
		return errors.Wrap(err, "closing message source")
	}

	w.log.Info().Msg("worker stopped")
	return nil
}

// Running reports whether the consumer loop is active.
func (w *Worker) Running() bool {
	return w.state.Load() == stateRunning
}
