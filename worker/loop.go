package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/task"
)

// Loop is the consumer loop: it polls the message source only when
// admission capacity exists, claims messages and dispatches each to
// the processor under the gate. Acknowledgment policy is ack-on-claim:
// a message is acked as soon as a permit is held and before the
// processor runs, so redelivery can never double-process a claimed
// task; the processor's idempotency gate absorbs duplicates already in
// flight. The cost is that a crash between claim and the terminal
// status write loses that delivery.
type Loop struct {
	source    queue.Source
	gate      *Gate
	processor *Processor
	metrics   *Metrics
	log       zerolog.Logger

	batchCap   int
	visibility time.Duration
	idleDelay  time.Duration
	errorPause time.Duration

	// taskCtx parents processor contexts, so stopping the poll never
	// aborts in-flight work before the drain window.
	taskCtx context.Context

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// LoopConfig holds consumer loop tuning.
type LoopConfig struct {
	// BatchCap caps one receive call. Default: 16.
	BatchCap int

	// Visibility is the invisibility window claimed messages get.
	// Default: 30s.
	Visibility time.Duration

	// IdleDelay is the pause after an empty receive. Default: 100ms.
	IdleDelay time.Duration

	// ErrorPause is the pause after a receive error. Default: 1s.
	ErrorPause time.Duration
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.BatchCap <= 0 {
		c.BatchCap = 16
	}
	if c.Visibility <= 0 {
		c.Visibility = 30 * time.Second
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = 100 * time.Millisecond
	}
	if c.ErrorPause <= 0 {
		c.ErrorPause = time.Second
	}
	return c
}

// NewLoop wires a consumer loop. taskCtx parents the per-task
// processing contexts and outlives the polling context.
func NewLoop(source queue.Source, gate *Gate, processor *Processor, cfg LoopConfig, taskCtx context.Context, metrics *Metrics, log zerolog.Logger) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		source:     source,
		gate:       gate,
		processor:  processor,
		metrics:    metrics,
		log:        log.With().Str("component", "consumer-loop").Logger(),
		batchCap:   cfg.BatchCap,
		visibility: cfg.Visibility,
		idleDelay:  cfg.IdleDelay,
		errorPause: cfg.ErrorPause,
		taskCtx:    taskCtx,
	}
}

// Run polls until ctx is canceled or Stop is called. Receive errors
// pause and resume; they never terminate the loop.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info().Int("capacity", l.gate.Capacity()).Msg("consumer loop started")

	for !l.stopping(ctx) {
		// Backpressure: block until at least one permit frees instead
		// of sleep-and-recheck. The probe permit is released right
		// away; this loop is the only batch receiver, so the
		// availability read below stays meaningful.
		if err := l.gate.Acquire(ctx); err != nil {
			break
		}
		l.gate.Release()

		batch := l.gate.Available()
		if batch > l.batchCap {
			batch = l.batchCap
		}

		msgs, err := l.source.Receive(ctx, batch, l.visibility)
		if err != nil {
			if l.stopping(ctx) {
				break
			}
			l.log.Error().Err(err).Msg("receive failed, pausing")
			l.sleep(ctx, l.errorPause)
			continue
		}
		if len(msgs) == 0 {
			l.sleep(ctx, l.idleDelay)
			continue
		}

		l.dispatchBatch(ctx, msgs)
	}

	l.log.Info().Msg("consumer loop stopped")
}

// dispatchBatch claims and dispatches as many messages as capacity
// allows. Messages left over when the gate saturates stay unacked and
// redeliver after the visibility window; that is the design, not an
// error.
func (l *Loop) dispatchBatch(ctx context.Context, msgs []queue.Message) {
	for _, msg := range msgs {
		if l.stopping(ctx) {
			return
		}

		// Capacity may have been consumed since the receive sizing.
		if !l.gate.TryAcquire() {
			l.log.Debug().Int("left", len(msgs)).Msg("gate saturated mid-batch, leaving messages for redelivery")
			return
		}

		decoded, err := task.DecodeMessage(msg.Body)
		if err != nil {
			// Poison message: it can never succeed, and leaving it
			// unacked would redeliver it forever.
			l.gate.Release()
			l.metrics.Poisoned.Inc()
			l.log.Warn().Str("message_id", msg.ID).Err(err).Msg("malformed message acked and dropped")
			if aerr := l.source.Ack(ctx, msg); aerr != nil {
				l.log.Error().Err(aerr).Str("message_id", msg.ID).Msg("cannot ack poison message")
			}
			continue
		}

		// Claim: ack before processing. If the claim itself fails the
		// message stays with the queue and will redeliver.
		if aerr := l.source.Ack(ctx, msg); aerr != nil {
			l.gate.Release()
			l.log.Error().Err(aerr).Str("task_id", decoded.TaskID).Msg("claim ack failed, skipping delivery")
			continue
		}

		l.wg.Add(1)
		l.metrics.InFlight.Inc()
		go func(m task.Message) {
			defer func() {
				l.metrics.InFlight.Dec()
				l.gate.Release()
				l.wg.Done()
			}()
			// Contained inside the processor; the return is log-only.
			_ = l.processor.Process(l.taskCtx, m)
		}(decoded)
	}
}

// Stop signals the loop to exit at its next iteration.
func (l *Loop) Stop() {
	l.stopped.Store(true)
}

// Wait blocks until every dispatched task processor has finished.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) stopping(ctx context.Context) bool {
	return l.stopped.Load() || ctx.Err() != nil
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
