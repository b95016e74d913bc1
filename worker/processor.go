package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/agent"
	"github.com/tasklab/agentq/errors"
	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/store"
	"github.com/tasklab/agentq/task"
)

// Processor runs one task end-to-end: idempotency gate, status
// transitions, agent invocation, result retention and outcome
// publication. Every per-task error is contained here; nothing
// propagates to the consumer loop.
type Processor struct {
	store       store.StatusStore
	sink        queue.Sink
	registry    *agent.Registry
	resultTopic string
	ttl         time.Duration
	metrics     *Metrics
	log         zerolog.Logger
}

// NewProcessor wires a task processor.
func NewProcessor(st store.StatusStore, sink queue.Sink, reg *agent.Registry, resultTopic string, ttl time.Duration, metrics *Metrics, log zerolog.Logger) *Processor {
	return &Processor{
		store:       st,
		sink:        sink,
		registry:    reg,
		resultTopic: resultTopic,
		ttl:         ttl,
		metrics:     metrics,
		log:         log.With().Str("component", "processor").Logger(),
	}
}

// Process executes one task. The returned error is informational; the
// caller never acts on it beyond logging, because all recovery happens
// inside. A panic anywhere in the pipeline is recovered here.
func (p *Processor) Process(ctx context.Context, msg task.Message) (err error) {
	start := time.Now()
	log := p.log.With().
		Str("task_id", msg.TaskID).
		Str("user_id", msg.UserID).
		Str("agent_type", msg.AgentType).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			perr := errors.RecoverPanic(r)
			log.Error().Err(perr).Msg("panic while processing task")
			p.fail(ctx, log, msg, perr)
			err = perr
		}
	}()

	// Idempotency gate: a task that already reached a terminal status
	// is a duplicate delivery and must be absorbed with no writes and
	// no second outcome.
	status, gerr := p.store.GetStatus(ctx, msg.TaskID)
	switch {
	case gerr == nil:
		if status.IsTerminal() {
			log.Debug().Str("status", status.String()).Msg("duplicate delivery of terminal task, skipping")
			p.metrics.Processed.WithLabelValues(outcomeSkipped, msg.AgentType).Inc()
			return nil
		}
	case stderrors.Is(gerr, store.ErrNotFound):
		// TTL expiry or a submitter that never wrote a status; the
		// task is still actionable.
	default:
		// The gate is a safety net; refusing to process because the
		// read failed would strand the task.
		log.Warn().Err(gerr).Msg("idempotency check failed, proceeding")
	}

	if serr := p.store.SetStatus(ctx, msg.TaskID, task.StatusRunning, p.ttl); serr != nil {
		ierr := errors.WrapWithCode(serr, errors.ErrCodeStoreUnavailable, "claiming task", errors.WithTaskID(msg.TaskID))
		log.Error().Err(ierr).Msg("cannot write running status")
		p.fail(ctx, log, msg, ierr)
		return ierr
	}

	a, rerr := p.registry.Resolve(msg.AgentType)
	if rerr != nil {
		log.Warn().Err(rerr).Msg("no capability for agent type")
		p.fail(ctx, log, msg, rerr)
		return rerr
	}

	profile, xerr := agent.Execute(ctx, a, msg.TaskID, msg.Payload)
	if xerr != nil {
		// Business failures are the expected failure path and are not
		// system faults; infrastructure faults get an error-level log.
		if errors.CodeOf(xerr) == errors.ErrCodeProcessing {
			log.Error().Err(xerr).Msg("task processing fault")
		} else {
			log.Info().Str("code", errors.CodeOf(xerr).String()).Msg("agent reported failure")
		}
		p.fail(ctx, log, msg, xerr)
		p.metrics.Duration.WithLabelValues(a.Type()).Observe(time.Since(start).Seconds())
		return xerr
	}

	resultJSON, merr := json.Marshal(profile)
	if merr != nil {
		p.fail(ctx, log, msg, errors.Wrap(merr, "encoding result", errors.WithTaskID(msg.TaskID)))
		return merr
	}

	if serr := p.store.SetStatusWithResult(ctx, msg.TaskID, task.StatusDone, resultJSON, p.ttl); serr != nil {
		ierr := errors.WrapWithCode(serr, errors.ErrCodeStoreUnavailable, "writing done status", errors.WithTaskID(msg.TaskID))
		log.Error().Err(ierr).Msg("cannot write done status")
		p.fail(ctx, log, msg, ierr)
		return ierr
	}

	p.publish(ctx, log, task.NewSuccessOutcome(msg.TaskID, msg.UserID, profile))
	p.metrics.Processed.WithLabelValues(outcomeDone, msg.AgentType).Inc()
	p.metrics.Duration.WithLabelValues(a.Type()).Observe(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("task done")
	return nil
}

// fail performs the failure path: best-effort failed status write,
// then exactly one error outcome publish.
func (p *Processor) fail(ctx context.Context, log zerolog.Logger, msg task.Message, cause error) {
	// The cause may be the cancellation of ctx itself; the terminal
	// bookkeeping still has to land.
	ctx = context.WithoutCancel(ctx)

	if serr := p.store.SetStatus(ctx, msg.TaskID, task.StatusFailed, p.ttl); serr != nil {
		log.Error().Err(serr).Msg("cannot write failed status")
	}

	outcome := task.NewFailureOutcome(
		msg.TaskID,
		msg.UserID,
		errors.CodeOf(cause).String(),
		errors.MessageOf(cause),
	)
	p.publish(ctx, log, outcome)
	p.metrics.Processed.WithLabelValues(outcomeFailed, msg.AgentType).Inc()
}

// publish sends the outcome to the result topic, keyed by task id.
func (p *Processor) publish(ctx context.Context, log zerolog.Logger, outcome task.Outcome) {
	body, err := outcome.Encode()
	if err != nil {
		log.Error().Err(err).Msg("cannot encode outcome")
		return
	}
	if err := p.sink.Send(ctx, p.resultTopic, body, outcome.TaskID); err != nil {
		log.Error().Err(err).Str("topic", p.resultTopic).Msg("cannot publish outcome")
		return
	}
	p.metrics.Published.WithLabelValues(boolLabel(outcome.Success)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
