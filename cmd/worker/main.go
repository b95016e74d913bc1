// The worker process consumes task messages from the queue, runs them
// through their agent capability under a bounded-concurrency gate, and
// publishes outcomes. Prometheus metrics are exposed on METRICS_ADDR.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/agent"
	"github.com/tasklab/agentq/config"
	"github.com/tasklab/agentq/llm"
	"github.com/tasklab/agentq/logging"
	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/shutdown"
	"github.com/tasklab/agentq/store"
	"github.com/tasklab/agentq/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentq-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Service:     "agentq-worker",
		Environment: cfg.Environment,
	})
	log.Info().
		Str("backend", cfg.QueueBackend).
		Str("request_topic", cfg.RequestTopic).
		Str("result_topic", cfg.ResultTopic).
		Msg("starting worker")

	ctx := context.Background()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("status store: %w", err)
	}

	src, err := newQueue(ctx, cfg, log)
	if err != nil {
		st.Close()
		return fmt.Errorf("queue: %w", err)
	}

	reg, err := newRegistry(cfg, log)
	if err != nil {
		st.Close()
		src.Close()
		return err
	}
	log.Info().Stringer("agents", reg).Msg("capabilities registered")

	metrics := worker.NewMetrics(prometheus.DefaultRegisterer)
	processor := worker.NewProcessor(st, src, reg, cfg.ResultTopic, cfg.StatusTTL, metrics, log)
	w := worker.New(worker.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		BatchCap:      cfg.BatchCap,
		Visibility:    cfg.Visibility,
		IdleDelay:     cfg.IdleDelay,
		ErrorPause:    cfg.ErrorPause,
		StopTimeout:   cfg.StopTimeout,
		DrainTimeout:  cfg.DrainTimeout,
	}, src, processor, metrics, log)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listener started")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	if err := w.Start(ctx); err != nil {
		st.Close()
		src.Close()
		return err
	}

	// Worker.Stop applies its own stop and drain timeouts; the
	// coordinator budget has to cover both plus slack.
	coord := shutdown.NewCoordinator(cfg.StopTimeout + cfg.DrainTimeout + 10*time.Second)
	coord.OnProgress(func(p shutdown.Progress) {
		evt := log.Info()
		if p.Err != nil {
			evt = log.Error().Err(p.Err)
		}
		evt.Str("handler", p.Name).Int("phase", p.Phase).Dur("elapsed", p.Duration).Msg("shutdown step")
	})
	coord.Register("metrics-listener", 10, func(ctx context.Context) error {
		return metricsSrv.Shutdown(ctx)
	})
	coord.Register("worker", 20, func(ctx context.Context) error {
		return w.Stop()
	})
	coord.Register("status-store", 30, func(ctx context.Context) error {
		return st.Close()
	})

	coord.HandleSignals()
	<-coord.Done()

	if err := coord.Err(); err != nil {
		return err
	}
	log.Info().Msg("worker shut down cleanly")
	return nil
}

func newStore(ctx context.Context, cfg config.Config) (store.StatusStore, error) {
	if cfg.QueueBackend == config.BackendMemory {
		return store.NewMemoryStore(), nil
	}
	return store.NewRedisStore(ctx, store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
}

// newQueue builds the backend serving both the task source and the
// outcome sink.
func newQueue(ctx context.Context, cfg config.Config, log zerolog.Logger) (interface {
	queue.Source
	queue.Sink
}, error) {
	switch cfg.QueueBackend {
	case config.BackendRedis:
		return queue.NewRedisQueue(ctx, queue.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPass,
			DB:          cfg.RedisDB,
			Stream:      cfg.RequestTopic,
			Group:       cfg.Group,
			MaxLen:      cfg.StreamMaxLen,
			PollTimeout: cfg.PollTimeout,
		}, log)
	case config.BackendNATS:
		return queue.NewNATSQueue(ctx, queue.NATSConfig{
			URL:         cfg.NATSURL,
			Name:        "agentq-worker",
			Subject:     cfg.RequestTopic,
			Group:       cfg.Group,
			MaxMsgs:     cfg.StreamMaxLen,
			PollTimeout: cfg.PollTimeout,
		}, log)
	default:
		return queue.NewMemoryQueue(cfg.RequestTopic), nil
	}
}

func newRegistry(cfg config.Config, log zerolog.Logger) (*agent.Registry, error) {
	reg := agent.NewRegistry(cfg.DefaultAgent)
	reg.Register(agent.NewMock(cfg.MockDelay))

	key := llmAPIKey(cfg)
	if key == "" {
		if cfg.DefaultAgent == agent.ProfileType {
			return nil, fmt.Errorf("default agent %q needs an LLM API key", cfg.DefaultAgent)
		}
		log.Warn().Str("provider", cfg.LLMProvider).Msg("no LLM API key, profile capability disabled")
		return reg, nil
	}

	provider, err := llm.New(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   key,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	reg.Register(agent.NewProfile(provider))
	return reg, nil
}

func llmAPIKey(cfg config.Config) string {
	switch cfg.LLMProvider {
	case "openai":
		return cfg.OpenAIAPIKey
	case "google":
		return cfg.GoogleAPIKey
	default:
		return cfg.AnthropicAPIKey
	}
}
