// The server process accepts task submissions over HTTP, records the
// queued status and publishes task messages for the workers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/api"
	"github.com/tasklab/agentq/config"
	"github.com/tasklab/agentq/logging"
	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/shutdown"
	"github.com/tasklab/agentq/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentq-server: %v\n", err)
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
		Service:     "agentq-server",
		Environment: cfg.Environment,
	})

	ctx := context.Background()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("status store: %w", err)
	}

	sink, err := newSink(ctx, cfg, log)
	if err != nil {
		st.Close()
		return fmt.Errorf("queue publisher: %w", err)
	}

	handler := api.NewHandler(st, sink, cfg.RequestTopic, cfg.StatusTTL, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	coord := shutdown.NewCoordinator(30 * time.Second)
	coord.OnProgress(func(p shutdown.Progress) {
		evt := log.Info()
		if p.Err != nil {
			evt = log.Error().Err(p.Err)
		}
		evt.Str("handler", p.Name).Int("phase", p.Phase).Dur("elapsed", p.Duration).Msg("shutdown step")
	})
	coord.Register("http-server", 10, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	coord.Register("queue-publisher", 20, func(ctx context.Context) error {
		return sink.Close()
	})
	coord.Register("status-store", 30, func(ctx context.Context) error {
		return st.Close()
	})

	coord.HandleSignals()
	<-coord.Done()

	if err := coord.Err(); err != nil {
		return err
	}
	log.Info().Msg("server shut down cleanly")
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

func newSink(ctx context.Context, cfg config.Config, log zerolog.Logger) (queue.Sink, error) {
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
			URL:     cfg.NATSURL,
			Name:    "agentq-server",
			Subject: cfg.RequestTopic,
			Group:   cfg.Group,
			MaxMsgs: cfg.StreamMaxLen,
		}, log)
	default:
		return queue.NewMemoryQueue(cfg.RequestTopic), nil
	}
}
