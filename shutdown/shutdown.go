// Package shutdown coordinates ordered teardown of a process. Handlers
// register with a phase number; lower phases stop first, handlers in
// the same phase stop concurrently. The worker binary uses it to stop
// intake before draining tasks and to close connections last.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates at least one handler returned an error.
	ErrHandlerFailed = errors.New("one or more shutdown handlers failed")
)

// HandlerFunc tears down one component. The context is canceled when
// the shutdown timeout lapses; implementations stop accepting work,
// finish what they can, and release resources.
type HandlerFunc func(ctx context.Context) error

// Progress reports one completed handler, for logging.
type Progress struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

type registration struct {
	name    string
	phase   int
	fn      HandlerFunc
}

// Coordinator runs registered handlers in phase order exactly once.
type Coordinator struct {
	timeout    time.Duration
	onProgress func(Progress)

	mu       sync.Mutex
	handlers []registration

	once sync.Once
	done chan struct{}
	err  error

	sigc chan os.Signal
}

// NewCoordinator creates a coordinator. timeout bounds the whole
// shutdown when triggered by a signal or ShutdownWithTimeout; zero
// means 30 seconds.
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		done:    make(chan struct{}),
		sigc:    make(chan os.Signal, 1),
	}
}

// OnProgress sets a callback invoked as each handler completes.
// Must be set before Shutdown runs.
func (c *Coordinator) OnProgress(fn func(Progress)) {
	c.onProgress = fn
}

// Register adds a handler. Lower phases shut down first; handlers
// sharing a phase shut down concurrently.
func (c *Coordinator) Register(name string, phase int, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, fn: fn})
}

// Shutdown runs all handlers in phase order. The first call wins;
// later calls return ErrAlreadyShutdown without running anything,
// unless shutdown already finished, in which case they return its
// result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if ran {
		return c.err
	}

	select {
	case <-c.done:
		return c.err
	default:
		return ErrAlreadyShutdown
	}
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals binds SIGINT and SIGTERM to shutdown.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c.sigc
		_ = c.ShutdownWithTimeout()
	}()
}

// Trigger injects a termination signal, used by tests.
func (c *Coordinator) Trigger() {
	select {
	case c.sigc <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown result, nil until Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := append([]registration(nil), c.handlers...)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed bool
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}

		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		if c.runPhase(ctx, handlers[start:end]) {
			failed = true
		}
		start = end
	}

	if failed {
		return ErrHandlerFailed
	}
	return nil
}

// runPhase runs one phase's handlers concurrently and reports whether
// any failed. A failure never stops later phases: teardown must reach
// the connection-closing handlers regardless.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) bool {
	errs := make([]error, len(group))
	var wg sync.WaitGroup
	for i, reg := range group {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			start := time.Now()
			err := reg.fn(ctx)
			errs[i] = err
			if c.onProgress != nil {
				c.onProgress(Progress{
					Name:     reg.name,
					Phase:    reg.phase,
					Duration: time.Since(start),
					Err:      err,
				})
			}
		}(i, reg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return true
		}
	}
	return false
}
