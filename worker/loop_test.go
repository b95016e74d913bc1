package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// waitFor polls cond until it holds or the deadline lapses.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startLoop(t *testing.T, tp *testPipeline, capacity int) (*Loop, context.CancelFunc, chan struct{}) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	gate := NewGate(capacity)
	loop := NewLoop(tp.queue, gate, tp.processor, LoopConfig{
		BatchCap:   16,
		Visibility: time.Minute,
		IdleDelay:  5 * time.Millisecond,
		ErrorPause: 5 * time.Millisecond,
	}, context.Background(), tp.metrics, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	return loop, cancel, done
}

func enqueue(t *testing.T, tp *testPipeline, ids ...string) {
	t.Helper()
	for _, id := range ids {
		msg := testMessage(id)
		body, err := msg.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := tp.queue.Send(context.Background(), testTaskTopic, body, id); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
}

func TestLoopProcessesAllMessages(t *testing.T) {
	a := &scriptedAgent{}
	tp := newTestPipeline(t, a)
	enqueue(t, tp, "l-1", "l-2", "l-3")

	loop, cancel, done := startLoop(t, tp, 4)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool {
		return len(tp.outcomes(t)) == 3
	}, "not all tasks produced outcomes")

	cancel()
	<-done
	loop.Wait()

	if n := tp.queue.Depth(testTaskTopic); n != 0 {
		t.Fatalf("queue depth = %d after processing, want 0", n)
	}
	if len(a.processedIDs()) != 3 {
		t.Fatalf("agent processed %d tasks, want 3", len(a.processedIDs()))
	}
}

func TestLoopNeverExceedsGateCapacity(t *testing.T) {
	const capacity = 2
	const pending = 5

	a := &scriptedAgent{release: make(chan struct{})}
	tp := newTestPipeline(t, a)
	for i := 0; i < pending; i++ {
		enqueue(t, tp, string(rune('a'+i)))
	}

	loop, cancel, done := startLoop(t, tp, capacity)
	defer cancel()

	// The loop must park at the gate with exactly capacity tasks
	// running; the rest wait in the queue.
	waitFor(t, 2*time.Second, func() bool {
		return a.inFlight.Load() == capacity
	}, "loop did not reach gate capacity")
	time.Sleep(50 * time.Millisecond)
	if p := a.peak.Load(); p > capacity {
		t.Fatalf("peak concurrency = %d, want <= %d", p, capacity)
	}

	close(a.release)

	waitFor(t, 2*time.Second, func() bool {
		return len(tp.outcomes(t)) == pending
	}, "not all tasks finished after release")
	if p := a.peak.Load(); p > capacity {
		t.Fatalf("peak concurrency = %d, want <= %d", p, capacity)
	}

	cancel()
	<-done
	loop.Wait()
}

func TestLoopAcksAndDropsPoisonMessages(t *testing.T) {
	a := &scriptedAgent{}
	tp := newTestPipeline(t, a)

	ctx := context.Background()
	if err := tp.queue.Send(ctx, testTaskTopic, []byte("{not json"), ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Valid JSON but missing required fields is poison too.
	if err := tp.queue.Send(ctx, testTaskTopic, []byte(`{"user_id":"u"}`), ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	enqueue(t, tp, "good-1")

	loop, cancel, done := startLoop(t, tp, 4)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool {
		return tp.queue.Depth(testTaskTopic) == 0
	}, "poison messages were not acked")

	cancel()
	<-done
	loop.Wait()

	if got := testutil.ToFloat64(tp.metrics.Poisoned); got != 2 {
		t.Fatalf("poisoned counter = %v, want 2", got)
	}
	// Poison never reaches the processor, so no outcome is published
	// for it.
	if n := len(tp.outcomes(t)); n != 1 {
		t.Fatalf("published %d outcomes, want 1", n)
	}
	if ids := a.processedIDs(); len(ids) != 1 || ids[0] != "good-1" {
		t.Fatalf("processed = %v, want [good-1]", ids)
	}
}

func TestLoopLeavesUnclaimedMessagesForRedelivery(t *testing.T) {
	a := &scriptedAgent{release: make(chan struct{})}
	tp := newTestPipeline(t, a)
	enqueue(t, tp, "r-1", "r-2", "r-3")

	loop, cancel, done := startLoop(t, tp, 1)
	defer cancel()

	waitFor(t, 2*time.Second, func() bool {
		return a.inFlight.Load() == 1
	}, "first task did not start")

	// One message is claimed and acked; the others must stay on the
	// queue unacked until capacity frees.
	if n := tp.queue.Depth(testTaskTopic); n != 2 {
		t.Fatalf("queue depth = %d while saturated, want 2", n)
	}

	close(a.release)
	waitFor(t, 2*time.Second, func() bool {
		return tp.queue.Depth(testTaskTopic) == 0
	}, "remaining messages were not processed")

	cancel()
	<-done
	loop.Wait()
}
