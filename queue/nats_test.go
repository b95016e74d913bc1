package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// natsURL returns the JetStream-enabled NATS URL for testing, or skips.
func natsURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}
	conn.Close()

	return url
}

func newNATSQueue(t *testing.T, subject, group string) *NATSQueue {
	t.Helper()

	q, err := NewNATSQueue(context.Background(), NATSConfig{
		URL:         natsURL(t),
		Subject:     subject,
		Group:       group,
		PollTimeout: time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewNATSQueue: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	return q
}

func TestNATSSendReceiveAck(t *testing.T) {
	subject := fmt.Sprintf("agentqtest.sr%d", time.Now().UnixNano())
	q := newNATSQueue(t, subject, "agentq-test")
	ctx := context.Background()

	if err := q.Send(ctx, subject, []byte(`{"task_id":"t1"}`), "t1"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs, err := q.Receive(ctx, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if string(msgs[0].Body) != `{"task_id":"t1"}` {
		t.Errorf("Body = %s", msgs[0].Body)
	}
	if msgs[0].Key != "t1" {
		t.Errorf("Key = %s", msgs[0].Key)
	}

	if err := q.Ack(ctx, msgs[0]); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	again, err := q.Receive(ctx, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("acked message redelivered: %d", len(again))
	}
}

func TestNATSRedeliveryAfterAckWait(t *testing.T) {
	subject := fmt.Sprintf("agentqtest.rd%d", time.Now().UnixNano())
	q := newNATSQueue(t, subject, "agentq-test")
	ctx := context.Background()

	if err := q.Send(ctx, subject, []byte("payload"), "k"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	first, err := q.Receive(ctx, 1, 500*time.Millisecond)
	if err != nil || len(first) != 1 {
		t.Fatalf("first Receive = %d msgs, err %v", len(first), err)
	}

	// Never ack; the delivery comes back after AckWait.
	time.Sleep(time.Second)

	second, err := q.Receive(ctx, 1, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("second Receive failed: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("unacked message should be redelivered, got %d", len(second))
	}
	if string(second[0].Body) != "payload" {
		t.Errorf("Body = %s", second[0].Body)
	}
}

func TestNATSEmptyReceive(t *testing.T) {
	subject := fmt.Sprintf("agentqtest.empty%d", time.Now().UnixNano())
	q := newNATSQueue(t, subject, "agentq-test")

	start := time.Now()
	msgs, err := q.Receive(context.Background(), 5, 30*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected no messages, got %d", len(msgs))
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Receive blocked %s, poll timeout not honored", elapsed)
	}
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"tasks.request", "TASKS_REQUEST"},
		{"tasks.result", "TASKS_RESULT"},
		{"plain", "PLAIN"},
	}

	for _, tt := range tests {
		if got := StreamName(tt.topic); got != tt.want {
			t.Errorf("StreamName(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
