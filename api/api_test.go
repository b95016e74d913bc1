package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/store"
	"github.com/tasklab/agentq/task"
)

const requestTopic = "tasks.request"

func newTestHandler(t *testing.T) (*Handler, *store.MemoryStore, *queue.MemoryQueue) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	q := queue.NewMemoryQueue(requestTopic)
	h := NewHandler(st, q, requestTopic, time.Hour, zerolog.Nop())
	return h, st, q
}

func doRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, r)
	return w
}

func TestSubmitTask(t *testing.T) {
	h, st, q := newTestHandler(t)

	w := doRequest(h, http.MethodPost, "/api/v1/tasks",
		`{"user_id":"u-1","content":"watched: solar panels"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body)
	}

	var resp struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatal("response has no task_id")
	}
	if resp.Status != "queued" {
		t.Fatalf("status = %q, want queued", resp.Status)
	}

	// The status entry and the queue message both exist.
	status, err := st.GetStatus(context.Background(), resp.TaskID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != task.StatusQueued {
		t.Fatalf("stored status = %q, want queued", status)
	}

	bodies := q.Bodies(requestTopic)
	if len(bodies) != 1 {
		t.Fatalf("published %d messages, want 1", len(bodies))
	}
	msg, err := task.DecodeMessage(bodies[0])
	if err != nil {
		t.Fatalf("decode published message: %v", err)
	}
	if msg.TaskID != resp.TaskID || msg.UserID != "u-1" || msg.Payload != "watched: solar panels" {
		t.Fatalf("published message = %+v", msg)
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	h, _, q := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing user_id", `{"content":"x"}`},
		{"missing content", `{"user_id":"u"}`},
		{"blank user_id", `{"user_id":"  ","content":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(h, http.MethodPost, "/api/v1/tasks", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
		})
	}

	if n := len(q.Bodies(requestTopic)); n != 0 {
		t.Fatalf("rejected requests published %d messages", n)
	}
}

func TestSubmitTaskRollsBackOnPublishFailure(t *testing.T) {
	h, st, q := newTestHandler(t)

	// A closed queue makes every publish fail.
	q.Close()

	w := doRequest(h, http.MethodPost, "/api/v1/tasks",
		`{"user_id":"u-1","content":"x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	// No task may be left queued with no message behind it. The store
	// holds exactly zero entries after the rollback.
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TaskID != "" {
		if _, err := st.GetStatus(context.Background(), resp.TaskID); err == nil {
			t.Fatal("queued status survived a failed publish")
		}
	}
}

func TestGetTask(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()

	if err := st.SetStatus(ctx, "t-1", task.StatusRunning, time.Hour); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	w := doRequest(h, http.MethodGet, "/api/v1/tasks/t-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		TaskID string          `json:"task_id"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TaskID != "t-1" || resp.Status != "running" {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Result) != 0 {
		t.Fatalf("running task has result %s", resp.Result)
	}
}

func TestGetTaskIncludesRetainedResult(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()

	result := []byte(`{"tags":["a"],"score":50,"reason":"r"}`)
	if err := st.SetStatusWithResult(ctx, "t-2", task.StatusDone, result, time.Hour); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	w := doRequest(h, http.MethodGet, "/api/v1/tasks/t-2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Status string       `json:"status"`
		Result task.Profile `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "done" || resp.Result.Score != 50 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := doRequest(h, http.MethodGet, "/api/v1/tasks/no-such-task", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLegacyRoutes(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()

	w := doRequest(h, http.MethodPost, "/tasks", `{"user_id":"u","content":"c"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("legacy submit status = %d, want 202", w.Code)
	}

	if err := st.SetStatus(ctx, "t-l", task.StatusQueued, time.Hour); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	w = doRequest(h, http.MethodGet, "/tasks/t-l", "")
	if w.Code != http.StatusOK {
		t.Fatalf("legacy get status = %d, want 200", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	h, st, _ := newTestHandler(t)

	w := doRequest(h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	st.Close()
	w = doRequest(h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after store close = %d, want 503", w.Code)
	}
}
