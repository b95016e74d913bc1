// Package api serves the task submission and status HTTP surface.
// Submission writes the queued status before publishing, and rolls the
// status back when the publish fails, so a task is never visible as
// queued with no message behind it.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tasklab/agentq/queue"
	"github.com/tasklab/agentq/store"
	"github.com/tasklab/agentq/task"
)

// Handler serves the HTTP API. It reads task state from the status
// store only; the queue is written on submission and never read.
type Handler struct {
	store store.StatusStore
	sink  queue.Sink
	topic string
	ttl   time.Duration
	log   zerolog.Logger
}

// NewHandler wires the API handler. topic is the request topic task
// messages are published to; ttl applies to the queued status entry.
func NewHandler(st store.StatusStore, sink queue.Sink, topic string, ttl time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		store: st,
		sink:  sink,
		topic: topic,
		ttl:   ttl,
		log:   log.With().Str("component", "api").Logger(),
	}
}

// Routes returns the handler with all endpoints and middleware bound.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/tasks", h.submitTask)
	mux.HandleFunc("GET /api/v1/tasks/{task_id}", h.getTask)

	// The original system served both prefixes; clients still use the
	// short one.
	mux.HandleFunc("POST /tasks", h.submitTask)
	mux.HandleFunc("GET /tasks/{task_id}", h.getTask)

	mux.HandleFunc("GET /healthz", h.healthz)

	return h.recoverer(h.requestLogger(mux))
}

type submitRequest struct {
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	AgentType string `json:"agent_type,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *Handler) submitTask(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Content) == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and content are required")
		return
	}

	ctx := r.Context()
	taskID := uuid.New().String()

	if err := h.store.SetStatus(ctx, taskID, task.StatusQueued, h.ttl); err != nil {
		h.log.Error().Err(err).Msg("cannot write queued status")
		h.writeError(w, http.StatusInternalServerError, "cannot accept task")
		return
	}

	msg := task.Message{
		TaskID:    taskID,
		UserID:    req.UserID,
		Payload:   req.Content,
		AgentType: req.AgentType,
	}
	body, err := msg.Encode()
	if err != nil {
		h.log.Error().Err(err).Msg("cannot encode task message")
		h.writeError(w, http.StatusInternalServerError, "cannot accept task")
		return
	}

	if err := h.sink.Send(ctx, h.topic, body, taskID); err != nil {
		// Compensate: a queued status with no message behind it would
		// never resolve.
		if derr := h.store.Delete(ctx, taskID); derr != nil {
			h.log.Error().Err(derr).Str("task_id", taskID).Msg("cannot roll back queued status")
		}
		h.log.Error().Err(err).Str("task_id", taskID).Msg("cannot publish task")
		h.writeError(w, http.StatusInternalServerError, "cannot accept task")
		return
	}

	h.log.Info().Str("task_id", taskID).Str("user_id", req.UserID).Msg("task accepted")
	h.writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID: taskID,
		Status: task.StatusQueued.String(),
	})
}

type taskResponse struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	ctx := r.Context()

	status, err := h.store.GetStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.log.Error().Err(err).Str("task_id", taskID).Msg("cannot read status")
		h.writeError(w, http.StatusInternalServerError, "cannot read task")
		return
	}

	resp := taskResponse{TaskID: taskID, Status: status.String()}
	if result, err := h.store.GetResult(ctx, taskID); err == nil {
		resp.Result = result
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Warn().Err(err).Str("task_id", taskID).Msg("cannot read result")
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("cannot write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, map[string]string{"error": msg})
}
