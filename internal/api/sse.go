package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/skillflow/orchestrator/internal/metrics"
	"github.com/skillflow/orchestrator/internal/runstore"
	"github.com/skillflow/orchestrator/pkg/types"
)

// StreamEvents handles GET /api/v1/runs/{id}/events
// It implements Server-Sent Events (SSE) for streaming run events. Clients
// resume after a disconnect by sending the last seen sequence number in the
// Last-Event-ID header.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]
	startTime := time.Now()
	requestID := GetRequestID(ctx, r)

	metrics.SSEActiveConnections.Inc()
	defer metrics.SSEActiveConnections.Dec()

	h.logger.Info("SSE connection opened",
		slog.String("run_id", runID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	meta, err := h.store.GetRunMeta(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", errors.New("response writer is not a flusher"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.writeSSE(w, flusher, &types.Event{
		ID:        "0",
		RunID:     runID,
		Type:      types.EventTypeHello,
		Timestamp: time.Now().UTC(),
	})

	// Subscribe before replaying history so nothing falls in the gap.
	// Replay filters duplicates by sequence number.
	eventCh, cleanup, err := h.store.Subscribe(ctx, runID)
	if err != nil {
		h.logger.Error("failed to subscribe to events", "error", err, "run_id", runID)
		return
	}
	defer cleanup()

	afterSeq := parseLastEventID(r.Header.Get("Last-Event-ID"))
	lastSent := afterSeq
	events, err := h.store.GetEventsSince(ctx, runID, afterSeq)
	if err != nil {
		h.logger.Error("failed to get historical events", "error", err, "run_id", runID)
	} else {
		for _, evt := range events {
			h.writeSSE(w, flusher, evt)
			if evt.Seq > lastSent {
				lastSent = evt.Seq
			}
		}
	}

	// A terminal run emits no further events; send history and close.
	if isTerminal(meta.Status) {
		h.sendStreamEnd(w, flusher, runID, meta)
		return
	}

	done := r.Context().Done()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			duration := time.Since(startTime)
			h.logger.Info("SSE connection closed",
				slog.String("run_id", runID),
				slog.String("request_id", requestID),
				slog.Duration("duration", duration),
				slog.String("reason", "client_disconnect"),
			)
			return

		case evt, ok := <-eventCh:
			if !ok {
				h.logger.Info("SSE connection closed",
					slog.String("run_id", runID),
					slog.String("request_id", requestID),
					slog.Duration("duration", time.Since(startTime)),
					slog.String("reason", "subscription_closed"),
				)
				return
			}
			if evt.Seq <= lastSent {
				continue
			}
			h.writeSSE(w, flusher, evt)
			lastSent = evt.Seq

			if evt.Type == types.EventTypeRunStatus && runStatusTerminal(evt) {
				meta, err := h.store.GetRunMeta(ctx, runID)
				if err == nil {
					h.sendStreamEnd(w, flusher, runID, meta)
				}
				h.logger.Info("SSE connection closed",
					slog.String("run_id", runID),
					slog.String("request_id", requestID),
					slog.Duration("duration", time.Since(startTime)),
					slog.String("reason", "run_finished"),
				)
				return
			}

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

// parseLastEventID turns the Last-Event-ID header into a sequence number.
// Absent or unparseable headers mean "from the beginning".
func parseLastEventID(header string) int64 {
	if header == "" {
		return 0
	}
	seq, err := strconv.ParseInt(header, 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

func isTerminal(status types.RunStatus) bool {
	switch status {
	case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusCancelled:
		return true
	}
	return false
}

// runStatusTerminal reports whether a run status event carries a terminal
// status.
func runStatusTerminal(evt *types.Event) bool {
	var payload types.RunStatusEvent
	if err := json.Unmarshal(evt.Data, &payload); err != nil {
		return false
	}
	return isTerminal(payload.Status)
}

// writeSSE writes an event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, evt *types.Event) {
	if evt == nil {
		return
	}
	if _, err := w.Write(evt.ToSSE()); err != nil {
		h.logger.Error("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Error("failed to write SSE comment", "error", err)
		return
	}
	flusher.Flush()
}

// sendStreamEnd sends a final event carrying the run's terminal status.
func (h *Handlers) sendStreamEnd(w http.ResponseWriter, flusher http.Flusher, runID string, meta *types.RunMeta) {
	data := map[string]interface{}{"status": meta.Status}
	if meta.Error != "" {
		data["error"] = meta.Error
	}
	payload, _ := json.Marshal(data)

	h.writeSSE(w, flusher, &types.Event{
		ID:        "final",
		RunID:     runID,
		Type:      types.EventTypeStreamEnd,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
}
