package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
)

// handleSSE streams run progress as Server-Sent Events. The optional ?run=
// query parameter limits the stream to one run.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	runFilter := r.URL.Query().Get("run")

	eventCh := s.eventBus.Subscribe()
	defer s.eventBus.Unsubscribe(eventCh)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "run_id", runFilter)
	s.sendSSEEvent(w, flusher, "connected", map[string]string{"status": "connected"})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case event, ok := <-eventCh:
			if !ok {
				s.logger.Info("EventBus closed, ending SSE stream")
				return
			}
			if runFilter != "" && event.RunID() != runFilter {
				continue
			}
			s.sendEventToClient(w, flusher, event)
		}
	}
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

// sendEventToClient converts an Event to SSE format and sends it.
func (s *Server) sendEventToClient(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	payload := map[string]interface{}{
		"run_id":    event.RunID(),
		"timestamp": event.Timestamp(),
	}

	switch e := event.(type) {
	case events.RunStartedEvent:
		payload["specialists"] = e.Specialists
		payload["document_size"] = e.DocumentSize

	case events.TaskStartedEvent:
		payload["task"] = e.Task
		payload["stage"] = e.Stage

	case events.TaskCompletedEvent:
		payload["task"] = e.Task
		payload["stage"] = e.Stage
		payload["success"] = e.Success
		payload["duration"] = e.Duration.String()
		if e.Error != "" {
			payload["error"] = e.Error
		}

	case events.FanOutCompletedEvent:
		payload["succeeded"] = e.Succeeded
		payload["failed"] = e.Failed

	case events.RunCompletedEvent:
		payload["duration"] = e.Duration.String()
		payload["degraded"] = e.Degraded

	case events.RunFailedEvent:
		payload["code"] = e.Code
		payload["error"] = e.Error

	default:
		s.logger.Debug("unhandled event type for SSE", "type", event.EventType())
	}

	s.sendSSEEvent(w, flusher, event.EventType(), payload)
}
