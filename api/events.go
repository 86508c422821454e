/*
events.go - Server-sent event stream

PURPOSE:
  Bridges the in-process notify bus to clients over SSE so board views
  can update live. Delivery mirrors the bus semantics: best-effort,
  lossy, every event means "re-read this container".

SEE ALSO:
  - notify/bus.go: The bus this subscribes to
  - engine/engine.go: What gets published and when
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const eventBufferSize = 64

// StreamEvents streams bus events to the client as server-sent events.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		writeError(w, http.StatusNotImplemented, "Event streaming is not enabled", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.Bus.Subscribe(eventBufferSize)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				h.Log.Warn("failed to encode event payload", "topic", event.Topic, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, payload)
			flusher.Flush()
		}
	}
}
