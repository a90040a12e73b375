package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recthink/recthink-client/internal/state"
)

// HandleEvents streams one "state" event per store mutation, starting with
// the current snapshot. A "ping" is sent on idle intervals.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before reading the snapshot so no mutation falls in between.
	updates := h.ctrl.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeState(w, h.ctrl.Snapshot()); err != nil {
		h.logger.Warn("failed to write initial state event", "error", err)
		return
	}
	flusher.Flush()
	h.logger.Info("Event stream connected", "remote", r.RemoteAddr)

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("Event stream disconnected", "remote", r.RemoteAddr)
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := writeState(w, st); err != nil {
				h.logger.Warn("failed to write state event", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				h.logger.Warn("failed to write keepalive ping", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeState(w io.Writer, st state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return writeSSEWithID(w, st.Version, "state", string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id uint64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
