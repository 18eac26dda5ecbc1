package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

// handleEvents serves a Server-Sent Events stream of a run's events. The
// history is replayed first; the stream ends with a "done" event carrying the
// run's final status. A run that is no longer live gets only the "done" event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Get(id); errors.Is(err, pipeline.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sendDone := func() {
		status := "unknown"
		if rec, err := s.store.Get(id); err == nil {
			status = rec.Status
		}
		fmt.Fprintf(w, "event: done\ndata: {\"status\":%q}\n\n", status)
		flusher.Flush()
	}

	lr, live := s.live(id)
	if !live {
		sendDone()
		return
	}

	replay, events, unsubscribe := lr.hub.subscribe()
	defer unsubscribe()
	for _, e := range replay {
		writeEvent(w, e)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				<-lr.done
				sendDone()
				return
			}
			writeEvent(w, e)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, e orchestrator.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
}
