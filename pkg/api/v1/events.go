package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metamcp/metamcp/pkg/logger"
	"github.com/metamcp/metamcp/pkg/streaming"
)

// eventKeepAlive is the cadence of SSE keep-alive comments on the event
// stream.
const eventKeepAlive = 15 * time.Second

type eventRoutes struct {
	events *streaming.Manager
}

// EventRoutes returns the /events subrouter.
func EventRoutes(events *streaming.Manager) chi.Router {
	routes := &eventRoutes{events: events}
	r := chi.NewRouter()
	r.Get("/", routes.stream)
	return r
}

// filterFromQuery builds a subscriber filter from query parameters:
// event_types and server_ids are comma-separated lists,
// include_system=true opts in to health events.
func filterFromQuery(r *http.Request) streaming.Filter {
	q := r.URL.Query()
	return streaming.Filter{
		EventTypes:    splitList(q.Get("event_types")),
		ServerIDs:     splitList(q.Get("server_ids")),
		IncludeSystem: q.Get("include_system") == "true",
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (e *eventRoutes) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := e.events.Subscribe(filterFromQuery(r))
	defer e.events.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Debugf("failed to encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
