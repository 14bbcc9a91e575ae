package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler streams broker events as SSE. Clients may narrow the stream
// with ?jobs=id1,id2 and ?kinds=page_done,finished.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		jobs := parseSet(r.URL.Query().Get("jobs"))
		kinds := parseSet(r.URL.Query().Get("kinds"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if (jobs != nil && !jobs[evt.Job]) || (kinds != nil && !kinds[evt.Kind]) {
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.Job, evt.Kind, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

func parseSet(q string) map[string]bool {
	if q == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, v := range strings.Split(q, ",") {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}
