package relay

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	for i := 0; i < subscriberBufSize+5; i++ {
		b.Publish(Event{Job: "j", Kind: "page_done"})
	}
	if len(ch) != subscriberBufSize {
		t.Fatalf("buffered = %d; want %d", len(ch), subscriberBufSize)
	}
	if b.Dropped() != 5 {
		t.Fatalf("Dropped() = %d; want 5", b.Dropped())
	}
	b.Unsubscribe(id)
	b.Unsubscribe(id)
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}

func TestSSEHandlerFiltersJobs(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?jobs=a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	for b.ClientCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(Event{Job: "b", Kind: "page_done", Payload: `{"page":1}`})
	b.PublishJSON("a", "finished", map[string]string{"status": "success"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ":") || (line == "" && len(lines) == 0) {
			continue
		}
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	got := strings.Join(lines, "\n")
	want := "id: a\nevent: finished\ndata: {\"status\":\"success\"}"
	if got != want {
		t.Fatalf("stream = %q; want %q", got, want)
	}
}
