//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL string
	Client  *http.Client
}

// jobInfo mirrors the JSON shape of a job snapshot.
type jobInfo struct {
	ID        string `json:"id"`
	Site      string `json:"site"`
	Title     string `json:"title"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Status    string `json:"status"`
	Done      int    `json:"done"`
	Failed    int    `json:"failed"`
	ErrorCode string `json:"error_code"`
	Artifacts []struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Size int    `json:"size"`
	} `json:"artifacts"`
}

func (j jobInfo) terminal() bool {
	switch j.Status {
	case "success", "partial", "fail":
		return true
	}
	return false
}

func (e *Env) ping() error {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check at %s: status %d", e.BaseURL, resp.StatusCode)
	}
	return nil
}

// waitJob polls a job until it reaches a terminal status.
func (e *Env) waitJob(t *testing.T, id string, timeout time.Duration) jobInfo {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		resp := e.GET(t, "/api/v1/jobs/"+id)
		requireStatus(t, resp, http.StatusOK)
		info := decodeJSON[jobInfo](t, resp)
		if info.terminal() {
			return info
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s still %s after %s", id, info.Status, timeout)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("ARCHIVIST_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8790"
	}

	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}

	if err := env.ping(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: using archivist at %s\n", env.BaseURL)

	os.Exit(m.Run())
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("POST %s: marshal body: %v", path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("POST %s: new request: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// --- Assertion helpers ---

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
