//go:build integration

package integration

import (
	"net/http"
	"os"
	"testing"
	"time"
)

func TestStartRejectsForeignURL(t *testing.T) {
	resp := env.POST(t, "/api/v1/jobs/yandex", map[string]any{
		"url":   "https://example.org/archive/1",
		"start": 1,
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.POST(t, "/api/v1/jobs/goskatalog", map[string]any{
		"url": "https://goskatalog.ru/portal/#/collections",
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestStartPrLibRejectsBadRange(t *testing.T) {
	resp := env.POST(t, "/api/v1/jobs/prlib", map[string]any{
		"document": map[string]any{"key": "k", "group": "g", "files": []string{"a"}},
		"start":    1,
		"end":      3,
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestUnknownJob(t *testing.T) {
	resp := env.GET(t, "/api/v1/jobs/00000000-0000-0000-0000-000000000000")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

// TestYandexDownload needs a reachable document: set ARCHIVIST_IT_YANDEX_URL
// to one of its page URLs.
func TestYandexDownload(t *testing.T) {
	pageURL := os.Getenv("ARCHIVIST_IT_YANDEX_URL")
	if pageURL == "" {
		t.Skip("ARCHIVIST_IT_YANDEX_URL not set")
	}

	resp := env.POST(t, "/api/v1/jobs/yandex", map[string]any{"url": pageURL, "start": 1, "end": 2, "zip": true})
	requireStatus(t, resp, http.StatusAccepted)
	queued := decodeJSON[jobInfo](t, resp)

	info := env.waitJob(t, queued.ID, 3*time.Minute)
	if info.Status == "fail" {
		t.Fatalf("job failed: %s", info.ErrorCode)
	}
	if len(info.Artifacts) != 1 {
		t.Fatalf("artifacts = %+v; want one archive", info.Artifacts)
	}
	t.Logf("archive %s (%d bytes), status %s", info.Artifacts[0].Name, info.Artifacts[0].Size, info.Status)
}

func TestJobsListed(t *testing.T) {
	resp := env.GET(t, "/api/v1/jobs")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Jobs []jobInfo `json:"jobs"`
	}](t, resp)
	for _, j := range result.Jobs {
		if j.ID == "" {
			t.Fatalf("listed job without id: %+v", j)
		}
	}
}
