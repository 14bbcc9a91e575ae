package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func response(status int, contentType, body string) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testClient(rt roundTripFunc) *Client {
	opts := DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	opts.UserAgent = "webarchivist-test"
	opts.Transport = rt
	return NewClient(opts)
}

func TestJSONDecodesBody(t *testing.T) {
	var gotUA string
	c := testClient(func(req *http.Request) (*http.Response, error) {
		gotUA = req.Header.Get("User-Agent")
		return response(http.StatusOK, "application/json", `{"width":600,"height":400}`), nil
	})

	var info struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := c.JSON(context.Background(), "https://content.prlib.ru/info.json", &info); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if info.Width != 600 || info.Height != 400 {
		t.Fatalf("JSON() = %+v; want 600x400", info)
	}
	if gotUA != "webarchivist-test" {
		t.Fatalf("User-Agent = %q; want %q", gotUA, "webarchivist-test")
	}
}

func TestTileReportsContentType(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "image/jpeg", "\xff\xd8"), nil
	})
	p, err := c.Tile(context.Background(), "https://example.test/tile")
	if err != nil {
		t.Fatalf("Tile() error = %v", err)
	}
	if !p.IsImage() {
		t.Fatalf("IsImage() = false for %q", p.ContentType)
	}

	html := &Payload{ContentType: "text/html; charset=utf-8"}
	if html.IsImage() {
		t.Fatalf("IsImage() = true for text/html")
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(func(*http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return response(http.StatusBadGateway, "", ""), nil
		}
		return response(http.StatusOK, "image/png", "png"), nil
	})
	p, err := c.Blob(context.Background(), "https://example.test/img")
	if err != nil {
		t.Fatalf("Blob() error = %v", err)
	}
	if string(p.Data) != "png" {
		t.Fatalf("Blob() data = %q; want %q", p.Data, "png")
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d; want 3", calls.Load())
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusNotFound, "", ""), nil
	})
	_, err := c.Blob(context.Background(), "https://example.test/missing")
	if !apperr.Is(err, apperr.CodeResourceNotFound) {
		t.Fatalf("Blob() error = %v; want %s", err, apperr.CodeResourceNotFound)
	}
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("Blob() error does not wrap ErrStatus")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d; want 1", calls.Load())
	}
}

func TestTransportErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	c := testClient(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})
	_, err := c.Tile(context.Background(), "https://example.test/tile")
	if !apperr.Is(err, apperr.CodeFetchFailed) {
		t.Fatalf("Tile() error = %v; want %s", err, apperr.CodeFetchFailed)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d; want 3", calls.Load())
	}
}

func TestMaxBytes(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBytes = 4
	opts.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, "image/jpeg", "too large"), nil
	})
	c := NewClient(opts)
	if _, err := c.Blob(context.Background(), "https://example.test/big"); !apperr.Is(err, apperr.CodeFetchFailed) {
		t.Fatalf("Blob() error = %v; want %s", err, apperr.CodeFetchFailed)
	}
}
