package sites

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/dgnsrekt/webarchivist/internal/fetch"
	"github.com/dgnsrekt/webarchivist/internal/tabs"
)

// pageDriver hands out targets whose Navigate calls onNavigate with the tab id.
type pageDriver struct {
	mu         sync.Mutex
	next       int
	onNavigate func(tabID, url string) error
	title      string
	html       func(n int) string
	closed     []string
}

func (d *pageDriver) NewTarget(context.Context) (tabs.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	return &pageTarget{d: d, id: fmt.Sprintf("tab-%d", d.next)}, nil
}

type pageTarget struct {
	d     *pageDriver
	id    string
	reads int
}

func (t *pageTarget) ID() string { return t.id }

func (t *pageTarget) Navigate(_ context.Context, url string) error {
	if t.d.onNavigate == nil {
		return nil
	}
	return t.d.onNavigate(t.id, url)
}

func (t *pageTarget) Title(context.Context) (string, error) { return t.d.title, nil }

func (t *pageTarget) HTML(context.Context) (string, error) {
	t.reads++
	if t.d.html == nil {
		return "<html></html>", nil
	}
	return t.d.html(t.reads), nil
}

func (t *pageTarget) Close() error {
	t.d.mu.Lock()
	t.d.closed = append(t.d.closed, t.id)
	t.d.mu.Unlock()
	return nil
}

// blobs serves fixed payloads by URL; unknown URLs are 404s.
type blobs map[string]*fetch.Payload

func (b blobs) Blob(_ context.Context, url string) (*fetch.Payload, error) {
	if p, ok := b[url]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: 404 %s", fetch.ErrStatus, url)
}

func (b blobs) Tile(ctx context.Context, url string) (*fetch.Payload, error) {
	return b.Blob(ctx, url)
}

func (b blobs) JSON(_ context.Context, url string, v any) error {
	p, ok := b[url]
	if !ok {
		return fmt.Errorf("%w: 404 %s", fetch.ErrStatus, url)
	}
	return json.Unmarshal(p.Data, v)
}

func jpegPayload(body string) *fetch.Payload {
	return &fetch.Payload{Status: 200, ContentType: "image/jpeg", Data: []byte(body)}
}

func lastSegment(u string) string { return u[strings.LastIndex(u, "/")+1:] }
