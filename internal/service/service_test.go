package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/fetch"
	"github.com/dgnsrekt/webarchivist/internal/intercept"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/relay"
	"github.com/dgnsrekt/webarchivist/internal/sink"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/tabs"
	"github.com/dgnsrekt/webarchivist/internal/tiles"
)

type fakeFetch struct {
	mu    sync.Mutex
	items map[string]*fetch.Payload
}

func (f *fakeFetch) set(url string, p *fetch.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]*fetch.Payload{}
	}
	f.items[url] = p
}

func (f *fakeFetch) Blob(_ context.Context, url string) (*fetch.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.items[url]; ok {
		return p, nil
	}
	return nil, apperr.New(apperr.CodeResourceNotFound, "404 "+url, fetch.ErrStatus)
}

func (f *fakeFetch) Tile(ctx context.Context, url string) (*fetch.Payload, error) { return f.Blob(ctx, url) }

func (f *fakeFetch) JSON(ctx context.Context, url string, v any) error {
	p, err := f.Blob(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(p.Data, v)
}

type memJournal struct {
	mu      sync.Mutex
	records []JobInfo
}

func (j *memJournal) Append(record any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record.(JobInfo))
	return nil
}

// browser hands out fake tabs; navigate runs with the tab id.
type browser struct {
	mu       sync.Mutex
	n        int
	title    string
	html     string
	navigate func(tabID, url string)
}

func (b *browser) NewTarget(context.Context) (tabs.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	return &tab{b: b, id: fmt.Sprintf("tab-%d", b.n)}, nil
}

type tab struct {
	b  *browser
	id string
}

func (t *tab) ID() string { return t.id }
func (t *tab) Navigate(_ context.Context, url string) error {
	if t.b.navigate != nil {
		t.b.navigate(t.id, url)
	}
	return nil
}
func (t *tab) Title(context.Context) (string, error) { return t.b.title, nil }
func (t *tab) HTML(context.Context) (string, error)  { return t.b.html, nil }
func (t *tab) Close() error                          { return nil }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{G: 180, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc     *Service
	fetch   *fakeFetch
	sink    *sink.Sink
	journal *memJournal
	broker  *relay.Broker
	browser *browser
	store   *intercept.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fetch: &fakeFetch{}, journal: &memJournal{}, broker: relay.NewBroker(), browser: &browser{}}

	s, err := sink.Open(context.Background(), "mem://", "")
	if err != nil {
		t.Fatalf("sink.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f.sink = s

	f.store = intercept.NewStore()
	watcher := intercept.NewWatcher(f.store, []intercept.Rule{sites.YandexRule()})
	mgr := tabs.NewManager(f.browser, 0)
	mgr.OnClose(f.store.Purge)
	f.browser.navigate = func(tabID, url string) {
		if i := strings.LastIndex(url, "/"); strings.HasPrefix(url, "https://ya.ru/archive/doc/") && i > 0 {
			page := url[i+1:]
			img := "https://ya.ru/archive/api/image?type=original&page=" + page
			watcher.ObserveResponse(tabID, img, "image/jpeg")
		}
	}

	prober, err := tiles.NewProber(f.fetch, tiles.ProbeOptions{MaxLevel: tiles.DefaultMaxLevel})
	if err != nil {
		t.Fatalf("NewProber() error = %v", err)
	}
	f.svc = New(Options{
		Tabs:             mgr,
		Store:            f.store,
		Fetch:            f.fetch,
		Sink:             f.sink,
		Prober:           prober,
		Assembler:        tiles.NewAssembler(f.fetch, 4, 0),
		Broker:           f.broker,
		Journal:          f.journal,
		InterceptTimeout: 50 * time.Millisecond,
		Version:          "1.0.0",
		ManifestURL:      "https://updates.test/manifest.json",
	})
	t.Cleanup(f.svc.Close)
	return f
}

func wait(t *testing.T, svc *Service, id string) JobInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return info
}

func TestPrLibJob(t *testing.T) {
	f := newFixture(t)
	doc := sites.PrLibDocument{Title: "Atlas", Key: "k", Group: "g", Files: []string{"p1", "p2"}}
	for _, file := range doc.Files {
		f.fetch.set(doc.InfoURL(file), &fetch.Payload{Status: 200, ContentType: "application/json", Data: []byte(`{"width":256,"height":256}`)})
		f.fetch.set(doc.TileTemplate(file).TileURL(4, 0), &fetch.Payload{Status: 200, ContentType: "image/png", Data: pngBytes(t, 256, 256)})
	}

	_, events := f.broker.Subscribe()
	info, err := f.svc.StartPrLib(context.Background(), PrLibRequest{Document: doc, Zip: true})
	if err != nil {
		t.Fatalf("StartPrLib() error = %v", err)
	}
	if info.Status != rangejob.StatusPending || info.End != 2 {
		t.Fatalf("StartPrLib() = %+v", info)
	}

	final := wait(t, f.svc, info.ID)
	if final.Status != rangejob.StatusSuccess || final.Done != 2 || final.FinishedAt == nil {
		t.Fatalf("job = %+v", final)
	}
	if len(final.Artifacts) != 1 || final.Artifacts[0].ID != "Atlas (Pages 1-2).zip" {
		t.Fatalf("Artifacts = %+v", final.Artifacts)
	}
	if _, err := f.sink.Get(context.Background(), final.Artifacts[0].ID); err != nil {
		t.Fatalf("archive not stored: %v", err)
	}
	if len(f.journal.records) != 1 || f.journal.records[0].ID != info.ID {
		t.Fatalf("journal = %+v", f.journal.records)
	}

	kinds := map[string]bool{}
	for len(events) > 0 {
		ev := <-events
		kinds[ev.Kind] = true
	}
	for _, k := range []string{"queued", "running", "page_done", "tile_progress", "archive_progress", "job_finished"} {
		if !kinds[k] {
			t.Fatalf("missing %q event; got %v", k, kinds)
		}
	}
}

func TestYandexJobReadsTitle(t *testing.T) {
	f := newFixture(t)
	f.browser.title = "Letters 1812 — Yandex Archive"
	for _, p := range []string{"3", "4"} {
		f.fetch.set("https://ya.ru/archive/api/image?type=original&page="+p, &fetch.Payload{Status: 200, ContentType: "image/jpeg", Data: []byte("jpeg " + p)})
	}

	info, err := f.svc.StartYandex(context.Background(), YandexRequest{URL: "https://ya.ru/archive/doc/abc/3", Start: 3, End: 5})
	if err != nil {
		t.Fatalf("StartYandex() error = %v", err)
	}
	final := wait(t, f.svc, info.ID)
	if final.Title != "Letters 1812" {
		t.Fatalf("Title = %q", final.Title)
	}
	if final.Status != rangejob.StatusPartial || final.Failed != 1 || len(final.Pages) != 3 {
		t.Fatalf("job = %+v", final)
	}
	if final.Pages[2].Code != apperr.CodeResourceNotFound {
		t.Fatalf("page 5 = %+v", final.Pages[2])
	}
	data, err := f.sink.Get(context.Background(), "Letters 1812 - 4.jpeg")
	if err != nil || string(data) != "jpeg 4" {
		t.Fatalf("page 4 = %q, %v", data, err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("store Len() = %d; want 0", f.store.Len())
	}
}

func TestLotJob(t *testing.T) {
	f := newFixture(t)
	f.browser.html = `<img ng-src="/muzfo-imaginator/rest/images/original/1.png"><img ng-src="/muzfo-imaginator/rest/images/original/2">`
	f.fetch.set("https://goskatalog.ru/muzfo-imaginator/rest/images/original/1.png", &fetch.Payload{Status: 200, ContentType: "image/png", Data: []byte("one")})
	f.fetch.set("https://goskatalog.ru/muzfo-imaginator/rest/images/original/2", &fetch.Payload{Status: 200, ContentType: "image/jpeg", Data: []byte("two")})

	info, err := f.svc.StartLot(context.Background(), LotRequest{URL: "https://goskatalog.ru/portal/#/public_items?id=991"})
	if err != nil {
		t.Fatalf("StartLot() error = %v", err)
	}
	final := wait(t, f.svc, info.ID)
	if final.Status != rangejob.StatusSuccess || final.End != 2 || len(final.Artifacts) != 2 {
		t.Fatalf("job = %+v", final)
	}
	for _, key := range []string{"991_1.png", "991_2.jpg"} {
		if _, err := f.sink.Get(context.Background(), key); err != nil {
			t.Fatalf("missing %s: %v", key, err)
		}
	}
}

func TestLotJobKeepsRepeatedImages(t *testing.T) {
	f := newFixture(t)
	f.browser.html = `<img ng-src="/muzfo-imaginator/rest/images/original/7"><img ng-src="/muzfo-imaginator/rest/images/original/7">`
	f.fetch.set("https://goskatalog.ru/muzfo-imaginator/rest/images/original/7", &fetch.Payload{Status: 200, ContentType: "image/jpeg", Data: []byte("seven")})

	info, err := f.svc.StartLot(context.Background(), LotRequest{URL: "https://goskatalog.ru/portal/#/public_items?id=992"})
	if err != nil {
		t.Fatalf("StartLot() error = %v", err)
	}
	final := wait(t, f.svc, info.ID)
	if final.Status != rangejob.StatusSuccess || len(final.Artifacts) != 2 {
		t.Fatalf("job = %+v; want both repeated images stored", final)
	}
	for _, key := range []string{"992_1.jpg", "992_2.jpg"} {
		if _, err := f.sink.Get(context.Background(), key); err != nil {
			t.Fatalf("missing %s: %v", key, err)
		}
	}
}

func TestEmptyBatchJobFails(t *testing.T) {
	f := newFixture(t)
	f.browser.title = "Doc"
	info, err := f.svc.StartYandex(context.Background(), YandexRequest{URL: "https://ya.ru/archive/doc/abc/1", Start: 1, End: 2, Zip: true})
	if err != nil {
		t.Fatalf("StartYandex() error = %v", err)
	}
	final := wait(t, f.svc, info.ID)
	if final.Status != rangejob.StatusFail || final.ErrorCode != apperr.CodeEmptyBatch || len(final.Artifacts) != 0 {
		t.Fatalf("job = %+v", final)
	}
}

func TestJobsRunOneAtATime(t *testing.T) {
	f := newFixture(t)
	f.browser.title = "Doc"
	var ids []string
	for i := 0; i < 2; i++ {
		info, err := f.svc.StartYandex(context.Background(), YandexRequest{URL: "https://ya.ru/archive/doc/abc/1", Start: 1})
		if err != nil {
			t.Fatalf("StartYandex() error = %v", err)
		}
		ids = append(ids, info.ID)
	}
	a, b := wait(t, f.svc, ids[0]), wait(t, f.svc, ids[1])
	first, second := a, b
	if b.StartedAt.Before(*a.StartedAt) {
		first, second = b, a
	}
	if second.StartedAt.Before(*first.FinishedAt) {
		t.Fatalf("jobs overlapped: %v started before %v finished", second.StartedAt, first.FinishedAt)
	}
	if got := len(f.svc.Jobs()); got != 2 {
		t.Fatalf("Jobs() = %d; want 2", got)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []func() error{
		func() error {
			_, err := f.svc.StartYandex(ctx, YandexRequest{URL: "https://example.test/1", Start: 1})
			return err
		},
		func() error {
			_, err := f.svc.StartYandex(ctx, YandexRequest{URL: "https://ya.ru/archive/doc/1", Start: 5, End: 2})
			return err
		},
		func() error {
			_, err := f.svc.StartPrLib(ctx, PrLibRequest{Document: sites.PrLibDocument{Key: "k"}})
			return err
		},
		func() error {
			_, err := f.svc.StartPrLib(ctx, PrLibRequest{Document: sites.PrLibDocument{Key: "k", Group: "g", Files: []string{"a"}}, End: 3})
			return err
		},
		func() error {
			_, err := f.svc.StartLot(ctx, LotRequest{URL: "https://goskatalog.ru/portal/#/x"})
			return err
		},
	}
	for i, c := range cases {
		if err := c(); !apperr.Is(err, apperr.CodeValidation) {
			t.Fatalf("case %d error = %v; want VALIDATION", i, err)
		}
	}
	if _, err := f.svc.Job("missing"); !apperr.Is(err, apperr.CodeJobNotFound) {
		t.Fatalf("Job() error = %v; want JOB_NOT_FOUND", err)
	}
	if len(f.svc.Jobs()) != 0 {
		t.Fatalf("Jobs() not empty after rejected requests")
	}
}

func TestCheckVersion(t *testing.T) {
	f := newFixture(t)
	f.fetch.set("https://updates.test/manifest.json", &fetch.Payload{Status: 200, Data: []byte(`{"version":"1.1"}`)})
	st, err := f.svc.CheckVersion(context.Background())
	if err != nil {
		t.Fatalf("CheckVersion() error = %v", err)
	}
	if !st.Newer || st.Latest != "1.1" {
		t.Fatalf("CheckVersion() = %+v", st)
	}
}
