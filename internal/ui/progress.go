// Package ui renders job progress in the terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/dgnsrekt/webarchivist/internal/relay"
)

// Progress shows a page bar for one job plus transient bars for the tiles
// of the page being assembled and for archive packing.
type Progress struct {
	p     *mpb.Progress
	label string

	mu       sync.Mutex
	pages    *mpb.Bar
	tiles    *mpb.Bar
	tilePage int
	archive  *mpb.Bar
	done     int
	finished bool

	// read by the bar decorator outside mu
	failed atomic.Int64
}

// NewProgress creates the bars. total may be zero when the range is not
// known yet; it is filled in when the job starts running.
func NewProgress(out io.Writer, label string, total int) *Progress {
	p := mpb.New(
		mpb.WithWidth(52),
		mpb.WithOutput(out),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	pr := &Progress{p: p, label: label}
	pr.pages = p.New(int64(total),
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(decor.Name(label+"  ")),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.CountersNoUnit(" | %d/%d pages", decor.WCSyncWidth),
			decor.Any(func(_ decor.Statistics) string {
				n := pr.failed.Load()
				if n == 0 {
					return ""
				}
				return fmt.Sprintf(" | %d failed", n)
			}),
		),
	)
	return pr
}

type pageEvent struct {
	Page    int `json:"page"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

type tileEvent struct {
	Page  int `json:"page"`
	Done  int `json:"done"`
	Total int `json:"total"`
}

type jobEvent struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Handle applies one job event to the bars.
func (pr *Progress) Handle(evt relay.Event) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.finished {
		return
	}

	switch evt.Kind {
	case "running":
		var j jobEvent
		if json.Unmarshal([]byte(evt.Payload), &j) == nil && j.End >= j.Start && j.Start > 0 {
			pr.pages.SetTotal(int64(j.End-j.Start+1), false)
		}
	case "page_start":
		var pe pageEvent
		if json.Unmarshal([]byte(evt.Payload), &pe) == nil && pe.Total > 0 {
			pr.pages.SetTotal(int64(pe.Total), false)
		}
	case "page_done", "page_failed", "page_duplicate":
		pr.done++
		if evt.Kind != "page_done" {
			pr.failed.Add(1)
		}
		pr.pages.SetCurrent(int64(pr.done))
		pr.dropTiles()
	case "tile_progress":
		var te tileEvent
		if json.Unmarshal([]byte(evt.Payload), &te) != nil || te.Total <= 0 {
			return
		}
		if pr.tiles == nil || pr.tilePage != te.Page {
			pr.dropTiles()
			pr.tiles = pr.p.New(int64(te.Total),
				mpb.BarStyle().Rbound("]"),
				mpb.BarRemoveOnComplete(),
				mpb.PrependDecorators(decor.Name(fmt.Sprintf("  page %d tiles  ", te.Page))),
				mpb.AppendDecorators(decor.CountersNoUnit("%d/%d", decor.WCSyncWidth)),
			)
			pr.tilePage = te.Page
		}
		pr.tiles.SetCurrent(int64(te.Done))
	case "archive_progress":
		var pe pageEvent
		if json.Unmarshal([]byte(evt.Payload), &pe) != nil {
			return
		}
		if pr.archive == nil {
			pr.archive = pr.p.New(100,
				mpb.BarStyle().Rbound("]"),
				mpb.BarRemoveOnComplete(),
				mpb.PrependDecorators(decor.Name("  packing  ")),
				mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)),
			)
		}
		pr.archive.SetCurrent(int64(pe.Percent))
	case "job_finished":
		pr.finish()
	}
}

// Counts returns the settled and failed page counts seen so far.
func (pr *Progress) Counts() (done, failed int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.done, int(pr.failed.Load())
}

// Follow feeds the events of job from ch into the bars until the job
// finishes, ch closes or ctx ends. Subscribe before submitting the job so
// its first events are not missed.
func (pr *Progress) Follow(ctx context.Context, ch <-chan relay.Event, job string) {
	for {
		select {
		case <-ctx.Done():
			pr.Close()
			return
		case evt, ok := <-ch:
			if !ok {
				pr.Close()
				return
			}
			if evt.Job != job {
				continue
			}
			pr.Handle(evt)
			if evt.Kind == "job_finished" {
				return
			}
		}
	}
}

// Close stops every bar that is still running.
func (pr *Progress) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.finish()
}

// Wait blocks until the bars have been rendered for the last time.
func (pr *Progress) Wait() { pr.p.Wait() }

func (pr *Progress) dropTiles() {
	if pr.tiles != nil && !pr.tiles.Completed() {
		pr.tiles.Abort(true)
	}
	pr.tiles = nil
}

func (pr *Progress) finish() {
	if pr.finished {
		return
	}
	pr.finished = true
	pr.dropTiles()
	if pr.archive != nil && !pr.archive.Completed() {
		pr.archive.Abort(true)
	}
	pr.pages.SetTotal(int64(pr.done), true)
}
