// Package rangejob downloads an inclusive page range strictly in order,
// either packing the pages into one ZIP archive or handing each page to the
// sink as it arrives.
package rangejob

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

// Mode selects how resolved pages are delivered.
type Mode string

const (
	ModeZip    Mode = "zip"
	ModeSingle Mode = "single"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFail    Status = "fail"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFail
}

// EventKind names a progress event.
type EventKind string

const (
	EventPageStart       EventKind = "page_start"
	EventPageDone        EventKind = "page_done"
	EventPageFailed      EventKind = "page_failed"
	EventPageDuplicate   EventKind = "page_duplicate"
	EventArchiveProgress EventKind = "archive_progress"
	EventFinished        EventKind = "finished"
)

// Event reports progress of a running job.
type Event struct {
	Kind    EventKind `json:"kind"`
	Page    int       `json:"page,omitempty"`
	Total   int       `json:"total,omitempty"`
	Percent int       `json:"percent,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Job describes one range download.
type Job struct {
	Title string
	Start int
	End   int
	Mode  Mode
	// Ext is used when the resolver does not report one.
	Ext string
	// Naming overrides the per-page file or entry name.
	Naming func(page int, ext string) string
	// AllowDuplicates keeps pages whose source URL was already seen.
	AllowDuplicates bool
	OnEvent         func(Event)
}

// Pages returns the number of pages in the range.
func (j Job) Pages() int { return j.End - j.Start + 1 }

// Validate checks the range and mode.
func (j Job) Validate() error {
	if j.Start < 1 {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("start page %d must be >= 1", j.Start), nil)
	}
	if j.End < j.Start {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("end page %d is before start page %d", j.End, j.Start), nil)
	}
	switch j.Mode {
	case ModeZip, ModeSingle:
	default:
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("unknown mode %q", j.Mode), nil)
	}
	return nil
}

func (j Job) emit(ev Event) {
	if j.OnEvent != nil {
		j.OnEvent(ev)
	}
}

// Resolved is the image of one page.
type Resolved struct {
	Data      []byte
	SourceURL string
	Ext       string
}

// Resolver produces the bytes of a page.
type Resolver interface {
	Resolve(ctx context.Context, page int) (Resolved, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, page int) (Resolved, error)

func (f ResolverFunc) Resolve(ctx context.Context, page int) (Resolved, error) { return f(ctx, page) }

// Sink stores a finished file and returns its identifier.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Artifact is a file handed to the sink.
type Artifact struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Size int    `json:"size"`
}

// PageResult is the outcome of a single page.
type PageResult struct {
	Page      int    `json:"page"`
	Success   bool   `json:"success"`
	Size      int    `json:"size,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Err       error  `json:"-"`
}

// Result is the outcome of a job.
type Result struct {
	Status  Status
	Pages   map[int]PageResult
	Failed  int
	Archive *Artifact
	Files   []Artifact
}

// Succeeded returns the number of pages delivered.
func (r *Result) Succeeded() int { return len(r.Pages) - r.Failed }
