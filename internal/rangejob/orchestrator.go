package rangejob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/naming"
)

// Orchestrator runs range jobs against a sink.
type Orchestrator struct {
	sink Sink
}

func NewOrchestrator(sink Sink) *Orchestrator {
	return &Orchestrator{sink: sink}
}

// Run downloads pages Start..End one at a time. Page failures are recorded
// and the loop continues. A job with no successful page fails with
// EMPTY_BATCH and produces no archive.
func (o *Orchestrator) Run(ctx context.Context, job Job, resolver Resolver) (*Result, error) {
	if err := job.Validate(); err != nil {
		return &Result{Status: StatusFail, Pages: map[int]PageResult{}}, err
	}

	res := &Result{Status: StatusRunning, Pages: make(map[int]PageResult, job.Pages())}
	seen := make(map[string]int)
	var arc archive

	slog.Info("range job started", "title", job.Title, "start", job.Start, "end", job.End, "mode", job.Mode)

	for page := job.Start; page <= job.End; page++ {
		if err := ctx.Err(); err != nil {
			res.Status = StatusFail
			return res, err
		}
		job.emit(Event{Kind: EventPageStart, Page: page, Total: job.Pages()})

		pr := o.runPage(ctx, job, resolver, page, seen, &arc)
		res.Pages[page] = pr
		if !pr.Success {
			res.Failed++
			continue
		}
		if job.Mode == ModeSingle {
			res.Files = append(res.Files, Artifact{Name: pr.Filename, ID: pr.Filename, Size: pr.Size})
		}
	}

	if res.Succeeded() == 0 {
		res.Status = StatusFail
		err := apperr.New(apperr.CodeEmptyBatch, fmt.Sprintf("no page of %d-%d could be downloaded", job.Start, job.End), nil)
		job.emit(Event{Kind: EventFinished, Message: string(res.Status)})
		slog.Warn("range job produced nothing", "title", job.Title, "failed", res.Failed)
		return res, err
	}

	if job.Mode == ModeZip {
		art, err := o.finalizeArchive(ctx, job, &arc)
		if err != nil {
			res.Status = StatusFail
			job.emit(Event{Kind: EventFinished, Message: string(res.Status)})
			return res, err
		}
		res.Archive = art
	}

	res.Status = StatusSuccess
	if res.Failed > 0 {
		res.Status = StatusPartial
	}
	job.emit(Event{Kind: EventFinished, Message: string(res.Status), Total: job.Pages()})
	slog.Info("range job finished", "title", job.Title, "status", res.Status, "failed", res.Failed)
	return res, nil
}

func (o *Orchestrator) runPage(ctx context.Context, job Job, resolver Resolver, page int, seen map[string]int, arc *archive) PageResult {
	pr := PageResult{Page: page}
	fail := func(kind EventKind, err error) PageResult {
		pr.Err = err
		slog.Warn("page failed", "page", page, "code", apperr.CodeOf(err), "error", err)
		job.emit(Event{Kind: kind, Page: page, Total: job.Pages(), Message: err.Error()})
		return pr
	}

	r, err := resolver.Resolve(ctx, page)
	if err != nil {
		return fail(EventPageFailed, err)
	}
	pr.SourceURL = r.SourceURL
	if len(r.Data) == 0 {
		return fail(EventPageFailed, apperr.New(apperr.CodeResourceNotFound, fmt.Sprintf("page %d resolved to no data", page), nil))
	}
	if r.SourceURL != "" && !job.AllowDuplicates {
		if prev, ok := seen[r.SourceURL]; ok {
			return fail(EventPageDuplicate, apperr.New(apperr.CodeDuplicate, fmt.Sprintf("page %d repeats the image of page %d", page, prev), nil))
		}
		seen[r.SourceURL] = page
	}

	ext := r.Ext
	if ext == "" {
		ext = job.Ext
	}
	pr.Size = len(r.Data)

	switch job.Mode {
	case ModeZip:
		pr.Filename = arc.add(entryName(job, page, ext, naming.MaxEntryLen), r.Data)
	case ModeSingle:
		name := entryName(job, page, ext, naming.MaxFileLen)
		id, err := o.sink.Put(ctx, name, r.Data)
		if err != nil {
			return fail(EventPageFailed, apperr.New(apperr.CodeSinkFailed, "store page", err))
		}
		pr.Filename = id
	}

	pr.Success = true
	job.emit(Event{Kind: EventPageDone, Page: page, Total: job.Pages()})
	return pr
}

func (o *Orchestrator) finalizeArchive(ctx context.Context, job Job, arc *archive) (*Artifact, error) {
	data, err := arc.finalize(func(pct int) {
		job.emit(Event{Kind: EventArchiveProgress, Percent: pct})
	})
	if err != nil {
		return nil, apperr.New(apperr.CodeLibraryUnavail, "build archive", err)
	}
	name := naming.ArchiveName(job.Title, job.Start, job.End)
	id, err := o.sink.Put(ctx, name, data)
	if err != nil {
		return nil, apperr.New(apperr.CodeSinkFailed, "store archive", err)
	}
	slog.Info("archive stored", "name", id, "entries", arc.len(), "bytes", len(data))
	return &Artifact{Name: name, ID: id, Size: len(data)}, nil
}

func entryName(job Job, page int, ext string, max int) string {
	if job.Naming != nil {
		return naming.Truncate(job.Naming(page, ext), max)
	}
	if max == naming.MaxEntryLen {
		return naming.PageEntry(job.Title, page, ext)
	}
	return naming.PageFile(job.Title, page, ext)
}
