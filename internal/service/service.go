// Package service runs download jobs in the background, one at a time, and
// reports their progress to the relay, the journal and the notifier.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/intercept"
	"github.com/dgnsrekt/webarchivist/internal/notify"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/relay"
	"github.com/dgnsrekt/webarchivist/internal/sites"
	"github.com/dgnsrekt/webarchivist/internal/tiles"
	"github.com/dgnsrekt/webarchivist/internal/update"
)

// Fetcher is the outbound HTTP boundary used by every site.
type Fetcher interface {
	sites.BlobFetcher
	sites.MetaFetcher
}

// Journal records finished jobs.
type Journal interface {
	Append(record any) error
}

// Options wires the service's collaborators. Tabs and Store are only needed
// for sites rendered in a browser.
type Options struct {
	Tabs      sites.TabOpener
	Store     *intercept.Store
	Fetch     Fetcher
	Sink      rangejob.Sink
	Prober    *tiles.Prober
	Assembler *tiles.Assembler
	Broker    *relay.Broker
	Journal   Journal
	Notifier  *notify.Notifier

	NavTimeout       time.Duration
	InterceptTimeout time.Duration
	TileSize         int

	ManifestURL string
	Version     string
}

type job struct {
	info JobInfo
	done chan struct{}
}

type Service struct {
	opts Options
	orch *rangejob.Orchestrator
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// runMu serialises job runs so only one job drives the browser.
	runMu sync.Mutex

	mu   sync.RWMutex
	jobs map[string]*job
}

func New(opts Options) *Service {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = sites.DefaultNavTimeout
	}
	if opts.InterceptTimeout <= 0 {
		opts.InterceptTimeout = sites.DefaultInterceptTimeout
	}
	if opts.Broker == nil {
		opts.Broker = relay.NewBroker()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:   opts,
		orch:   rangejob.NewOrchestrator(opts.Sink),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Broker returns the event broker jobs publish to.
func (s *Service) Broker() *relay.Broker { return s.opts.Broker }

// Job returns a snapshot of a job.
func (s *Service) Job(id string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, apperr.New(apperr.CodeJobNotFound, fmt.Sprintf("job %s not found", id), nil)
	}
	return j.info, nil
}

// Jobs returns all jobs, oldest first.
func (s *Service) Jobs() []JobInfo {
	s.mu.RLock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.info)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Wait blocks until the job finishes or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (JobInfo, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return JobInfo{}, apperr.New(apperr.CodeJobNotFound, fmt.Sprintf("job %s not found", id), nil)
	}
	select {
	case <-j.done:
		return s.Job(id)
	case <-ctx.Done():
		return JobInfo{}, ctx.Err()
	}
}

// CheckVersion compares the running version with the published manifest.
func (s *Service) CheckVersion(ctx context.Context) (update.Status, error) {
	url := s.opts.ManifestURL
	if url == "" {
		url = update.DefaultManifestURL
	}
	return update.Check(ctx, s.opts.Fetch, url, s.opts.Version)
}

// Close cancels running jobs and waits for them to finish.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// plan prepares a job once it holds the run lock: it may fill in the title
// and returns the resolver and range job.
type plan func(ctx context.Context, info *JobInfo) (rangejob.Resolver, rangejob.Job, error)

func (s *Service) submit(info JobInfo, p plan) JobInfo {
	info.ID = uuid.NewString()
	info.Status = rangejob.StatusPending
	info.CreatedAt = s.now()

	j := &job{info: info, done: make(chan struct{})}
	s.mu.Lock()
	s.jobs[info.ID] = j
	s.mu.Unlock()

	slog.Info("job queued", "job_id", info.ID, "site", info.Site, "start", info.Start, "end", info.End)
	s.opts.Broker.PublishJSON(info.ID, "queued", info)

	s.wg.Add(1)
	go s.run(j, p)
	return info
}

func (s *Service) run(j *job, p plan) {
	defer s.wg.Done()
	defer close(j.done)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	id := j.info.ID
	s.update(id, func(info *JobInfo) {
		now := s.now()
		info.Status = rangejob.StatusRunning
		info.StartedAt = &now
	})
	s.opts.Broker.PublishJSON(id, "running", s.snapshot(id))

	info := s.snapshot(id)
	resolver, rj, err := p(s.ctx, &info)
	var res *rangejob.Result
	if err == nil {
		s.update(id, func(cur *JobInfo) {
			cur.Title, cur.Start, cur.End = info.Title, info.Start, info.End
		})
		rj.OnEvent = s.eventSink(id)
		res, err = s.orch.Run(s.ctx, rj, resolver)
	}

	s.update(id, func(info *JobInfo) { info.finish(res, err, s.now()) })
	final := s.snapshot(id)
	if err != nil {
		slog.Warn("job failed", "job_id", id, "code", final.ErrorCode, "error", err)
	} else {
		slog.Info("job finished", "job_id", id, "status", final.Status, "failed", final.Failed)
	}
	s.opts.Broker.PublishJSON(id, "job_finished", final)

	if s.opts.Journal != nil {
		if jerr := s.opts.Journal.Append(final); jerr != nil {
			slog.Warn("journal append failed", "job_id", id, "error", jerr)
		}
	}
	if s.opts.Notifier.Enabled() {
		msg := notify.Job{Title: final.Title, Status: string(final.Status), Pages: final.Total(), Failed: final.Failed, Err: err}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if nerr := s.opts.Notifier.Notify(ctx, msg); nerr != nil {
			slog.Warn("notification failed", "job_id", id, "error", nerr)
		}
		cancel()
	}
}

func (s *Service) eventSink(id string) func(rangejob.Event) {
	return func(ev rangejob.Event) {
		switch ev.Kind {
		case rangejob.EventPageDone, rangejob.EventPageFailed, rangejob.EventPageDuplicate:
			s.update(id, func(info *JobInfo) {
				info.Done++
				if ev.Kind != rangejob.EventPageDone {
					info.Failed++
				}
			})
		}
		s.opts.Broker.PublishJSON(id, string(ev.Kind), ev)
	}
}

func (s *Service) update(id string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(&j.info)
	}
}

func (s *Service) snapshot(id string) JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id].info
}
