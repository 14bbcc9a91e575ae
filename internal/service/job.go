package service

import (
	"time"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/sites"
)

// PageInfo is the outcome of one page as reported to clients.
type PageInfo struct {
	Page      int    `json:"page"`
	Success   bool   `json:"success"`
	Size      int    `json:"size,omitempty"`
	Filename  string `json:"filename,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// JobInfo is a snapshot of a job.
type JobInfo struct {
	ID         string              `json:"id"`
	Site       sites.Site          `json:"site"`
	Title      string              `json:"title"`
	Start      int                 `json:"start"`
	End        int                 `json:"end"`
	Mode       rangejob.Mode       `json:"mode"`
	Status     rangejob.Status     `json:"status"`
	Done       int                 `json:"done"`
	Failed     int                 `json:"failed"`
	Pages      []PageInfo          `json:"pages,omitempty"`
	Artifacts  []rangejob.Artifact `json:"artifacts,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Total returns the number of pages in the job's range.
func (j JobInfo) Total() int {
	if j.End < j.Start {
		return 0
	}
	return j.End - j.Start + 1
}

func (j *JobInfo) finish(res *rangejob.Result, err error, now time.Time) {
	j.FinishedAt = &now
	if res != nil {
		j.Status = res.Status
		j.Failed = res.Failed
		j.Pages = pageInfos(j.Start, j.End, res)
		if res.Archive != nil {
			j.Artifacts = append(j.Artifacts, *res.Archive)
		}
		j.Artifacts = append(j.Artifacts, res.Files...)
	} else {
		j.Status = rangejob.StatusFail
	}
	if err != nil {
		j.Status = rangejob.StatusFail
		j.ErrorCode = apperr.CodeOf(err)
		j.Error = err.Error()
	}
}

func pageInfos(start, end int, res *rangejob.Result) []PageInfo {
	out := make([]PageInfo, 0, len(res.Pages))
	for p := start; p <= end; p++ {
		pr, ok := res.Pages[p]
		if !ok {
			continue
		}
		info := PageInfo{Page: p, Success: pr.Success, Size: pr.Size, Filename: pr.Filename, SourceURL: pr.SourceURL}
		if pr.Err != nil {
			info.Code = apperr.CodeOf(pr.Err)
			info.Error = pr.Err.Error()
		}
		out = append(out, info)
	}
	return out
}
