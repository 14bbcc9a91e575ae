package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/naming"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/sites"
)

// YandexRequest downloads pages of a Yandex Archive document. URL is any
// page of the document. End 0 means Start only.
type YandexRequest struct {
	URL   string `json:"url" doc:"Any page URL of the document, ending in its page number"`
	Title string `json:"title,omitempty" doc:"File title; read from the page when empty"`
	Start int    `json:"start" minimum:"1"`
	End   int    `json:"end,omitempty" minimum:"0"`
	Zip   bool   `json:"zip,omitempty" doc:"Pack the range into one ZIP archive"`
}

// PrLibRequest downloads tiled pages of a Presidential Library document.
// End 0 means the last file.
type PrLibRequest struct {
	Document sites.PrLibDocument `json:"document"`
	Start    int                 `json:"start,omitempty" minimum:"0"`
	End      int                 `json:"end,omitempty" minimum:"0"`
	Zip      bool                `json:"zip,omitempty"`
}

// LotRequest downloads every image of a Goskatalog lot.
type LotRequest struct {
	URL string `json:"url" doc:"Lot URL with a #/public_items?id=N fragment"`
}

func mode(zip bool) rangejob.Mode {
	if zip {
		return rangejob.ModeZip
	}
	return rangejob.ModeSingle
}

func validateRange(start, end int) error {
	if start < 1 {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("start page %d must be >= 1", start), nil)
	}
	if end < start {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("end page %d is before start page %d", end, start), nil)
	}
	return nil
}

func (s *Service) requireBrowser() error {
	if s.opts.Tabs == nil {
		return apperr.New(apperr.CodeNavigationFailed, "no browser is connected", nil)
	}
	return nil
}

// StartYandex queues a Yandex Archive download.
func (s *Service) StartYandex(_ context.Context, req YandexRequest) (JobInfo, error) {
	url := strings.TrimSpace(req.URL)
	if sites.Detect(url) != sites.Yandex {
		return JobInfo{}, apperr.New(apperr.CodeValidation, "not a Yandex Archive url: "+url, nil)
	}
	if req.End == 0 {
		req.End = req.Start
	}
	if err := validateRange(req.Start, req.End); err != nil {
		return JobInfo{}, err
	}
	if err := s.requireBrowser(); err != nil {
		return JobInfo{}, err
	}
	if s.opts.Store == nil {
		return JobInfo{}, apperr.New(apperr.CodeNavigationFailed, "no interception store is configured", nil)
	}

	info := JobInfo{Site: sites.Yandex, Title: naming.SanitizeTitle(req.Title), Start: req.Start, End: req.End, Mode: mode(req.Zip)}
	return s.submit(info, func(ctx context.Context, info *JobInfo) (rangejob.Resolver, rangejob.Job, error) {
		base, _ := sites.SplitPageURL(url)
		if info.Title == "" {
			doc, err := sites.YandexDocument(ctx, s.opts.Tabs, url, s.opts.NavTimeout)
			if err != nil {
				return nil, rangejob.Job{}, err
			}
			info.Title = doc.Title
		}
		if info.Title == "" {
			info.Title = "document"
		}
		resolver := &sites.YandexResolver{
			Tabs:       s.opts.Tabs,
			Store:      s.opts.Store,
			Fetch:      s.opts.Fetch,
			BaseURL:    base,
			NavTimeout: s.opts.NavTimeout,
			Wait:       s.opts.InterceptTimeout,
		}
		return resolver, rangejob.Job{Title: info.Title, Start: info.Start, End: info.End, Mode: info.Mode, Ext: ".jpeg"}, nil
	}), nil
}

// StartPrLib queues a Presidential Library download.
func (s *Service) StartPrLib(_ context.Context, req PrLibRequest) (JobInfo, error) {
	doc := req.Document
	if err := doc.Validate(); err != nil {
		return JobInfo{}, err
	}
	if req.Start == 0 {
		req.Start = 1
	}
	if req.End == 0 {
		req.End = len(doc.Files)
	}
	if err := validateRange(req.Start, req.End); err != nil {
		return JobInfo{}, err
	}
	if req.End > len(doc.Files) {
		return JobInfo{}, apperr.New(apperr.CodeValidation, fmt.Sprintf("end page %d exceeds the %d files", req.End, len(doc.Files)), nil)
	}
	if s.opts.Prober == nil || s.opts.Assembler == nil {
		return JobInfo{}, apperr.New(apperr.CodeLibraryUnavail, "tile assembly is not configured", nil)
	}

	title := naming.SanitizeTitle(doc.Title)
	if title == "" {
		title = naming.SanitizeTitle(doc.Key)
	}
	info := JobInfo{Site: sites.PrLib, Title: title, Start: req.Start, End: req.End, Mode: mode(req.Zip)}
	return s.submit(info, func(_ context.Context, info *JobInfo) (rangejob.Resolver, rangejob.Job, error) {
		id := info.ID
		resolver := &sites.PrLibResolver{
			Doc:       doc,
			Fetch:     s.opts.Fetch,
			Prober:    s.opts.Prober,
			Assembler: s.opts.Assembler,
			TileSize:  s.opts.TileSize,
			OnTiles: func(page, done, total int) {
				s.opts.Broker.PublishJSON(id, "tile_progress", tileProgress{Page: page, Done: done, Total: total})
			},
		}
		return resolver, rangejob.Job{Title: info.Title, Start: info.Start, End: info.End, Mode: info.Mode, Ext: ".jpeg"}, nil
	}), nil
}

type tileProgress struct {
	Page  int `json:"page"`
	Done  int `json:"done"`
	Total int `json:"total"`
}

// StartLot queues a Goskatalog lot download. Each image is stored on its own.
func (s *Service) StartLot(_ context.Context, req LotRequest) (JobInfo, error) {
	url := strings.TrimSpace(req.URL)
	if sites.Detect(url) != sites.Goskatalog {
		return JobInfo{}, apperr.New(apperr.CodeValidation, "not a Goskatalog url: "+url, nil)
	}
	lotID, err := sites.LotID(url)
	if err != nil {
		return JobInfo{}, err
	}
	if err := s.requireBrowser(); err != nil {
		return JobInfo{}, err
	}

	info := JobInfo{Site: sites.Goskatalog, Title: lotID, Start: 1, Mode: rangejob.ModeSingle}
	return s.submit(info, func(ctx context.Context, info *JobInfo) (rangejob.Resolver, rangejob.Job, error) {
		lot, err := sites.LotPage(ctx, s.opts.Tabs, url, s.opts.NavTimeout, s.opts.InterceptTimeout)
		if err != nil {
			return nil, rangejob.Job{}, err
		}
		info.End = len(lot.Images)
		resolver := &sites.LotResolver{Images: lot.Images, Fetch: s.opts.Fetch}
		return resolver, rangejob.Job{
			Title:           lot.ID,
			Start:           1,
			End:             len(lot.Images),
			Mode:            rangejob.ModeSingle,
			Ext:             ".jpg",
			Naming:          sites.LotNaming(lot.ID),
			AllowDuplicates: true,
		}, nil
	}), nil
}
