package sites

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/fetch"
	"github.com/dgnsrekt/webarchivist/internal/intercept"
	"github.com/dgnsrekt/webarchivist/internal/naming"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/tabs"
)

const (
	DefaultNavTimeout       = 35 * time.Second
	DefaultInterceptTimeout = 10 * time.Second
)

var paginationSelectors = []string{
	".ShortPagination_ShortPagination__08e_C",
	`[class*="ShortPagination"]`,
}

// YandexRule selects original page images requested by the Yandex viewer.
func YandexRule() intercept.Rule {
	return intercept.Rule{
		Name: "yandex_archive_image",
		URLPrefixes: []string{
			"https://ya.ru/archive/api/image",
			"https://yandex.ru/archive/api/image",
		},
		Contains: "type=original",
		KeyParam: "page",
	}
}

// BlobFetcher downloads a whole resource.
type BlobFetcher interface {
	Blob(ctx context.Context, url string) (*fetch.Payload, error)
}

// TabOpener opens ephemeral tabs.
type TabOpener interface {
	OpenAndWait(ctx context.Context, url string, timeout time.Duration) (*tabs.Handle, error)
}

// DocumentInfo describes a Yandex Archive document page.
type DocumentInfo struct {
	Title      string `json:"title"`
	BaseURL    string `json:"base_url"`
	Page       int    `json:"page,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
}

// YandexDocument opens a document page and reads its title, base URL,
// current page and page count. Unknown numbers are left at zero.
func YandexDocument(ctx context.Context, opener TabOpener, pageURL string, timeout time.Duration) (DocumentInfo, error) {
	info := DocumentInfo{}
	info.BaseURL, info.Page = SplitPageURL(pageURL)

	h, err := opener.OpenAndWait(ctx, pageURL, timeout)
	if err != nil {
		return info, err
	}
	defer h.Close()

	title, err := h.Title(ctx)
	if err != nil {
		return info, apperr.New(apperr.CodeNavigationFailed, "read document title", err)
	}
	info.Title = naming.SanitizeTitle(title)

	html, err := h.HTML(ctx)
	if err != nil {
		slog.Warn("read document html failed", "url", pageURL, "error", err)
		return info, nil
	}
	info.TotalPages = totalPages(html)
	return info, nil
}

// SplitPageURL splits a document page URL into its base URL and page
// number. A URL not ending in a number yields page 0.
func SplitPageURL(pageURL string) (string, int) {
	trimmed := strings.TrimRight(pageURL, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return trimmed, 0
	}
	page, err := strconv.Atoi(trimmed[i+1:])
	if err != nil {
		return trimmed, 0
	}
	return trimmed[:i], page
}

func totalPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	for _, sel := range paginationSelectors {
		text := doc.Find(sel).First().Text()
		parts := strings.Split(text, "/")
		if len(parts) < 2 {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			return n
		}
	}
	return 0
}

// YandexResolver loads each page in its own tab and downloads the image the
// viewer requested for it.
type YandexResolver struct {
	Tabs       TabOpener
	Store      *intercept.Store
	Fetch      BlobFetcher
	BaseURL    string
	NavTimeout time.Duration
	Wait       time.Duration
}

var _ rangejob.Resolver = (*YandexResolver)(nil)

func (r *YandexResolver) Resolve(ctx context.Context, page int) (rangejob.Resolved, error) {
	navTimeout := r.NavTimeout
	if navTimeout <= 0 {
		navTimeout = DefaultNavTimeout
	}
	wait := r.Wait
	if wait <= 0 {
		wait = DefaultInterceptTimeout
	}

	pageURL := strings.TrimRight(r.BaseURL, "/") + "/" + strconv.Itoa(page)
	h, err := r.Tabs.OpenAndWait(ctx, pageURL, navTimeout)
	if err != nil {
		return rangejob.Resolved{}, err
	}
	defer h.Close()

	imageURL := r.Store.AwaitMatch(ctx, h.ID(), strconv.Itoa(page), wait)
	if imageURL == "" {
		return rangejob.Resolved{}, apperr.New(apperr.CodeResourceNotFound, fmt.Sprintf("no image intercepted for page %d", page), nil)
	}

	p, err := r.Fetch.Blob(ctx, imageURL)
	if err != nil {
		return rangejob.Resolved{}, err
	}
	return rangejob.Resolved{Data: p.Data, SourceURL: imageURL, Ext: naming.ExtFromContentType(p.ContentType)}, nil
}
