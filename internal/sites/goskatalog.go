package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/naming"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
)

const (
	goskatalogOrigin = "https://goskatalog.ru"
	lotImagePath     = "/muzfo-imaginator/rest/images/"
	lotPollInterval  = 500 * time.Millisecond
)

// lotSelectors are tried in order; the first one matching anything wins.
var lotSelectors = []string{
	`tr td[ng-repeat="image in collectionItem.images"] img[ng-src*="/muzfo-imaginator/rest/images/original/"]`,
	`img[ng-src*="/muzfo-imaginator/rest/images/"]`,
	`img[src*="/muzfo-imaginator/rest/images/"]`,
	`.collection-item img, .lot-details img, [id*="collection"] img`,
}

// LotID extracts the lot id from a "#/public_items?id=N" fragment.
func LotID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperr.New(apperr.CodeValidation, "parse lot url", err)
	}
	frag := u.Fragment
	i := strings.IndexByte(frag, '?')
	if i < 0 {
		return "", apperr.New(apperr.CodeValidation, "lot url has no query in its fragment", nil)
	}
	q, err := url.ParseQuery(frag[i+1:])
	if err != nil {
		return "", apperr.New(apperr.CodeValidation, "parse lot fragment", err)
	}
	id := q.Get("id")
	if id == "" {
		return "", apperr.New(apperr.CodeValidation, "lot url has no id", nil)
	}
	return id, nil
}

// LotImages returns the lot image URLs found in rendered HTML.
func LotImages(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, apperr.New(apperr.CodeFetchFailed, "parse lot page", err)
	}

	var sel *goquery.Selection
	for _, s := range lotSelectors {
		if found := doc.Find(s); found.Length() > 0 {
			sel = found
			break
		}
	}
	if sel == nil {
		return nil, apperr.New(apperr.CodeResourceNotFound, "no lot images on page", nil)
	}

	var urls []string
	sel.Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("ng-src")
		if !ok || src == "" {
			src = img.AttrOr("src", "")
		}
		if src == "" {
			return
		}
		if !strings.HasPrefix(src, "http") {
			src = goskatalogOrigin + src
		}
		if strings.Contains(src, lotImagePath) {
			urls = append(urls, src)
		}
	})
	if len(urls) == 0 {
		return nil, apperr.New(apperr.CodeResourceNotFound, "lot image elements carry no usable urls", nil)
	}
	return urls, nil
}

// Lot is a Goskatalog lot ready to download.
type Lot struct {
	ID     string   `json:"id"`
	Images []string `json:"images"`
}

// LotPage opens a lot page and polls its rendered HTML until images appear
// or wait elapses.
func LotPage(ctx context.Context, opener TabOpener, lotURL string, navTimeout, wait time.Duration) (Lot, error) {
	id, err := LotID(lotURL)
	if err != nil {
		return Lot{}, err
	}
	h, err := opener.OpenAndWait(ctx, lotURL, navTimeout)
	if err != nil {
		return Lot{}, err
	}
	defer h.Close()

	deadline := time.Now().Add(wait)
	for {
		html, err := h.HTML(ctx)
		if err != nil {
			return Lot{}, apperr.New(apperr.CodeNavigationFailed, "read lot page", err)
		}
		images, err := LotImages(html)
		if err == nil {
			return Lot{ID: id, Images: images}, nil
		}
		if time.Now().After(deadline) {
			return Lot{}, err
		}
		select {
		case <-ctx.Done():
			return Lot{}, ctx.Err()
		case <-time.After(lotPollInterval):
		}
	}
}

// LotResolver downloads image i of a lot as page i.
type LotResolver struct {
	Images []string
	Fetch  BlobFetcher
}

var _ rangejob.Resolver = (*LotResolver)(nil)

func (r *LotResolver) Resolve(ctx context.Context, page int) (rangejob.Resolved, error) {
	if page < 1 || page > len(r.Images) {
		return rangejob.Resolved{}, apperr.New(apperr.CodeResourceNotFound, fmt.Sprintf("lot has no image %d", page), nil)
	}
	src := r.Images[page-1]
	p, err := r.Fetch.Blob(ctx, src)
	if err != nil {
		return rangejob.Resolved{}, err
	}
	return rangejob.Resolved{Data: p.Data, SourceURL: src, Ext: naming.ExtFromURL(src, ".jpg")}, nil
}

// LotNaming names image i of a lot "<lot>_<i><ext>".
func LotNaming(lotID string) func(page int, ext string) string {
	base := naming.SanitizeTitle(lotID)
	return func(page int, ext string) string {
		return naming.IndexedFile(base, page, ext)
	}
}
