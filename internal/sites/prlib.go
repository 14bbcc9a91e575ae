package sites

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/rangejob"
	"github.com/dgnsrekt/webarchivist/internal/tiles"
)

const prlibServer = "https://content.prlib.ru/fcgi-bin/iipsrv.fcgi"

// PrLibDocument identifies a Presidential Library scan set. Page i is
// Files[i-1].
type PrLibDocument struct {
	Title string   `json:"title,omitempty" yaml:"title"`
	Key   string   `json:"key" yaml:"key"`
	Group string   `json:"group" yaml:"group"`
	Files []string `json:"files" yaml:"files"`
}

// Validate checks that the document can be addressed.
func (d PrLibDocument) Validate() error {
	if d.Key == "" || d.Group == "" {
		return apperr.New(apperr.CodeValidation, "prlib document needs key and group", nil)
	}
	if len(d.Files) == 0 {
		return apperr.New(apperr.CodeValidation, "prlib document has no files", nil)
	}
	for _, part := range append([]string{d.Key, d.Group}, d.Files...) {
		if url.QueryEscape(part) != part {
			return apperr.New(apperr.CodeValidation, fmt.Sprintf("prlib path element %q has reserved characters", part), nil)
		}
	}
	return nil
}

func (d PrLibDocument) scanPath(file string) string {
	return fmt.Sprintf("/var/data/scans/public/%s/%s/%s", d.Key, d.Group, file)
}

// InfoURL returns the IIIF info.json address of a file.
func (d PrLibDocument) InfoURL(file string) string {
	return prlibServer + "?IIIF=" + d.scanPath(file) + "/info.json"
}

// TileTemplate returns the JTL tile address template of a file.
func (d PrLibDocument) TileTemplate(file string) tiles.Template {
	base := prlibServer + "?FIF=" + d.scanPath(file) + "&JTL="
	return tiles.TemplateFunc(func(level, index int) string {
		return fmt.Sprintf("%s%d,%d", base, level, index)
	})
}

// imageInfo is the subset of IIIF info.json that sizes the image.
type imageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MetaFetcher downloads JSON metadata and image tiles.
type MetaFetcher interface {
	JSON(ctx context.Context, url string, v any) error
	tiles.Fetcher
}

// PrLibResolver builds each page from its tiles at the finest level the
// server offers.
type PrLibResolver struct {
	Doc       PrLibDocument
	Fetch     MetaFetcher
	Prober    *tiles.Prober
	Assembler *tiles.Assembler
	TileSize  int
	// OnTiles receives tile progress of the page being assembled.
	OnTiles func(page, done, total int)
}

var _ rangejob.Resolver = (*PrLibResolver)(nil)

func (r *PrLibResolver) Resolve(ctx context.Context, page int) (rangejob.Resolved, error) {
	if page < 1 || page > len(r.Doc.Files) {
		return rangejob.Resolved{}, apperr.New(apperr.CodeResourceNotFound, fmt.Sprintf("page %d is outside the document's %d files", page, len(r.Doc.Files)), nil)
	}
	file := r.Doc.Files[page-1]

	var info imageInfo
	if err := r.Fetch.JSON(ctx, r.Doc.InfoURL(file), &info); err != nil {
		return rangejob.Resolved{}, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return rangejob.Resolved{}, apperr.New(apperr.CodeFetchFailed, fmt.Sprintf("info.json of %s has no width or height", file), nil)
	}

	tmpl := r.Doc.TileTemplate(file)
	level, err := r.Prober.FindFinestLevel(ctx, tmpl)
	if err != nil {
		return rangejob.Resolved{}, err
	}

	size := r.TileSize
	if size <= 0 {
		size = tiles.DefaultTileSize
	}
	var progress tiles.ProgressFunc
	if r.OnTiles != nil {
		progress = func(done, total int) { r.OnTiles(page, done, total) }
	}
	res, err := r.Assembler.Assemble(ctx, tmpl, level, info.Width, info.Height, size, progress)
	if err != nil {
		return rangejob.Resolved{}, err
	}
	return rangejob.Resolved{Data: res.Image, SourceURL: r.Doc.sourceURL(file), Ext: ".jpeg"}, nil
}

func (d PrLibDocument) sourceURL(file string) string {
	return prlibServer + "?FIF=" + d.scanPath(file)
}

// ParseFiles splits a comma separated file list.
func ParseFiles(list string) []string {
	var files []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files
}
