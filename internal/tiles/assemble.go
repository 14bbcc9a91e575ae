package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"sync/atomic"

	_ "golang.org/x/image/webp"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

const (
	// DefaultTileSize is the edge length in pixels of a full tile.
	DefaultTileSize = 256
	// DefaultConcurrency bounds the tile fetches in flight.
	DefaultConcurrency = 8
	// DefaultQuality is the JPEG quality of the assembled image.
	DefaultQuality = 92
)

// ProgressFunc receives the number of settled tiles out of total.
type ProgressFunc func(done, total int)

// Result is an assembled image. Placed below Total means some tiles were
// skipped and the raster has gaps.
type Result struct {
	Image  []byte
	Grid   Grid
	Level  int
	Placed int
	Total  int
}

// Complete reports whether every tile was placed.
func (r *Result) Complete() bool { return r.Placed == r.Total }

// Assembler fetches the tiles of an image and composes them into one JPEG.
type Assembler struct {
	fetcher     Fetcher
	concurrency int
	quality     int
}

// NewAssembler creates an assembler. Non-positive values take defaults.
func NewAssembler(f Fetcher, concurrency, quality int) *Assembler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Assembler{fetcher: f, concurrency: concurrency, quality: quality}
}

// Assemble builds the width x height image at level. Tile 0 is fetched first
// and its decoded size replaces nominal as the tile size. The remaining tiles
// are fetched concurrently; failures leave gaps and are logged. progress may
// be nil.
func (a *Assembler) Assemble(ctx context.Context, tmpl Template, level, width, height, nominal int, progress ProgressFunc) (*Result, error) {
	first, err := a.fetchTile(ctx, tmpl, level, 0)
	if err != nil {
		return nil, err
	}

	tb := first.Bounds()
	grid, err := NewGrid(width, height, tb.Dx(), tb.Dy())
	if err != nil {
		return nil, apperr.New(apperr.CodeTileDecodeFailed, "tile 0 has unusable size", err)
	}
	if tb.Dx() != nominal || tb.Dy() != nominal {
		slog.Info("tile size differs from nominal", "nominal", nominal, "actual_w", tb.Dx(), "actual_h", tb.Dy())
	}
	total := grid.Total()
	slog.Info("assembling image", "width", width, "height", height, "level", level,
		"cols", grid.Cols, "rows", grid.Rows, "tiles", total)

	canvas := image.NewRGBA(grid.Bounds())
	place(canvas, grid, 0, first)

	var placed atomic.Int32
	placed.Store(1)
	report := newReporter(progress, total)
	report.settle()

	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	for idx := 1; idx < total; idx++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer report.settle()

			img, err := a.fetchTile(ctx, tmpl, level, idx)
			if err != nil {
				slog.Warn("tile skipped", "index", idx, "level", level, "code", apperr.CodeOf(err), "error", err)
				return
			}
			place(canvas, grid, idx, img)
			placed.Add(1)
		}(idx)
	}
	wg.Wait()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: a.quality}); err != nil {
		return nil, fmt.Errorf("tiles: encode jpeg: %w", err)
	}

	res := &Result{
		Image:  buf.Bytes(),
		Grid:   grid,
		Level:  level,
		Placed: int(placed.Load()),
		Total:  total,
	}
	if !res.Complete() {
		slog.Warn("image assembled with gaps", "placed", res.Placed, "total", res.Total)
	}
	return res, nil
}

func (a *Assembler) fetchTile(ctx context.Context, tmpl Template, level, idx int) (image.Image, error) {
	url := tmpl.TileURL(level, idx)
	payload, err := a.fetcher.Tile(ctx, url)
	if err != nil {
		return nil, apperr.New(apperr.CodeTileFetchFailed, fmt.Sprintf("tile %d", idx), err)
	}
	if len(payload.Data) == 0 {
		return nil, apperr.New(apperr.CodeTileFetchFailed, fmt.Sprintf("tile %d is empty", idx), nil)
	}
	img, _, err := image.Decode(bytes.NewReader(payload.Data))
	if err != nil {
		return nil, apperr.New(apperr.CodeTileDecodeFailed, fmt.Sprintf("tile %d (%s)", idx, payload.ContentType), err)
	}
	return img, nil
}

// place draws img into its grid cell. Cells never overlap, so concurrent calls
// write disjoint pixels.
func place(canvas *image.RGBA, grid Grid, idx int, img image.Image) {
	r := grid.Placement(idx)
	draw.Draw(canvas, r, img, img.Bounds().Min, draw.Src)
}

// reporter forwards progress roughly every tenth of the tiles.
type reporter struct {
	mu    sync.Mutex
	fn    ProgressFunc
	total int
	step  int
	done  int
}

func newReporter(fn ProgressFunc, total int) *reporter {
	step := (total + 9) / 10
	if step < 1 {
		step = 1
	}
	return &reporter{fn: fn, total: total, step: step}
}

func (r *reporter) settle() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	if r.done%r.step == 0 || r.done == r.total {
		r.fn(r.done, r.total)
	}
}
