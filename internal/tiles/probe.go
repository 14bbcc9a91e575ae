package tiles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/fetch"
)

// Fetcher retrieves a single tile.
type Fetcher interface {
	Tile(ctx context.Context, url string) (*fetch.Payload, error)
}

// Strategy names a resolution probing policy.
type Strategy string

// HighToLowFirstHit probes from the finest level down and stops at the first
// level that serves an image.
const HighToLowFirstHit Strategy = "high_to_low_first_hit"

// DefaultMaxLevel is the zoom level probing starts from.
const DefaultMaxLevel = 10

// ProbeOptions configures a Prober.
type ProbeOptions struct {
	MaxLevel int
	// MinLevel is 0 or 1 depending on how the server indexes its levels.
	MinLevel int
	Strategy Strategy
}

// ProbeResult is the outcome of one probe run.
type ProbeResult struct {
	Level    int
	Attempts int
}

// Prober finds the finest resolution level a tile server offers.
type Prober struct {
	fetcher Fetcher
	opts    ProbeOptions
}

// NewProber validates opts and returns a prober. An empty strategy selects
// HighToLowFirstHit.
func NewProber(f Fetcher, opts ProbeOptions) (*Prober, error) {
	if opts.Strategy == "" {
		opts.Strategy = HighToLowFirstHit
	}
	if opts.Strategy != HighToLowFirstHit {
		return nil, fmt.Errorf("tiles: unknown probe strategy %q", opts.Strategy)
	}
	if opts.MinLevel < 0 || opts.MinLevel > opts.MaxLevel {
		return nil, fmt.Errorf("tiles: invalid probe levels %d..%d", opts.MaxLevel, opts.MinLevel)
	}
	return &Prober{fetcher: f, opts: opts}, nil
}

// Strategy reports the probing strategy in use.
func (p *Prober) Strategy() Strategy { return p.opts.Strategy }

// FindFinestLevel returns the highest level whose tile 0 is served as an image.
func (p *Prober) FindFinestLevel(ctx context.Context, tmpl Template) (int, error) {
	res, err := p.Probe(ctx, tmpl)
	if err != nil {
		return 0, err
	}
	return res.Level, nil
}

// Probe requests tile 0 at each level from MaxLevel down to MinLevel, one at a
// time, and returns the first level answered with an image content type.
func (p *Prober) Probe(ctx context.Context, tmpl Template) (ProbeResult, error) {
	attempts := 0
	for level := p.opts.MaxLevel; level >= p.opts.MinLevel; level-- {
		if err := ctx.Err(); err != nil {
			return ProbeResult{Attempts: attempts}, err
		}
		attempts++
		url := tmpl.TileURL(level, 0)
		payload, err := p.fetcher.Tile(ctx, url)
		if err != nil {
			slog.Debug("probe level unavailable", "level", level, "error", err)
			continue
		}
		if !payload.IsImage() {
			slog.Debug("probe level not an image", "level", level, "content_type", payload.ContentType)
			continue
		}
		slog.Info("resolution level found", "level", level, "attempts", attempts)
		return ProbeResult{Level: level, Attempts: attempts}, nil
	}
	return ProbeResult{Attempts: attempts}, apperr.New(apperr.CodeNoUsableLevel,
		fmt.Sprintf("no level in %d..%d served an image", p.opts.MaxLevel, p.opts.MinLevel), nil)
}
