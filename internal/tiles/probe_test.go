package tiles

import (
	"context"
	"testing"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
	"github.com/dgnsrekt/webarchivist/internal/fetch"
)

func onlyLevel(want int) func(level, index int) (*fetch.Payload, error) {
	return func(level, index int) (*fetch.Payload, error) {
		switch {
		case level == want:
			return &fetch.Payload{Status: 200, ContentType: "image/jpeg", Data: []byte{0xff}}, nil
		case level%2 == 0:
			return &fetch.Payload{Status: 200, ContentType: "text/html", Data: []byte("<html>")}, nil
		default:
			return nil, errUnavailable
		}
	}
}

func TestFindFinestLevelStopsAtFirstHit(t *testing.T) {
	for _, minLevel := range []int{0, 1} {
		f := &fakeFetcher{serve: onlyLevel(3)}
		p, err := NewProber(f, ProbeOptions{MaxLevel: DefaultMaxLevel, MinLevel: minLevel})
		if err != nil {
			t.Fatalf("NewProber() error = %v", err)
		}

		res, err := p.Probe(context.Background(), testTemplate)
		if err != nil {
			t.Fatalf("Probe(min %d) error = %v", minLevel, err)
		}
		if res.Level != 3 {
			t.Fatalf("Probe(min %d) level = %d; want 3", minLevel, res.Level)
		}
		// Levels 10, 9, 8, 7, 6, 5, 4, 3.
		if res.Attempts != 8 || f.calls.Load() != 8 {
			t.Fatalf("Probe(min %d) attempts = %d, calls = %d; want 8", minLevel, res.Attempts, f.calls.Load())
		}
		for i, url := range f.urls {
			level, index := parseTileURL(url)
			if level != DefaultMaxLevel-i || index != 0 {
				t.Fatalf("probe %d requested %q; want level %d tile 0", i, url, DefaultMaxLevel-i)
			}
		}
	}
}

func TestFindFinestLevelLowerBound(t *testing.T) {
	f := &fakeFetcher{serve: onlyLevel(0)}
	p, err := NewProber(f, ProbeOptions{MaxLevel: 10, MinLevel: 0})
	if err != nil {
		t.Fatalf("NewProber() error = %v", err)
	}
	level, err := p.FindFinestLevel(context.Background(), testTemplate)
	if err != nil || level != 0 {
		t.Fatalf("FindFinestLevel(min 0) = %d, %v; want 0, nil", level, err)
	}

	f = &fakeFetcher{serve: onlyLevel(0)}
	p, err = NewProber(f, ProbeOptions{MaxLevel: 10, MinLevel: 1})
	if err != nil {
		t.Fatalf("NewProber() error = %v", err)
	}
	res, err := p.Probe(context.Background(), testTemplate)
	if !apperr.Is(err, apperr.CodeNoUsableLevel) {
		t.Fatalf("Probe(min 1) error = %v; want %s", err, apperr.CodeNoUsableLevel)
	}
	if res.Attempts != 10 {
		t.Fatalf("Probe(min 1) attempts = %d; want 10", res.Attempts)
	}
}

func TestNewProberValidation(t *testing.T) {
	if _, err := NewProber(&fakeFetcher{}, ProbeOptions{MaxLevel: 10, Strategy: "exhaustive"}); err == nil {
		t.Fatalf("NewProber(exhaustive) error = nil; want error")
	}
	if _, err := NewProber(&fakeFetcher{}, ProbeOptions{MaxLevel: 1, MinLevel: 2}); err == nil {
		t.Fatalf("NewProber(min > max) error = nil; want error")
	}
	p, err := NewProber(&fakeFetcher{}, ProbeOptions{MaxLevel: 10})
	if err != nil {
		t.Fatalf("NewProber() error = %v", err)
	}
	if p.Strategy() != HighToLowFirstHit {
		t.Fatalf("Strategy() = %q; want %q", p.Strategy(), HighToLowFirstHit)
	}
}
