package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/webarchivist/internal/fetch"
)

// testTemplate builds URLs of the form "tile:<level>,<index>".
var testTemplate = TemplateFunc(func(level, index int) string {
	return fmt.Sprintf("tile:%d,%d", level, index)
})

func parseTileURL(url string) (level, index int) {
	parts := strings.Split(strings.TrimPrefix(url, "tile:"), ",")
	level, _ = strconv.Atoi(parts[0])
	index, _ = strconv.Atoi(parts[1])
	return level, index
}

type fakeFetcher struct {
	mu    sync.Mutex
	urls  []string
	calls atomic.Int32
	serve func(level, index int) (*fetch.Payload, error)
}

func (f *fakeFetcher) Tile(_ context.Context, url string) (*fetch.Payload, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return f.serve(parseTileURL(url))
}

func tileColor(index int) color.RGBA {
	return color.RGBA{R: uint8(20 + index*40), G: uint8(230 - index*30), B: 100, A: 255}
}

func solidPNG(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

var errUnavailable = errors.New("unavailable")
