// Package tiles probes tiled image servers for their finest resolution level
// and stitches tiles back into a single image.
package tiles

import (
	"fmt"
	"image"
)

// Template addresses the tiles of one image.
type Template interface {
	TileURL(level, index int) string
}

// TemplateFunc adapts a function to Template.
type TemplateFunc func(level, index int) string

func (f TemplateFunc) TileURL(level, index int) string { return f(level, index) }

// Grid is the tile layout of a width x height image.
type Grid struct {
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Cols       int
	Rows       int
}

// Descriptor locates one tile in a grid.
type Descriptor struct {
	Level   int
	Index   int
	Row     int
	Col     int
	OffsetX int
	OffsetY int
}

// NewGrid computes the layout for tiles of tileW x tileH.
func NewGrid(width, height, tileW, tileH int) (Grid, error) {
	if width <= 0 || height <= 0 {
		return Grid{}, fmt.Errorf("tiles: invalid image size %dx%d", width, height)
	}
	if tileW <= 0 || tileH <= 0 {
		return Grid{}, fmt.Errorf("tiles: invalid tile size %dx%d", tileW, tileH)
	}
	return Grid{
		Width:      width,
		Height:     height,
		TileWidth:  tileW,
		TileHeight: tileH,
		Cols:       ceilDiv(width, tileW),
		Rows:       ceilDiv(height, tileH),
	}, nil
}

// Total is the number of tiles in the grid.
func (g Grid) Total() int { return g.Cols * g.Rows }

// Bounds is the full image rectangle.
func (g Grid) Bounds() image.Rectangle { return image.Rect(0, 0, g.Width, g.Height) }

// Descriptor returns the position of tile index at level.
func (g Grid) Descriptor(level, index int) Descriptor {
	row, col := index/g.Cols, index%g.Cols
	return Descriptor{
		Level:   level,
		Index:   index,
		Row:     row,
		Col:     col,
		OffsetX: col * g.TileWidth,
		OffsetY: row * g.TileHeight,
	}
}

// Placement returns the raster rectangle of tile index, clipped to the image.
// Edge tiles overhanging the image are cut rather than rejected.
func (g Grid) Placement(index int) image.Rectangle {
	d := g.Descriptor(0, index)
	cell := image.Rect(d.OffsetX, d.OffsetY, d.OffsetX+g.TileWidth, d.OffsetY+g.TileHeight)
	return cell.Intersect(g.Bounds())
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
