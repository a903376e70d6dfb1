// Package render composes collage previews and keeps a render target up to
// date with the photo set.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/mhbvr/collage"
	"golang.org/x/image/draw"
)

// IconSize is the size of the navigation icon derived from a preview.
var IconSize = image.Pt(22, 22)

// Scaler returns the interpolation used to scale photos by name:
// NEAREST_NEIGHBOR, APPROX_BILINEAR, BILINEAR or CATMULL_ROM.
func Scaler(name string) (draw.Scaler, error) {
	switch name {
	case "NEAREST_NEIGHBOR":
		return draw.NearestNeighbor, nil
	case "APPROX_BILINEAR":
		return draw.ApproxBiLinear, nil
	case "BILINEAR", "":
		return draw.BiLinear, nil
	case "CATMULL_ROM":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("unknown scaling algorithm: %s", name)
	}
}

// Collage composes photos into a single image of the given size using bilinear scaling.
func Collage(photos []*collage.Photo, size image.Point) image.Image {
	return CollageWith(draw.BiLinear, photos, size)
}

// CollageWith composes photos on a white canvas. Up to two photos share one
// row; more are spread over two rows with round(n/2) columns. No photos
// gives a blank canvas.
func CollageWith(scaler draw.Scaler, photos []*collage.Photo, size image.Point) image.Image {
	if size.X < 0 {
		size.X = 0
	}
	if size.Y < 0 {
		size.Y = 0
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if len(photos) == 0 || size.X == 0 || size.Y == 0 {
		return dst
	}

	rows := 1
	if len(photos) >= 3 {
		rows = 2
	}
	columns := int(math.Round(float64(len(photos)) / float64(rows)))
	tileW := int(math.Round(float64(size.X) / float64(columns)))
	tileH := int(math.Round(float64(size.Y) / float64(rows)))

	for i, p := range photos {
		x := (i % columns) * tileW
		y := (i / columns) * tileH
		tile := image.Rect(x, y, x+tileW, y+tileH).Intersect(dst.Bounds())
		if tile.Empty() {
			continue
		}
		src := p.Image()
		scaler.Scale(dst, tile, src, src.Bounds(), draw.Over, nil)
	}
	return dst
}

// Icon scales img down to size. A nil image yields nil.
func Icon(img image.Image, size image.Point) image.Image {
	if img == nil {
		return nil
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
