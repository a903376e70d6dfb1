// Package phototest builds small in-memory photos for tests.
package phototest

import (
	"image"
	"image/color"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/fingerprint"
)

// Landscape returns a 4x2 photo filled with a shade derived from seed.
func Landscape(seed int) *collage.Photo {
	return Sized(4, 2, seed)
}

// Portrait returns a 2x4 photo.
func Portrait(seed int) *collage.Photo {
	return Sized(2, 4, seed)
}

// Sized returns a w x h photo filled with a shade derived from seed.
func Sized(w, h, seed int) *collage.Photo {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(seed * 37), G: uint8(seed * 11), B: uint8(seed * 5), A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return collage.NewPhoto(img)
}

// Sizes maps photos to preset fingerprints, standing in for encoded byte lengths.
type Sizes map[*collage.Photo]fingerprint.Fingerprint

// Func returns a fingerprint.Func reading from the map.
func (s Sizes) Func() fingerprint.Func {
	return func(p *collage.Photo) fingerprint.Fingerprint {
		return s[p]
	}
}

// WithSizes builds one landscape photo per length and registers it in sizes.
func (s Sizes) WithSizes(lengths ...int) []*collage.Photo {
	out := make([]*collage.Photo, 0, len(lengths))
	for i, l := range lengths {
		p := Landscape(i + 1)
		s[p] = fingerprint.Fingerprint(l)
		out = append(out, p)
	}
	return out
}
