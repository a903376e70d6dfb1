package collage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"
)

// Photo is an immutable handle to a decoded bitmap. It is shared between
// the selection pipeline and the photo set and is never modified in place.
type Photo struct {
	img  image.Image
	name string

	once    sync.Once
	encoded []byte
	encErr  error
}

// NewPhoto wraps an already decoded image.
func NewPhoto(img image.Image) *Photo {
	return &Photo{img: img}
}

// NewNamedPhoto wraps an image and remembers where it came from, for logging.
func NewNamedPhoto(name string, img image.Image) *Photo {
	return &Photo{img: img, name: name}
}

// DecodePhoto decodes JPEG, PNG or GIF data into a Photo.
func DecodePhoto(name string, data []byte) (*Photo, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", name, err)
	}
	return NewNamedPhoto(name, img), nil
}

func (p *Photo) Image() image.Image { return p.img }

func (p *Photo) Name() string { return p.name }

func (p *Photo) Width() int { return p.img.Bounds().Dx() }

func (p *Photo) Height() int { return p.img.Bounds().Dy() }

// PNG returns the PNG representation of the photo. The encoding is computed
// once and reused; callers must not modify the returned slice.
func (p *Photo) PNG() ([]byte, error) {
	p.once.Do(func() {
		p.encoded, p.encErr = EncodePNG(p.img)
	})
	return p.encoded, p.encErr
}

// EncodePNG encodes an image as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
