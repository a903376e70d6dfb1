package render

import (
	"image"
	"sync"
)

// Preview is the render target showing the current collage.
type Preview struct {
	mu   sync.RWMutex
	size image.Point
	img  image.Image
}

func NewPreview(size image.Point) *Preview {
	return &Preview{size: size}
}

// Size returns the current bounds size of the target.
func (p *Preview) Size() image.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

// Resize changes the target bounds. The next render uses the new size.
func (p *Preview) Resize(size image.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = size
}

// Image returns the last rendered collage, or nil before the first render.
func (p *Preview) Image() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.img
}

func (p *Preview) set(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.img = img
}
