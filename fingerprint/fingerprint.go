// Package fingerprint implements the approximate duplicate detection used when
// photos are added to a collage.
//
// A fingerprint is the length of the photo's PNG encoding. It is cheap and
// deterministic but weak: two different photos with the same encoded length
// collide and the second one is treated as a duplicate.
package fingerprint

import (
	"github.com/mhbvr/collage"
)

// Fingerprint is a lightweight content signature of a photo.
type Fingerprint int

// Func computes the fingerprint of a photo.
type Func func(*collage.Photo) Fingerprint

// EncodedSize is the default Func: the PNG-encoded byte length of the photo,
// or 0 when the photo cannot be encoded.
func EncodedSize(p *collage.Photo) Fingerprint {
	data, err := p.PNG()
	if err != nil {
		return 0
	}
	return Fingerprint(len(data))
}

// Cache records fingerprints of accepted photos.
//
// The cache is append-only between resets and has no eviction. It is not safe
// for concurrent use; it belongs to the editor loop.
type Cache struct {
	seen []Fingerprint
}

func NewCache() *Cache {
	return &Cache{}
}

// Contains reports whether fp was recorded since the last reset.
func (c *Cache) Contains(fp Fingerprint) bool {
	for _, v := range c.seen {
		if v == fp {
			return true
		}
	}
	return false
}

// Record appends fp. Repeated values are kept.
func (c *Cache) Record(fp Fingerprint) {
	c.seen = append(c.seen, fp)
}

// Reset forgets every recorded fingerprint.
func (c *Cache) Reset() {
	c.seen = nil
}

// Len returns the number of recorded fingerprints.
func (c *Cache) Len() int {
	return len(c.seen)
}
