package collage

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrNotFound is returned by readers when a collage id is unknown.
var ErrNotFound = errors.New("collage not found")

// PhotoWriter persists composed collages.
// Different implementations can store data in different formats (file tree vs single bbolt file vs pebble).
type PhotoWriter interface {
	// Save encodes and stores a composed collage, returning its identifier
	Save(ctx context.Context, img image.Image) (string, error)

	// Close closes the database and releases resources
	Close() error
}

// PhotoReader provides read access to previously saved collages.
type PhotoReader interface {
	// List returns metadata of all saved collages
	List() ([]SavedCollage, error)

	// Load returns the encoded PNG of a saved collage
	Load(id string) ([]byte, error)

	// Close closes the database and releases resources
	Close() error
}

// PhotoStore is implemented by every backend under db/.
type PhotoStore interface {
	PhotoWriter
	PhotoReader
}

// SavedCollage represents a persisted collage with its metadata
type SavedCollage struct {
	ID      string
	Size    int64
	SavedAt time.Time
}
