// Package db holds the key and metadata encoding shared by the collage stores.
package db

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mhbvr/collage"
)

// KeySize is the size of a collage key: the raw 16 bytes of its uuid.
const KeySize = 16

const metaSize = 16

// NewKey generates the key and string id of a new collage.
func NewKey() ([]byte, string) {
	id := uuid.New()
	key := make([]byte, KeySize)
	copy(key, id[:])
	return key, id.String()
}

// ParseKey converts a collage id back into its key.
func ParseKey(id string) ([]byte, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid collage id %q: %w", id, collage.ErrNotFound)
	}
	key := make([]byte, KeySize)
	copy(key, u[:])
	return key, nil
}

// KeyID formats a key as a collage id.
func KeyID(key []byte) (string, bool) {
	u, err := uuid.FromBytes(key)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// EncodeMeta packs the save time and encoded size of a collage.
func EncodeMeta(savedAt time.Time, size int64) []byte {
	meta := make([]byte, metaSize)
	binary.BigEndian.PutUint64(meta[:8], uint64(savedAt.UnixNano()))
	binary.BigEndian.PutUint64(meta[8:], uint64(size))
	return meta
}

// DecodeMeta builds a SavedCollage from a key and its metadata value.
func DecodeMeta(key, meta []byte) (collage.SavedCollage, bool) {
	id, ok := KeyID(key)
	if !ok || len(meta) != metaSize {
		return collage.SavedCollage{}, false
	}
	return collage.SavedCollage{
		ID:      id,
		SavedAt: time.Unix(0, int64(binary.BigEndian.Uint64(meta[:8]))),
		Size:    int64(binary.BigEndian.Uint64(meta[8:])),
	}, true
}
