package pebble

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/db"
)

const (
	metaPrefix    = "meta:"
	collagePrefix = "collage:"
)

// PebbleDB implements PhotoStore interface using Pebble key-value storage
type PebbleDB struct {
	db *pebble.DB
}

// New creates a new PebbleDB for writing
func New(dbPath string) (*PebbleDB, error) {
	pdb, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &PebbleDB{
		db: pdb,
	}, nil
}

// NewReader creates a new PebbleDB for reading (read-only mode)
func NewReader(dbPath string) (*PebbleDB, error) {
	opts := &pebble.Options{
		ReadOnly: true,
	}
	pdb, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &PebbleDB{
		db: pdb,
	}, nil
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}

func prefixed(prefix string, key []byte) []byte {
	prefixedKey := make([]byte, len(prefix)+len(key))
	copy(prefixedKey, prefix)
	copy(prefixedKey[len(prefix):], key)
	return prefixedKey
}

func (p *PebbleDB) Save(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := collage.EncodePNG(img)
	if err != nil {
		return "", err
	}
	key, id := db.NewKey()

	batch := p.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(prefixed(metaPrefix, key), db.EncodeMeta(time.Now(), int64(len(data))), nil); err != nil {
		return "", fmt.Errorf("failed to set metadata: %w", err)
	}
	if err := batch.Set(prefixed(collagePrefix, key), data, nil); err != nil {
		return "", fmt.Errorf("failed to set collage data: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return "", fmt.Errorf("failed to commit batch: %w", err)
	}

	return id, nil
}

func (p *PebbleDB) List() ([]collage.SavedCollage, error) {
	var saved []collage.SavedCollage

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(metaPrefix),
		UpperBound: []byte(metaPrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len(metaPrefix)+db.KeySize {
			continue
		}
		if item, ok := db.DecodeMeta(key[len(metaPrefix):], iter.Value()); ok {
			saved = append(saved, item)
		}
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return saved, nil
}

func (p *PebbleDB) Load(id string) ([]byte, error) {
	key, err := db.ParseKey(id)
	if err != nil {
		return nil, err
	}

	data, closer, err := p.db.Get(prefixed(collagePrefix, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("collage with id=%s: %w", id, collage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get collage data: %w", err)
	}
	defer closer.Close()

	// Copy the data since it's only valid until closer.Close()
	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}
