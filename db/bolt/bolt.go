package bolt

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/db"
	bolt "go.etcd.io/bbolt"
)

const (
	metaBucket    = "meta"
	collageBucket = "collages"
)

// BoltDB implements PhotoStore interface using single bbolt file for everything
type BoltDB struct {
	db *bolt.DB
}

// New creates a new BoltDB
func New(dbPath string) (*BoltDB, error) {
	bdb, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(collageBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{
		db: bdb,
	}, nil
}

// NewReader opens an existing database in read-only mode
func NewReader(dbPath string) (*BoltDB, error) {
	bdb, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	return &BoltDB{
		db: bdb,
	}, nil
}

func (w *BoltDB) Close() error {
	return w.db.Close()
}

func (w *BoltDB) Save(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := collage.EncodePNG(img)
	if err != nil {
		return "", err
	}
	key, id := db.NewKey()

	err = w.db.Update(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket([]byte(metaBucket))
		if err := metaBucket.Put(key, db.EncodeMeta(time.Now(), int64(len(data)))); err != nil {
			return fmt.Errorf("failed to update meta bucket: %w", err)
		}

		collageBucket := tx.Bucket([]byte(collageBucket))
		if err := collageBucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to update collage bucket: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (w *BoltDB) List() ([]collage.SavedCollage, error) {
	var saved []collage.SavedCollage

	err := w.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", metaBucket)
		}

		cursor := bucket.Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			if item, ok := db.DecodeMeta(key, value); ok {
				saved = append(saved, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func (w *BoltDB) Load(id string) ([]byte, error) {
	key, err := db.ParseKey(id)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = w.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collageBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", collageBucket)
		}

		value := bucket.Get(key)
		if value == nil {
			return fmt.Errorf("collage with id=%s: %w", id, collage.ErrNotFound)
		}
		// Value is only valid for the life of the transaction
		data = make([]byte, len(value))
		copy(data, value)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}
