package filetree

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/db"
	"github.com/ncw/directio"
	bolt "go.etcd.io/bbolt"
)

const (
	metaBucket = "collages"
	metaFile   = "meta"
	dataDir    = "data"
)

// FileTreeDB implements PhotoStore interface using bbolt for metadata and filesystem for collages
type FileTreeDB struct {
	metaPath string
	dataPath string
	db       *bolt.DB
}

// New creates a new FileTreeDB for writing
func New(dbDir string) (*FileTreeDB, error) {
	metaPath := filepath.Join(dbDir, metaFile)
	dataPath := filepath.Join(dbDir, dataDir)

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	bdb, err := bolt.Open(metaPath, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &FileTreeDB{
		metaPath: metaPath,
		dataPath: dataPath,
		db:       bdb,
	}, nil
}

// NewReader creates a new FileTreeDB for reading (read-only mode)
func NewReader(dbDir string) (*FileTreeDB, error) {
	metaPath := filepath.Join(dbDir, metaFile)
	dataPath := filepath.Join(dbDir, dataDir)

	bdb, err := bolt.Open(metaPath, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	return &FileTreeDB{
		metaPath: metaPath,
		dataPath: dataPath,
		db:       bdb,
	}, nil
}

func (w *FileTreeDB) Close() error {
	return w.db.Close()
}

func (w *FileTreeDB) collagePath(key []byte) string {
	filename := fmt.Sprintf("%x", sha256.Sum256(key))
	return filepath.Join(w.dataPath, filename[:2], filename)
}

func (w *FileTreeDB) Save(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := collage.EncodePNG(img)
	if err != nil {
		return "", err
	}
	key, id := db.NewKey()

	// File first: a meta entry must never point at a missing file
	path := w.collagePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create collage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write collage file: %w", err)
	}

	err = w.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		return bucket.Put(key, db.EncodeMeta(time.Now(), int64(len(data))))
	})
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to update meta database: %w", err)
	}

	return id, nil
}

func (w *FileTreeDB) List() ([]collage.SavedCollage, error) {
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

func (w *FileTreeDB) Load(id string) ([]byte, error) {
	key, err := db.ParseKey(id)
	if err != nil {
		return nil, err
	}

	err = w.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", metaBucket)
		}
		if bucket.Get(key) == nil {
			return fmt.Errorf("collage with id=%s: %w", id, collage.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return readFile(w.collagePath(key))
}

// readFile reads with O_DIRECT, falling back to buffered reads on
// filesystems that reject the flag.
func readFile(path string) ([]byte, error) {
	file, err := directio.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open collage file %s: %w", path, err)
		}
		return os.ReadFile(path)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat collage file %s: %w", path, err)
	}

	// Allocate aligned block for reading
	block := directio.AlignedBlock(directio.BlockSize)
	data := make([]byte, 0, fileInfo.Size())

	for {
		n, err := io.ReadFull(file, block)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			// Some filesystems accept O_DIRECT at open and reject the read
			return os.ReadFile(path)
		}
		if n > 0 {
			data = append(data, block[:n]...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
	}

	return data, nil
}
