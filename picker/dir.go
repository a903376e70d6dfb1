package picker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mhbvr/collage"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Files returns the image files under dir in lexical order.
func Files(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadPhoto loads and decodes one image file.
func ReadPhoto(path string) (*collage.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read photo file %s: %w", path, err)
	}
	return collage.DecodePhoto(filepath.Base(path), data)
}
