// Package config loads the settings shared by the collage binaries.
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"time"

	"github.com/mhbvr/collage"
	"github.com/mhbvr/collage/db/bolt"
	"github.com/mhbvr/collage/db/filetree"
	"github.com/mhbvr/collage/db/pebble"
	"github.com/mhbvr/collage/editor"
	"github.com/mhbvr/collage/photoset"
	"github.com/mhbvr/collage/render"
	"gopkg.in/yaml.v3"
)

// Env variable names read by ApplyEnv.
const (
	EnvStoreType      = "COLLAGE_DB_TYPE"
	EnvStorePath      = "COLLAGE_DB_PATH"
	EnvMaxPhotos      = "COLLAGE_MAX_PHOTOS"
	EnvRenderInterval = "COLLAGE_RENDER_INTERVAL"
	EnvScaler         = "COLLAGE_SCALER"
)

type Config struct {
	Editor EditorConfig `yaml:"editor"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
}

type EditorConfig struct {
	MaxPhotos        int           `yaml:"max_photos"`
	RenderInterval   time.Duration `yaml:"render_interval"`
	PreviewWidth     int           `yaml:"preview_width"`
	PreviewHeight    int           `yaml:"preview_height"`
	Scaler           string        `yaml:"scaler"`
	FingerprintScope string        `yaml:"fingerprint_scope"`
}

// StoreConfig selects the backend: a directory for filetree and pebble, a
// file for bolt.
type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MetricsPort   int    `yaml:"metrics_port"`
	Orca          bool   `yaml:"orca"`
	OrcaThreshold int    `yaml:"orca_num_req_report"`
}

func Default() Config {
	return Config{
		Editor: EditorConfig{
			MaxPhotos:        photoset.MaxPhotos,
			RenderInterval:   render.DefaultInterval,
			PreviewWidth:     editor.DefaultPreviewSize.X,
			PreviewHeight:    editor.DefaultPreviewSize.Y,
			Scaler:           "BILINEAR",
			FingerprintScope: string(editor.ScopePhotoSet),
		},
		Store: StoreConfig{
			Type: "filetree",
		},
		Server: ServerConfig{
			Host:          "localhost",
			Port:          8081,
			MetricsPort:   8082,
			OrcaThreshold: 10,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup,
// normally os.LookupEnv after godotenv has loaded .env.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvStoreType); ok {
		c.Store.Type = v
	}
	if v, ok := lookup(EnvStorePath); ok {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvScaler); ok {
		c.Editor.Scaler = v
	}
	if v, ok := lookup(EnvMaxPhotos); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxPhotos, err)
		}
		c.Editor.MaxPhotos = n
	}
	if v, ok := lookup(EnvRenderInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRenderInterval, err)
		}
		c.Editor.RenderInterval = d
	}
	return nil
}

func (c Config) IsValid() error {
	var errs []error
	if c.Editor.MaxPhotos <= 0 {
		errs = append(errs, fmt.Errorf("max_photos must be positive, got %d", c.Editor.MaxPhotos))
	}
	if c.Editor.RenderInterval < 0 {
		errs = append(errs, fmt.Errorf("render_interval must not be negative, got %v", c.Editor.RenderInterval))
	}
	if c.Editor.PreviewWidth <= 0 || c.Editor.PreviewHeight <= 0 {
		errs = append(errs, fmt.Errorf("preview size must be positive, got %dx%d", c.Editor.PreviewWidth, c.Editor.PreviewHeight))
	}
	if _, err := render.Scaler(c.Editor.Scaler); err != nil {
		errs = append(errs, err)
	}
	switch editor.FingerprintScope(c.Editor.FingerprintScope) {
	case editor.ScopePhotoSet, editor.ScopeSession:
	default:
		errs = append(errs, fmt.Errorf("unknown fingerprint_scope %q", c.Editor.FingerprintScope))
	}
	switch c.Store.Type {
	case "filetree", "bolt", "pebble":
	default:
		errs = append(errs, fmt.Errorf("unknown database type: %s (must be 'filetree', 'bolt', or 'pebble')", c.Store.Type))
	}
	return errors.Join(errs...)
}

// EditorOptions translates the editor section into editor options.
func (c EditorConfig) EditorOptions() ([]editor.Option, error) {
	scaler, err := render.Scaler(c.Scaler)
	if err != nil {
		return nil, err
	}
	return []editor.Option{
		editor.WithMaxPhotos(c.MaxPhotos),
		editor.WithRenderInterval(c.RenderInterval),
		editor.WithPreviewSize(image.Pt(c.PreviewWidth, c.PreviewHeight)),
		editor.WithScaler(scaler),
		editor.WithFingerprintScope(editor.FingerprintScope(c.FingerprintScope)),
	}, nil
}

// Open opens the configured store for writing.
func (c StoreConfig) Open() (collage.PhotoStore, error) {
	if c.Path == "" {
		return nil, errors.New("database path must be specified")
	}
	switch c.Type {
	case "filetree":
		return filetree.New(c.Path)
	case "bolt":
		return bolt.New(c.Path)
	case "pebble":
		return pebble.New(c.Path)
	default:
		return nil, fmt.Errorf("unknown database type: %s (must be 'filetree', 'bolt', or 'pebble')", c.Type)
	}
}

// OpenReader opens an existing store read-only.
func (c StoreConfig) OpenReader() (collage.PhotoStore, error) {
	if c.Path == "" {
		return nil, errors.New("database path must be specified")
	}
	switch c.Type {
	case "filetree":
		return filetree.NewReader(c.Path)
	case "bolt":
		return bolt.NewReader(c.Path)
	case "pebble":
		return pebble.NewReader(c.Path)
	default:
		return nil, fmt.Errorf("unknown database type: %s (must be 'filetree', 'bolt', or 'pebble')", c.Type)
	}
}
