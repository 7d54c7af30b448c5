// Package file stores graph documents as JSON files in a directory.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
)

const (
	ext        = ".json"
	tempPrefix = "tmp-"
)

// Store implements ports.GraphStore and ports.Watchable on the local filesystem.
type Store struct {
	BasePath string
	debounce time.Duration
	logger   *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithLogger configures the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to "graphs".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = "graphs"
	}
	s := &Store{
		BasePath: basePath,
		debounce: 200 * time.Millisecond,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) path(name string) string {
	return filepath.Join(s.BasePath, name+ext)
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidGraphName)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGraphName, name)
	}
	return nil
}

// Save writes the document atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, name string, doc *domain.Document) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure graph directory: %w", err)
	}

	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	// Same directory as the destination so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, tempPrefix+strings.TrimPrefix(name, ".")+"-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	destPath := s.path(name)
	// os.Rename does not replace an existing file on Windows.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing graph file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to graph file: %w", err)
	}
	return nil
}

// Load reads and parses a stored document.
func (s *Store) Load(ctx context.Context, name string) (*domain.Document, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
		}
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return domain.ParseDocument(data)
}

// LoadPath reads a document from an arbitrary file.
func LoadPath(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, path)
		}
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return domain.ParseDocument(data)
}

// Delete removes a stored document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete graph file: %w", err)
	}
	return nil
}

// List returns the stored document names, sorted, without the last-active mirror.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if name, ok := graphName(entry.Name()); ok && !entry.IsDir() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// graphName maps a file name to a document name, skipping temp files and the
// last-active mirror.
func graphName(file string) (string, bool) {
	if filepath.Ext(file) != ext || strings.HasPrefix(file, tempPrefix) {
		return "", false
	}
	name := strings.TrimSuffix(file, ext)
	if name == ports.LastActiveName {
		return "", false
	}
	return name, true
}
