package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrWrite signals a failed write to the media store
var ErrWrite = errors.New("storage: write failed")

// Store persists uploaded media
type Store interface {
	// SaveFile writes the bytes under a timestamped name derived from the
	// prefix and the original filename's extension, returning the path.
	SaveFile(content []byte, originalName, prefix string) (string, error)
}

// LocalStore saves media to a local directory
type LocalStore struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewLocalStore creates a local store rooted at dir
func NewLocalStore(dir string, logger zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStore{
		dir:    dir,
		logger: logger.With().Str("module", "storage").Logger(),
		now:    time.Now,
	}, nil
}

// SaveFile writes media bytes under a timestamped, traversal-safe name
func (s *LocalStore) SaveFile(content []byte, originalName, prefix string) (string, error) {
	// Base() strips any path components a client sneaks into the filename
	safeName := filepath.Base(originalName)
	ext := filepath.Ext(safeName)

	timestamp := s.now().Format("20060102_150405.000")
	savePath := filepath.Join(s.dir, fmt.Sprintf("%s_%s%s", prefix, timestamp, ext))

	if err := os.WriteFile(savePath, content, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.logger.Debug().
		Str("path", savePath).
		Int("size", len(content)).
		Msg("Media saved")

	return savePath, nil
}
