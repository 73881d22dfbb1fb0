// Package audio persists synthesized response audio for HTTP clients.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	// DefaultDir is used when no audio directory is configured.
	DefaultDir = "audio"
	// FileExtension is appended to every saved file.
	FileExtension = ".mp3"

	dirPermissions  = 0755
	filePermissions = 0644
)

var ErrEmptyDir = errors.New("audio directory not set")

// Store saves a response audio payload and returns where it was written.
type Store interface {
	Save(audio []byte) (string, error)
}

// FileStore writes each payload to its own uniquely named file.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	slog.Debug("Audio file store ready", "dir", dir)
	return &FileStore{dir: dir}, nil
}

// Save writes audio to <dir>/<uuid>.mp3. Empty audio produces an empty file.
func (s *FileStore) Save(audio []byte) (string, error) {
	path := filepath.Join(s.dir, uuid.NewString()+FileExtension)
	if err := os.WriteFile(path, audio, filePermissions); err != nil {
		slog.Error("FileStore.Save: write failed", "path", path, "error", err)
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	slog.Debug("FileStore.Save: audio written", "path", path, "bytes", len(audio))
	return path, nil
}

// Dir returns the directory files are written to.
func (s *FileStore) Dir() string {
	return s.dir
}
