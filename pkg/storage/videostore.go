package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// VideoStore keeps simulation recordings on disk under a base directory.
// The external recorder drops files here; the API only reads and expires them.
type VideoStore struct {
	baseDir string
}

// NewVideoStore ensures the base directory exists and returns a handle.
func NewVideoStore(baseDir string) (*VideoStore, error) {
	if baseDir == "" {
		baseDir = "./videos"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create videos directory: %w", err)
	}
	return &VideoStore{baseDir: baseDir}, nil
}

// SaveStream copies a recording from the reader into the store.
func (s *VideoStore) SaveStream(filename string, r io.Reader) (string, error) {
	path := s.resolve(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare video directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write video stream: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for a stored recording.
func (s *VideoStore) Open(filename string) (*os.File, error) {
	file, err := os.Open(s.resolve(filename))
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	return file, nil
}

// Stat returns file info for a stored recording.
func (s *VideoStore) Stat(filename string) (os.FileInfo, error) {
	return os.Stat(s.resolve(filename))
}

// Delete removes a recording if present.
func (s *VideoStore) Delete(filename string) error {
	if err := os.Remove(s.resolve(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete video file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes recordings older than the retention window and
// returns the deleted names.
func (s *VideoStore) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup videos: %w", err)
	}
	return deleted, nil
}

// Path exposes the resolved absolute path for a recording.
func (s *VideoStore) Path(filename string) string {
	return s.resolve(filename)
}

func (s *VideoStore) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}
