package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalStorage implements ports.Workspace for the local filesystem.
type LocalStorage struct {
	BaseDir   string // parent of per-job working directories
	PublicDir string // directory for finished media

	mu      sync.Mutex
	workDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir, outputDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir, PublicDir: outputDir}
}

// InitWorkspace creates the job's working directory.
func (s *LocalStorage) InitWorkspace(ctx context.Context, jobID string) (string, error) {
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	s.mu.Lock()
	s.workDir = path
	s.mu.Unlock()
	return path, nil
}

// WriteCookies saves a cookie payload in the working directory.
func (s *LocalStorage) WriteCookies(ctx context.Context, payload string) (string, error) {
	s.mu.Lock()
	dir := s.workDir
	s.mu.Unlock()
	if dir == "" {
		return "", fmt.Errorf("workspace not initialised")
	}
	path := filepath.Join(dir, "cookies.txt")
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		return "", fmt.Errorf("failed to save cookies: %w", err)
	}
	return path, nil
}

// OutputDir returns the output directory, creating it if needed.
func (s *LocalStorage) OutputDir() (string, error) {
	if err := os.MkdirAll(s.PublicDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", s.PublicDir, err)
	}
	return s.PublicDir, nil
}

// Cleanup removes the working directory and everything in it.
func (s *LocalStorage) Cleanup() error {
	s.mu.Lock()
	dir := s.workDir
	s.workDir = ""
	s.mu.Unlock()
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// GetJobPath returns the path for a job's working directory.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "ytdownloader-"+jobID)
}
