package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Rotation policy for the log file sink.
const (
	logFileMaxSize = 5 << 20
	logFileBackups = 5
)

// fileSink is a size-rotated log file. When a write would push the file
// past logFileMaxSize, the current file becomes <path>.1, existing backups
// shift up, and the oldest beyond logFileBackups is dropped.
type fileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

func openFileSink(path string) (*fileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSink{path: path, f: f, size: info.Size()}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return 0, os.ErrClosed
	}
	if s.size+int64(len(p)) > logFileMaxSize {
		if err := s.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *fileSink) rotate() error {
	s.f.Close()
	s.f = nil

	os.Remove(backupName(s.path, logFileBackups))
	for i := logFileBackups - 1; i >= 1; i-- {
		os.Rename(backupName(s.path, i), backupName(s.path, i+1))
	}
	os.Rename(s.path, backupName(s.path, 1))

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("reopening log file after rotation: %w", err)
	}
	s.f = f
	s.size = 0
	return nil
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}
