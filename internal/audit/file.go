package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"socsync/internal/logger"
)

const rotateStamp = "20060102T150405.000000000"

// FileSinkConfig configures the JSON lines audit trail.
type FileSinkConfig struct {
	Path string
	// MaxBytes rotates the file before a batch would grow it past this
	// size. Zero disables rotation.
	MaxBytes int64
}

// FileSink appends events to a JSON lines file. A batch is encoded up
// front, written with one call and synced before WriteEvents returns.
type FileSink struct {
	cfg  FileSinkConfig
	now  func() time.Time
	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileSink opens cfg.Path for appending, creating parent directories.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit file path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	s := &FileSink{cfg: cfg, now: time.Now}
	if err := s.open(); err != nil {
		return nil, err
	}
	logger.Infof("Audit JSON sink initialized: %s (max_bytes=%d)", cfg.Path, cfg.MaxBytes)
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}
	s.file = f
	s.size = info.Size()
	return nil
}

// WriteEvents writes a batch of events.
func (s *FileSink) WriteEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode audit event: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("audit file sink is closed")
	}

	if s.cfg.MaxBytes > 0 && s.size > 0 && s.size+int64(buf.Len()) > s.cfg.MaxBytes {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	n, err := s.file.Write(buf.Bytes())
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit batch: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit file: %w", err)
	}
	return nil
}

// rotate moves the current file aside under a UTC timestamp suffix and
// opens a fresh one at the configured path.
func (s *FileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit file for rotation: %w", err)
	}
	s.file = nil

	rotated := s.cfg.Path + "." + s.now().UTC().Format(rotateStamp)
	renameErr := os.Rename(s.cfg.Path, rotated)
	if err := s.open(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("failed to rotate audit file: %w", renameErr)
	}
	logger.Infof("Audit file rotated to %s", rotated)
	return nil
}

// Close closes the output file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
