package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sophialabs/mockexpect/internal/domain/dispatch"
)

// File appends entries to a file as JSON lines.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &File{f: f}, nil
}

func (s *File) Write(_ context.Context, e dispatch.LogEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write log file: %w", err)
	}
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
