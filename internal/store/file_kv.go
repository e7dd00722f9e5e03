package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileKV persists values in a single YAML file. The CLI keeps its one session here.
type FileKV struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type fileEntry struct {
	Value     string    `yaml:"value"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

func NewFileKV(path string) *FileKV {
	return &FileKV{path: path, now: time.Now}
}

func (f *FileKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return "", err
	}
	e, ok := entries[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.ExpiresAt.IsZero() && !f.now().Before(e.ExpiresAt) {
		return "", ErrMiss
	}
	return e.Value, nil
}

func (f *FileKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	e := fileEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = f.now().Add(ttl)
	}
	entries[key] = e
	return f.write(entries)
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.write(entries)
}

func (f *FileKV) read() (map[string]fileEntry, error) {
	entries := map[string]fileEntry{}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if entries == nil {
		entries = map[string]fileEntry{}
	}
	return entries, nil
}

func (f *FileKV) write(entries map[string]fileEntry) error {
	raw, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	// session tokens, owner-only
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}
