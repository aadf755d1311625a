// Package file holds the file-backed configuration adapters: the JSON
// sources store and the TOML settings store.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/core/ports/driving"
	"github.com/taskdeck/ingestd/internal/logger"
)

const (
	sourcesFileName = "sources.json"

	// legacyFileName is migrated to sourcesFileName once, on first load.
	legacyFileName = "watchers.json"
)

// Ensure SourceStore implements the interface.
var _ driven.SourceStore = (*SourceStore)(nil)

// SourceStore loads source definitions from a JSON file, cached by file
// modification time. A reload that fails to parse or validate falls
// back to the last good configuration instead of surfacing the failure
// to running sources.
type SourceStore struct {
	mu        sync.Mutex
	path      string
	validator driving.SourceValidator

	cached   []domain.Source
	modTime  time.Time
	haveGood bool

	watcher *fsnotify.Watcher
}

// NewSourceStore creates a source store rooted at configDir. If
// configDir is empty, defaults to ~/.ingestd. A legacy watchers file is
// renamed in place on first use.
func NewSourceStore(configDir string, validator driving.SourceValidator) (*SourceStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".ingestd")
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(configDir, sourcesFileName)
	legacy := filepath.Join(configDir, legacyFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, legacyErr := os.Stat(legacy); legacyErr == nil {
			if renameErr := os.Rename(legacy, path); renameErr != nil {
				return nil, fmt.Errorf("migrating legacy config: %w", renameErr)
			}
			logger.Info("migrated legacy config %s to %s", legacy, path)
		}
	}

	return &SourceStore{path: path, validator: validator}, nil
}

// Path returns the sources file path.
func (s *SourceStore) Path() string {
	return s.path
}

// Load returns all configured sources, re-reading the file only when
// its modification time changed.
func (s *SourceStore) Load(_ context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		// No sources file yet means no sources.
		return nil, nil
	}
	if err != nil {
		return s.fallback(fmt.Errorf("stat sources file: %w", err))
	}

	if s.haveGood && info.ModTime().Equal(s.modTime) {
		return cloneSources(s.cached), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s.fallback(fmt.Errorf("read sources file: %w", err))
	}

	var file domain.SourceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return s.fallback(fmt.Errorf("parse sources file: %w", err))
	}
	if s.validator != nil {
		if err := s.validator.ValidateSources(file.Sources); err != nil {
			return s.fallback(fmt.Errorf("validate sources file: %w", err))
		}
	}

	s.cached = file.Sources
	s.modTime = info.ModTime()
	s.haveGood = true
	return cloneSources(s.cached), nil
}

// Enabled returns only the sources with enabled set.
func (s *SourceStore) Enabled(ctx context.Context) ([]domain.Source, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]domain.Source, 0, len(all))
	for _, src := range all {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled, nil
}

// Get returns one source by ID.
func (s *SourceStore) Get(ctx context.Context, id string) (*domain.Source, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", id, domain.ErrNotFound)
}

// Watch invalidates the cache when the sources file changes on disk, so
// the next Load re-reads it immediately instead of waiting for the
// modification-time check.
func (s *SourceStore) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == s.path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.mu.Lock()
					s.modTime = time.Time{}
					s.mu.Unlock()
					logger.Debug("sources file changed on disk")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the filesystem watcher, if running.
func (s *SourceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// fallback returns the last good configuration when one exists,
// logging the reload failure; otherwise the failure surfaces.
func (s *SourceStore) fallback(err error) ([]domain.Source, error) {
	if s.haveGood {
		logger.Warn("sources reload failed, keeping previous config: %v", err)
		return cloneSources(s.cached), nil
	}
	return nil, err
}

func cloneSources(in []domain.Source) []domain.Source {
	out := make([]domain.Source, len(in))
	copy(out, in)
	return out
}
