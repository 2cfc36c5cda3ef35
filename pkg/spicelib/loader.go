package spicelib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/graphicspice/gspice/pkg/circuit"
)

// LibraryExtensions are the file extensions read from model directories.
var LibraryExtensions = []string{".lib", ".mod", ".model", ".cir", ".sp"}

// Loader reads model libraries from files and directories and can watch
// them for changes.
type Loader struct {
	logger      zerolog.Logger
	cache       map[string][]*circuit.BJTModel
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	reloadDelay time.Duration
}

// NewLoader creates a new model library loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:      logger.With().Str("component", "model-loader").Logger(),
		cache:       make(map[string][]*circuit.BJTModel),
		reloadDelay: 500 * time.Millisecond,
	}
}

// LoadFromPaths loads models from a list of file or directory paths.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]*circuit.BJTModel, error) {
	var all []*circuit.BJTModel

	for _, path := range paths {
		models, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, models...)
	}

	l.logger.Info().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Models loaded from paths")

	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]*circuit.BJTModel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}
	return l.loadFromFile(ctx, path)
}

// loadFromDirectory loads every library file below dirPath.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]*circuit.BJTModel, error) {
	var models []*circuit.BJTModel

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isLibraryFile(path) {
			return nil
		}

		found, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load model library")
			return nil
		}
		models = append(models, found...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return models, nil
}

func (l *Loader) loadFromFile(_ context.Context, path string) ([]*circuit.BJTModel, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	models, err := ParseLibrary(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = models
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", path).
		Int("models", len(models)).
		Msg("Model library loaded from file")

	return models, nil
}

// Watch watches paths and calls reloadFn with all models whenever a library
// file is written or created. Reloads are debounced. Watching stops when ctx
// is done.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]*circuit.BJTModel) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
			continue
		}
		// Editors replace files on save; watch the parent directory.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	go l.processEvents(ctx, watcher, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching model libraries")

	return nil
}

func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Loader) processEvents(
	ctx context.Context,
	watcher *fsnotify.Watcher,
	paths []string,
	reloadFn func([]*circuit.BJTModel) error,
) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isLibraryFile(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Model library changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(l.reloadDelay, func() {
				if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload model libraries")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]*circuit.BJTModel) error) error {
	l.logger.Info().Msg("Reloading model libraries")

	models, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload models: %w", err)
	}
	if err := reloadFn(models); err != nil {
		return fmt.Errorf("failed to apply reloaded models: %w", err)
	}

	l.logger.Info().Int("count", len(models)).Msg("Model libraries reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ClearCache drops all parsed libraries.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string][]*circuit.BJTModel)
}

func isLibraryFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range LibraryExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
