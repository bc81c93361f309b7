package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/internal/logger"
	"github.com/bitflood/bitflood/internal/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const debouncePeriod = 2 * time.Second

// Adder is the slice of the session engine the watcher drives.
type Adder interface {
	AddFromFile(path, saveDir string) (string, error)
	AddMagnet(uri, saveDir string) (string, error)
}

// Watcher imports .torrent and .magnet files dropped into the watch
// directory. Imported files move to processed/, rejects to failed/.
type Watcher struct {
	dir    string
	adder  Adder
	logger zerolog.Logger

	mu     sync.Mutex
	events map[string]time.Time
}

func New(dir string, adder Adder) *Watcher {
	return &Watcher{
		dir:    dir,
		adder:  adder,
		logger: logger.New("watcher"),
		events: make(map[string]time.Time),
	}
}

// Start watches the directory until ctx is cancelled. Files already
// present at startup are imported on the first sweep.
func (w *Watcher) Start(ctx context.Context) error {
	for _, sub := range []string{"processed", "failed"} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0755); err != nil {
			return err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	w.scanExisting()

	w.logger.Info().Str("dir", w.dir).Msg("Watching for torrent files")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Msg("Watcher stopped")
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !importable(event.Name) {
				continue
			}
			w.mu.Lock()
			w.events[event.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			for _, path := range w.sweep(time.Now()) {
				w.importFile(path)
			}
		}
	}
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to scan watch directory")
		return
	}
	now := time.Now().Add(-debouncePeriod)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if importable(path) {
			w.events[path] = now
		}
	}
}

// sweep returns files whose last event is older than the debounce
// period, removing them from the pending set. Writes still in flight
// keep refreshing their timestamp and stay pending.
func (w *Watcher) sweep(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var due []string
	for path, last := range w.events {
		if now.Sub(last) >= debouncePeriod {
			due = append(due, path)
			delete(w.events, path)
		}
	}
	return due
}

func (w *Watcher) importFile(path string) {
	job := uuid.NewString()[:8]
	log := w.logger.With().Str("job", job).Str("file", filepath.Base(path)).Logger()
	log.Info().Msg("Importing torrent file")

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".torrent":
		// Add from a spooled copy: the watched file moves to
		// processed/ below, and the engine persists the path it was
		// given for session restore.
		var spooled string
		spooled, err = w.spool(path, job)
		if err == nil {
			_, err = w.adder.AddFromFile(spooled, "")
		}
	case ".magnet":
		var uri string
		uri, err = utils.FirstLine(path)
		if err == nil {
			_, err = w.adder.AddMagnet(uri, "")
		}
	}

	dest := "processed"
	if err != nil {
		dest = "failed"
		log.Error().Err(err).Msg("Import failed")
	} else {
		log.Info().Msg("Import complete")
	}

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		log.Error().Err(err).Msg("Failed to move imported file")
	}
}

func (w *Watcher) spool(path, job string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(config.Get().SpoolDir(), job+"-"+filepath.Base(path))
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", err
	}
	return dst, nil
}

func importable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".torrent", ".magnet":
		return true
	}
	return false
}
