package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/config"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/pkg/json"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/recordings"
	"github.com/Dharmik505/GDG-Emergency-Calling-System/internal/store"
)

// Indexer records persisted recording files.
type Indexer interface {
	UpsertRecording(ctx context.Context, r *store.Recording) error
}

// Watcher monitors the recordings directory and indexes each recording file
// that is written there, whether by the service or dropped in by hand.
type Watcher struct {
	dir     string
	enabled bool
	index   Indexer
}

func New(cfg config.Config, index Indexer) *Watcher {
	return &Watcher{dir: cfg.RecordingsDir, enabled: cfg.EnableWatcher, index: index}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.enabled {
		log.Println("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && isRecording(evt.Name) {
					if err := w.IndexFile(ctx, evt.Name); err != nil {
						log.Printf("watch: index %s: %v", evt.Name, err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return nil
}

// IndexFile reads one recording file and upserts it into the index.
// Partially written files fail to parse and are picked up on the next write.
func (w *Watcher) IndexFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var s recordings.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return w.index.UpsertRecording(ctx, &store.Recording{
		RecordingID: recordings.IDFromPath(path),
		StartedAt:   s.StartedAt,
		StoppedAt:   s.StoppedAt,
		Duration:    s.Duration,
		Path:        path,
		IndexedAt:   config.Now().UTC(),
	})
}

// Backfill indexes recording files already on disk.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.IndexFile(ctx, e); err != nil {
			log.Printf("watch: backfill %s: %v", e, err)
		}
	}
	return nil
}

func isRecording(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
