package library

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/models"
	"github.com/desertthunder/offbeat/internal/notify"
	"github.com/desertthunder/offbeat/internal/shared"
	"github.com/fsnotify/fsnotify"
)

const settleDelay = 500 * time.Millisecond

// Watcher imports mp3 files that appear in a directory.
//
// Writes to a file are debounced until it has been quiet for a short delay, so files still being
// copied are imported once they are complete.
type Watcher struct {
	lib      *Library
	dir      string
	watcher  *fsnotify.Watcher
	notifier notify.Notifier
	logger   *log.Logger
	delay    time.Duration

	mu       sync.Mutex
	pending  map[string]bool
	imported func(models.Track)

	quit chan struct{}
	done chan struct{}
}

// NewWatcher creates a watcher over dir. imported is called for every successful import and may be nil.
func NewWatcher(lib *Library, dir string, notifier notify.Notifier, imported func(models.Track)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		lib:      lib,
		dir:      dir,
		watcher:  fw,
		notifier: notify.OrDiscard(notifier),
		logger:   shared.WithLogger(lib.logger, "component", "watcher", "dir", dir),
		delay:    settleDelay,
		pending:  make(map[string]bool),
		imported: imported,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Imports run on ctx.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop(ctx)
	w.logger.Info("watching for new music")
	return nil
}

// Stop ends the watch and waits for an import in progress.
func (w *Watcher) Stop() {
	select {
	case <-w.quit:
		return
	default:
	}
	close(w.quit)
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	debounce := time.NewTimer(0)
	<-debounce.C

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsAudioFile(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			w.mu.Lock()
			w.pending[filepath.Clean(event.Name)] = true
			w.mu.Unlock()

			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.delay)

		case <-debounce.C:
			w.flush(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)

		case <-w.quit:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	for _, path := range paths {
		track, err := w.lib.ImportFile(ctx, path)
		if err != nil {
			w.logger.Warn("import failed", "file", path, "error", err)
			w.notifier.Notify("Couldn't import "+filepath.Base(path), notify.Warning)
			continue
		}
		w.notifier.Notify("Imported "+track.Label(), notify.Info)
		if w.imported != nil {
			w.imported(*track)
		}
	}
}
