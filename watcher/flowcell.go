package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ngisweden/yggdrasil/config"
)

// FlowcellWatcher observes file-creation events under one instrument
// directory and emits a single FlowcellReady event per run folder once
// all configured marker files have appeared in it. Marker names may be
// glob patterns.
type FlowcellWatcher struct {
	instrument string
	directory  string
	markers    []string
	logger     *slog.Logger

	fsw *fsnotify.Watcher

	mu sync.Mutex
	// seen tracks which markers have appeared per run folder. An entry is
	// removed once its event fires, so re-emission requires all markers
	// to be discovered anew.
	seen map[string]map[string]bool

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewFlowcellWatcher creates a watcher for one configured instrument.
func NewFlowcellWatcher(cfg config.InstrumentConfig, logger *slog.Logger) (*FlowcellWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowcellWatcher{
		instrument: cfg.Name,
		directory:  cfg.Directory,
		markers:    cfg.MarkerFiles,
		logger:     logger,
		fsw:        fsw,
		seen:       make(map[string]map[string]bool),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Name identifies the watcher in logs.
func (w *FlowcellWatcher) Name() string {
	return "flowcell:" + w.instrument
}

// Start watches the instrument directory recursively and emits events
// until the context is cancelled or Stop is called.
func (w *FlowcellWatcher) Start(ctx context.Context, emit EmitFunc) error {
	defer close(w.done)

	if err := w.addWatchesRecursive(w.directory); err != nil {
		return err
	}
	w.logger.Info("flowcell watcher started",
		"instrument", w.instrument, "directory", w.directory, "markers", w.markers)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopped:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event, emit)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("flowcell watcher error", "instrument", w.instrument, "error", err)
		}
	}
}

// Stop signals the watcher and returns after the run loop has exited.
func (w *FlowcellWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
		_ = w.fsw.Close()
	})
	<-w.done
}

// addWatchesRecursive adds watches to the root and all subdirectories.
func (w *FlowcellWatcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleFSEvent processes a single fsnotify event.
func (w *FlowcellWatcher) handleFSEvent(event fsnotify.Event, emit EmitFunc) {
	if !event.Has(fsnotify.Create) {
		return
	}
	path := event.Name

	// New directories get watches so marker files inside them are seen.
	// Files that landed before the watch was installed produce no events,
	// so the directory is rescanned afterwards.
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if err := w.addWatchesRecursive(path); err != nil {
			w.logger.Warn("failed to watch new directory", "path", path, "error", err)
		}
		w.rescan(path, emit)
		return
	}

	w.noteFile(path, emit)
}

// rescan replays the files already present under a directory as if they
// had just been created.
func (w *FlowcellWatcher) rescan(dir string, emit EmitFunc) {
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			w.noteFile(path, emit)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("rescan of new directory failed", "path", dir, "error", err)
	}
}

// noteFile records a created file against its run folder's marker set and
// emits when the set is complete.
func (w *FlowcellWatcher) noteFile(path string, emit EmitFunc) {
	rel, err := filepath.Rel(w.directory, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		// A file directly under the root belongs to no run folder.
		return
	}
	subfolder := parts[0]

	marker, ok := w.matchMarker(filepath.Base(path))
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[subfolder] == nil {
		w.seen[subfolder] = make(map[string]bool)
	}
	w.seen[subfolder][marker] = true
	w.logger.Debug("marker observed",
		"instrument", w.instrument, "subfolder", subfolder,
		"marker", marker, "have", len(w.seen[subfolder]), "want", len(w.markers))

	if len(w.seen[subfolder]) < len(w.markers) {
		return
	}
	delete(w.seen, subfolder)
	w.logger.Info("flowcell ready", "instrument", w.instrument, "subfolder", subfolder)
	emit(NewEvent(KindFlowcellReady, FlowcellReadyPayload{
		Instrument: w.instrument,
		Subfolder:  filepath.Join(w.directory, subfolder),
	}, w.Name()))
}

// matchMarker returns the configured marker pattern a file name satisfies.
func (w *FlowcellWatcher) matchMarker(name string) (string, bool) {
	for _, pattern := range w.markers {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return pattern, true
		}
	}
	return "", false
}
