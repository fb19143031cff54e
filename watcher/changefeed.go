package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ngisweden/yggdrasil/modules"
	"github.com/ngisweden/yggdrasil/projectdb"
)

// ChangeSource is the slice of the projects store the feed watcher
// consumes.
type ChangeSource interface {
	Changes(ctx context.Context) (<-chan projectdb.Change, error)
}

// ModuleResolver resolves a project document to a realm module id.
type ModuleResolver interface {
	Resolve(doc *projectdb.ProjectDocument) (string, bool)
}

var _ ModuleResolver = (*modules.Resolver)(nil)

// ChangeFeedWatcher consumes the projects-DB changes feed and emits a
// ProjectChange event per document that resolves to a realm module.
// Documents with no module are not of interest to this process and are
// suppressed.
type ChangeFeedWatcher struct {
	source       ChangeSource
	resolver     ModuleResolver
	pollInterval time.Duration
	logger       *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewChangeFeedWatcher creates the watcher.
func NewChangeFeedWatcher(source ChangeSource, resolver ModuleResolver, pollInterval time.Duration, logger *slog.Logger) *ChangeFeedWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeedWatcher{
		source:       source,
		resolver:     resolver,
		pollInterval: pollInterval,
		logger:       logger,
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Name identifies the watcher in logs.
func (w *ChangeFeedWatcher) Name() string {
	return "change-feed"
}

// Start drains the changes feed repeatedly, sleeping pollInterval between
// full drains. Errors inside one iteration are logged and swallowed.
func (w *ChangeFeedWatcher) Start(ctx context.Context, emit EmitFunc) error {
	defer close(w.done)
	w.logger.Info("change-feed watcher started", "poll_interval", w.pollInterval)

	for {
		w.drain(ctx, emit)

		select {
		case <-ctx.Done():
			return nil
		case <-w.stopped:
			return nil
		case <-time.After(w.pollInterval):
		}
	}
}

// drain consumes one pass of the changes stream until it ends.
func (w *ChangeFeedWatcher) drain(ctx context.Context, emit EmitFunc) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopped:
			cancel()
		case <-dctx.Done():
		}
	}()

	stream, err := w.source.Changes(dctx)
	if err != nil {
		w.logger.Error("opening changes feed failed", "error", err)
		return
	}
	for change := range stream {
		w.handleChange(change, emit)
	}
}

// handleChange resolves one change to a realm module and emits it.
func (w *ChangeFeedWatcher) handleChange(change projectdb.Change, emit EmitFunc) {
	doc := change.Doc
	if doc == nil {
		return
	}
	module, ok := w.resolver.Resolve(doc)
	if !ok {
		w.logger.Debug("suppressing change with no realm module",
			"project", doc.ProjectID, "cursor", change.Cursor)
		return
	}
	w.logger.Info("project change observed",
		"project", doc.ProjectID, "module", module, "cursor", change.Cursor)
	emit(NewEvent(KindProjectChange, ProjectChangePayload{
		Document:       doc,
		ModuleLocation: module,
	}, w.Name()))
}

// Stop signals the watcher and returns after the run loop has exited.
func (w *ChangeFeedWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})
	<-w.done
}
