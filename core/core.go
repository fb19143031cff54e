// Package core wires watchers, handlers and stores into the process-wide
// orchestrator: events from external change sources are routed to
// per-kind handlers which drive project lifecycles.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ngisweden/yggdrasil/config"
	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/hpc"
	"github.com/ngisweden/yggdrasil/modules"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/realm"
	"github.com/ngisweden/yggdrasil/watcher"
)

// ExternalHandler registers an additional handler under an event kind
// discovered outside the built-ins. Registrations with an unknown kind
// are skipped with an error log.
type ExternalHandler struct {
	EventKind string
	Handler   Handler
}

// Core is the process-wide orchestrator.
type Core struct {
	cfg      *config.Config
	projects *projectdb.Store
	docs     *docstore.Store
	resolver *modules.Resolver
	jobs     hpc.JobManager
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[watcher.Kind]Handler
	watchers []watcher.Watcher
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a core over its collaborators.
func New(cfg *config.Config, projects *projectdb.Store, docs *docstore.Store, resolver *modules.Resolver, jobs hpc.JobManager, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		cfg:      cfg,
		projects: projects,
		docs:     docs,
		resolver: resolver,
		jobs:     jobs,
		logger:   logger,
		handlers: make(map[watcher.Kind]Handler),
	}
}

// realmDeps builds the dependency set handed to realm factories.
func (c *Core) realmDeps() realm.Deps {
	return realm.Deps{
		Store:      c.docs,
		Jobs:       c.jobs,
		ScriptsDir: c.cfg.HPC.ScriptsDir,
		Logger:     c.logger,
	}
}

// Register installs a handler for an event kind. Re-registration
// overwrites the previous handler.
func (c *Core) Register(kind watcher.Kind, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[kind]; ok {
		c.logger.Debug("overwriting handler registration", "kind", kind)
	}
	c.handlers[kind] = h
}

// SetupHandlers constructs the built-in handlers and registers any
// externally discovered ones.
func (c *Core) SetupHandlers(external ...ExternalHandler) {
	c.Register(watcher.KindProjectChange, NewProjectChangeHandler(c.realmDeps(), c.logger))
	c.Register(watcher.KindFlowcellReady, NewFlowcellReadyHandler(c.logger))
	c.Register(watcher.KindDeliveryReady, NewDeliveryReadyHandler(c.docs, c.logger))

	for _, ext := range external {
		kind, err := watcher.ParseKind(ext.EventKind)
		if err != nil {
			c.logger.Error("skipping external handler", "kind", ext.EventKind, "error", err)
			continue
		}
		c.Register(kind, ext.Handler)
	}
}

// SetupWatchers constructs the watchers from config: one filesystem
// watcher per configured instrument plus the change-feed watcher.
func (c *Core) SetupWatchers() error {
	var watchers []watcher.Watcher
	for _, inst := range c.cfg.Instruments {
		fw, err := watcher.NewFlowcellWatcher(inst, c.logger)
		if err != nil {
			return fmt.Errorf("flowcell watcher %s: %w", inst.Name, err)
		}
		watchers = append(watchers, fw)
	}
	watchers = append(watchers, watcher.NewChangeFeedWatcher(
		c.projects, c.resolver, c.cfg.ChangeFeed.GetPollInterval(), c.logger))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = watchers
	return nil
}

// Handle routes one event to its registered handler. Dispatch is
// synchronous at this level; handlers fan out internally.
func (c *Core) Handle(ctx context.Context, event watcher.Event) {
	c.mu.Lock()
	h, ok := c.handlers[event.Kind]
	c.mu.Unlock()
	if !ok {
		eventsDropped.WithLabelValues(string(event.Kind)).Inc()
		c.logger.Warn("no handler for event", "kind", event.Kind, "event", event.ID)
		return
	}
	eventsDispatched.WithLabelValues(string(event.Kind)).Inc()
	c.logger.Debug("dispatching event", "kind", event.Kind, "event", event.ID, "source", event.Source)
	h.Call(ctx, event.Payload)
}

// Start launches every watcher concurrently and blocks until all of them
// return. Calling Start while running logs and returns.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("core already running")
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	watchers := append([]watcher.Watcher(nil), c.watchers...)
	c.mu.Unlock()

	c.logger.Info("core starting", "watchers", len(watchers))

	emit := func(ev watcher.Event) { c.Handle(runCtx, ev) }
	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w watcher.Watcher) {
			defer wg.Done()
			if err := w.Start(runCtx, emit); err != nil {
				c.logger.Error("watcher exited with error", "watcher", w.Name(), "error", err)
			}
		}(w)
	}
	wg.Wait()

	c.mu.Lock()
	c.running = false
	close(c.done)
	c.mu.Unlock()
	c.logger.Info("core stopped")
	return nil
}

// Stop signals every watcher, waits for them to quiesce, then drains the
// handlers' in-flight tasks. Safe to call when not running.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	watchers := append([]watcher.Watcher(nil), c.watchers...)
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	done := c.done
	c.mu.Unlock()

	cancel()
	for _, w := range watchers {
		w.Stop()
	}
	<-done

	for _, h := range handlers {
		if d, ok := h.(interface{ wait() }); ok {
			d.wait()
		}
	}
}

// RunOnce fetches one project document, resolves its realm module, and
// runs the ProjectChange handler to completion. Fails fast with a log
// when the document or module cannot be resolved.
func (c *Core) RunOnce(ctx context.Context, docID string) error {
	doc, err := c.projects.Fetch(ctx, docID)
	if err != nil {
		c.logger.Error("run-once: fetching document failed", "doc", docID, "error", err)
		return err
	}
	module, ok := c.resolver.Resolve(doc)
	if !ok {
		err := fmt.Errorf("no realm module for document %s", docID)
		c.logger.Error("run-once: module resolution failed", "doc", docID)
		return err
	}

	c.mu.Lock()
	h, registered := c.handlers[watcher.KindProjectChange]
	c.mu.Unlock()
	if !registered {
		return fmt.Errorf("no %s handler registered", watcher.KindProjectChange)
	}

	h.RunNow(ctx, watcher.ProjectChangePayload{
		Document:       doc,
		ModuleLocation: module,
	})
	return nil
}
