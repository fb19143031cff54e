package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/realm"
	"github.com/ngisweden/yggdrasil/watcher"
)

// Handler is a per-event-kind strategy. HandleTask does the real work;
// Call schedules it fire-and-forget; RunNow blocks until it completes.
type Handler interface {
	HandleTask(ctx context.Context, payload any) error
	Call(ctx context.Context, payload any)
	RunNow(ctx context.Context, payload any)
}

// taskRunner provides the Call/RunNow scheduling shared by handlers.
type taskRunner struct {
	name   string
	logger *slog.Logger
	wg     sync.WaitGroup
	task   func(ctx context.Context, payload any) error
}

// Call schedules the task fire-and-forget. Errors are logged, never
// propagated.
func (t *taskRunner) Call(ctx context.Context, payload any) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.task(ctx, payload); err != nil {
			t.logger.Error("handler task failed", "handler", t.name, "error", err)
		}
	}()
}

// RunNow executes the task to completion, logging any error.
func (t *taskRunner) RunNow(ctx context.Context, payload any) {
	if err := t.task(ctx, payload); err != nil {
		t.logger.Error("handler task failed", "handler", t.name, "error", err)
	}
}

// wait blocks until all scheduled tasks have finished.
func (t *taskRunner) wait() {
	t.wg.Wait()
}

// ProjectChangeHandler runs the project lifecycle for each observed
// project change. Passes are serialised per project id; across projects
// they run independently.
type ProjectChangeHandler struct {
	taskRunner
	deps   realm.Deps
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectChangeHandler creates the built-in ProjectChange handler.
func NewProjectChangeHandler(deps realm.Deps, logger *slog.Logger) *ProjectChangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &ProjectChangeHandler{
		deps:   deps,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
	h.taskRunner = taskRunner{name: "project-change", logger: logger, task: h.HandleTask}
	return h
}

// projectLock returns the mutex serialising lifecycle passes for one
// project id.
func (h *ProjectChangeHandler) projectLock(projectID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[projectID] = l
	}
	return l
}

// HandleTask validates the payload, constructs the realm, and runs one
// lifecycle pass. All failures are logged with the project id; none
// propagate beyond the returned error.
func (h *ProjectChangeHandler) HandleTask(ctx context.Context, payload any) error {
	p, ok := payload.(watcher.ProjectChangePayload)
	if !ok {
		return fmt.Errorf("project-change: unexpected payload type %T", payload)
	}
	if p.Document == nil {
		return fmt.Errorf("project-change: payload has no document")
	}
	if p.ModuleLocation == "" {
		return fmt.Errorf("project-change: payload has no module location")
	}
	projectID := p.Document.ProjectID

	r, err := realm.New(p.ModuleLocation, p.Document, h.deps)
	if err != nil {
		h.logger.Error("realm construction failed",
			"project", projectID, "module", p.ModuleLocation, "error", err)
		return err
	}
	if !r.Proceed() {
		h.logger.Info("realm declined to proceed", "project", projectID, "module", p.ModuleLocation)
		return nil
	}

	lock := h.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	activePasses.Inc()
	defer activePasses.Dec()

	if err := realm.LaunchTemplate(ctx, r); err != nil {
		lifecyclePasses.WithLabelValues("error").Inc()
		h.logger.Error("lifecycle pass failed", "project", projectID, "error", err)
		return err
	}
	lifecyclePasses.WithLabelValues("ok").Inc()
	return nil
}

// DeliveryReadyHandler records delivery batches on the Yggdrasil
// document and flags the delivered samples.
type DeliveryReadyHandler struct {
	taskRunner
	store  *docstore.Store
	logger *slog.Logger
}

// NewDeliveryReadyHandler creates the built-in DeliveryReady handler.
func NewDeliveryReadyHandler(store *docstore.Store, logger *slog.Logger) *DeliveryReadyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &DeliveryReadyHandler{store: store, logger: logger}
	h.taskRunner = taskRunner{name: "delivery-ready", logger: logger, task: h.HandleTask}
	return h
}

// HandleTask appends the delivery result and marks samples delivered.
func (h *DeliveryReadyHandler) HandleTask(ctx context.Context, payload any) error {
	p, ok := payload.(watcher.DeliveryReadyPayload)
	if !ok {
		return fmt.Errorf("delivery-ready: unexpected payload type %T", payload)
	}
	if p.ProjectID == "" {
		return fmt.Errorf("delivery-ready: payload has no project id")
	}
	if err := h.store.AddDeliveryResult(ctx, p.ProjectID, p.Entry); err != nil {
		return err
	}
	if len(p.SampleIDs) > 0 {
		if err := h.store.MarkSamplesDelivered(ctx, p.ProjectID, p.SampleIDs); err != nil {
			return err
		}
	}
	h.logger.Info("recorded delivery", "project", p.ProjectID, "samples", len(p.SampleIDs))
	return nil
}

// FlowcellReadyHandler audits instrument completions. Realm-specific
// flowcell processing (demultiplexing, transfer) lives in the realms;
// the core only records the observation.
type FlowcellReadyHandler struct {
	taskRunner
	logger *slog.Logger
}

// NewFlowcellReadyHandler creates the built-in FlowcellReady handler.
func NewFlowcellReadyHandler(logger *slog.Logger) *FlowcellReadyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &FlowcellReadyHandler{logger: logger}
	h.taskRunner = taskRunner{name: "flowcell-ready", logger: logger, task: h.HandleTask}
	return h
}

// HandleTask logs the completed run folder.
func (h *FlowcellReadyHandler) HandleTask(ctx context.Context, payload any) error {
	p, ok := payload.(watcher.FlowcellReadyPayload)
	if !ok {
		return fmt.Errorf("flowcell-ready: unexpected payload type %T", payload)
	}
	h.logger.Info("flowcell ready for processing",
		"instrument", p.Instrument, "subfolder", p.Subfolder)
	return nil
}
