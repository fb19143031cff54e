package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngisweden/yggdrasil/config"
	"github.com/ngisweden/yggdrasil/core"
	"github.com/ngisweden/yggdrasil/docstore"
	"github.com/ngisweden/yggdrasil/hpc"
	"github.com/ngisweden/yggdrasil/modules"
	"github.com/ngisweden/yggdrasil/projectdb"
	"github.com/ngisweden/yggdrasil/session"
)

// engine bundles the wired-up collaborators a command runs against.
type engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	core     *core.Core
	docs     *docstore.Store
	projects *projectdb.Store

	closers []func() error
}

// close releases engine resources in reverse acquisition order.
func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("shutdown cleanup failed", "error", err)
		}
	}
}

// buildEngine loads configuration, sets up logging, connects to the
// document stores and assembles the core.
func buildEngine(ctx context.Context, opts *rootOptions) (*engine, error) {
	store := config.NewStore(opts.configDir, nil)
	cfg, err := config.LoadApp(store)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLog, err := config.SetupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}
	e := &engine{cfg: cfg, logger: logger}
	e.closers = append(e.closers, closeLog)

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("yggdrasil"))
	if err != nil {
		e.close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.NATS.URL, err)
	}
	e.closers = append(e.closers, func() error { nc.Close(); return nil })

	js, err := jetstream.New(nc)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	projKV, err := docstore.OpenBucket(ctx, js, cfg.NATS.ProjectsBucket)
	if err != nil {
		e.close()
		return nil, err
	}
	docKV, err := docstore.OpenBucket(ctx, js, cfg.NATS.DocumentsBucket)
	if err != nil {
		e.close()
		return nil, err
	}

	cursor := projectdb.NewCursorFile(cfg.ChangeFeed.CursorFile)
	e.projects = projectdb.NewStore(projectdb.NewKVFeed(projKV), cursor, logger)
	e.docs = docstore.NewStore(docstore.NewKVBucket(docKV), logger)

	registryPath := cfg.ModuleRegistry
	if !filepath.IsAbs(registryPath) {
		registryPath = filepath.Join(opts.configDir, registryPath)
	}
	resolver, err := modules.LoadRegistry(registryPath, logger)
	if err != nil {
		e.close()
		return nil, err
	}

	var jobs hpc.JobManager
	if session.DevMode() {
		logger.Info("dev mode: using mock job manager")
		jobs = hpc.NewMockManager(logger)
	} else {
		jobs = hpc.NewSlurmManager(cfg.HPC, logger)
	}

	e.core = core.New(cfg, e.projects, e.docs, resolver, jobs, logger)
	e.core.SetupHandlers()
	return e, nil
}
