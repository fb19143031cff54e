package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ngisweden/yggdrasil/session"
)

// newDaemonCmd builds the long-running watcher daemon command.
func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the Yggdrasil daemon",
		Long: `Start the change-feed and instrument watchers and process project
lifecycles until interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.Init(opts.dev, false); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), opts)
		},
	}
}

func runDaemon(ctx context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer eng.close()

	if err := eng.core.SetupWatchers(); err != nil {
		return err
	}

	if addr := eng.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			eng.logger.Info("metrics listener starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				eng.logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	go func() {
		<-ctx.Done()
		eng.logger.Info("shutdown signal received")
		eng.core.Stop()
	}()

	eng.logger.Info("yggdrasil daemon starting", "version", Version, "dev", session.DevMode())
	return eng.core.Start(ctx)
}
