package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/thistle/pkg/metrics"
	"github.com/Ramsey-B/thistle/pkg/routes"
	"github.com/Ramsey-B/thistle/pkg/routes/health"
	"github.com/Ramsey-B/thistle/pkg/routes/merge"
	"github.com/Ramsey-B/thistle/pkg/routes/mergemap"
	"github.com/Ramsey-B/thistle/pkg/routes/review"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the review, merge and merge-map HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	defer ctx.syncLogger()

	shutdownTracing, err := tracing.Setup(signalCtx, cfg.AppName, version, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		_ = shutdownTracing(stopCtx)
	}()

	a, err := newApp(cfg, logger, appOptions{publish: true})
	if err != nil {
		return err
	}
	if err := a.start(signalCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		a.stop(stopCtx)
	}()

	checker := health.NewChecker(version)
	checker.AddCheck("postgres", health.PingFunc(a.db.PingContext), true)
	if a.redis != nil {
		checker.AddCheck("redis", a.redis, false)
	}
	if a.graph != nil {
		checker.AddCheck("neo4j", health.PingFunc(a.graph.VerifyConnectivity), false)
	}

	var lineage merge.Lineage
	if a.lineage != nil {
		lineage = a.lineage
	}

	server := routes.NewServer(routes.ServerConfig{
		ServiceName:  cfg.AppName,
		AllowOrigins: cfg.AllowOrigins,
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}, logger, routes.Handlers{
		Health:   checker,
		Review:   review.NewHandler(logger, a.reviews, a.emitter),
		Merge:    merge.NewHandler(logger, a.edges, a.executor, a.engine, lineage),
		MergeMap: mergemap.NewHandler(a.canon),
	})

	g, gctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Merges applied by the batch runner land in the store; the snapshot
	// catches up on a timer.
	g.Go(func() error {
		ticker := a.clock.NewTicker(cfg.MergeMapRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.Chan():
				if err := a.canon.Refresh(gctx); err != nil {
					logger.WithContext(gctx).WithError(err).Warn("Failed to refresh merge map")
					continue
				}
				metrics.ResolverEdges.Set(float64(a.canon.Len()))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		checker.SetReady(false)
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		logger.Info("Shutting down HTTP server")
		return server.Shutdown(stopCtx)
	})

	checker.SetReady(true)
	return g.Wait()
}
