package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront HTTP API",
		Long: `Serve the cart, account and checkout API used by the web UI.

Stops gracefully on SIGINT or SIGTERM, flushing queued cart changes
to the storefront API within shutdown.timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.HTTPServer.Port == 0 {
		return NewExitError(ExitCommandError, "server.port is not configured")
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)
	logger.Debug("Configuration loaded", slog.String("config", cfg.String()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Telemetry.TracingEnabled() {
		tracerProvider, err := telemetry.NewTracerProvider(ctx, config.ServiceName, cfg.Telemetry)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create tracer provider", err)
		}
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down tracer provider")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown tracer provider: %w", err)
			}
			return nil
		})
	}

	deps, err := app.SetupDependencies(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up dependencies", err)
	}
	if err := deps.Session.Start(ctx); err != nil {
		logger.Warn("Starting anonymous", slog.String("error", err.Error()))
	}
	httpServer := app.SetupHttpServer(deps, cfg)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// stop taking requests first, then flush the cart and release connections
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := deps.Close(shutdownCtx); err != nil {
			logger.Error("Failed to close dependencies", slog.String("error", err.Error()))
		}
		return shutdownErr
	})

	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr:              cfg.PProf.Addr,
			ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
