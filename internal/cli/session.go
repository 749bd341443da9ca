package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/spf13/cobra"
)

// withSession starts a storefront session for a single command and runs fn against it.
// The cart is synced before fn runs and queued mutations are flushed before the session is closed.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, deps *app.Dependencies) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg.Telemetry.Metrics.Enabled = false
	logger := opts.logger(cmd.ErrOrStderr(), cfg)
	ctx := cmd.Context()

	deps, err := app.SetupDependencies(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout)
		defer cancel()
		if cErr := deps.Close(closeCtx); cErr != nil {
			logger.WarnContext(ctx, "Session closed with errors", "error", cErr)
		}
	}()

	if err := deps.Session.Start(ctx); err != nil {
		logger.WarnContext(ctx, "Continuing without a restored identity", "error", err)
	}
	if err := syncCart(ctx, deps, cfg.Cart.SyncTimeout); err != nil {
		return err
	}
	if err := fn(ctx, deps); err != nil {
		return err
	}
	return syncCart(ctx, deps, cfg.Cart.SyncTimeout)
}

func syncCart(ctx context.Context, deps *app.Dependencies, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := deps.Session.Cart().Wait(waitCtx); err != nil {
		return WrapExitError(ExitFailure, "cart sync did not finish", fmt.Errorf("wait: %w", err))
	}
	return nil
}
