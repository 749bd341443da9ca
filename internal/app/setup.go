// Package app wires the storefront session, its collaborators and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Nerzal/gocloak/v13"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/events"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/remote"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/session/sqlitestore"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/auth"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	natsclient "github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/go-chi/chi/v5"
)

type Dependencies struct {
	Session  *session.Session
	Checkout *checkout.Service
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger

	metricsPath string
	closers     []func(context.Context) error
}

// SetupDependencies builds one storefront session from cfg. The returned
// dependencies own every connection they opened; release them with Close.
func SetupDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Dependencies, err error) {
	deps := &Dependencies{Logger: logger, metricsPath: cfg.Telemetry.Metrics.Path}
	defer func() {
		if err != nil {
			_ = deps.Close(context.Background())
		}
	}()

	// instruments are created against the global meter provider, install it first
	if cfg.Telemetry.Metrics.Enabled {
		metrics, mErr := telemetry.NewMeterProvider(config.ServiceName)
		if mErr != nil {
			return nil, mErr
		}
		deps.Metrics = metrics
		deps.closers = append(deps.closers, metrics.Shutdown)
	}

	client, err := remote.NewClient(cfg.Remote, cfg.Resilience, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storefront API client: %w", err)
	}

	authenticator, err := newAuthenticator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var providerOpts []identity.ProviderOption
	if cfg.Session.Path != "" {
		store, sErr := sqlitestore.Open(ctx, cfg.Session.Path)
		if sErr != nil {
			return nil, fmt.Errorf("failed to open session store: %w", sErr)
		}
		deps.closers = append(deps.closers, func(context.Context) error { return store.Close() })
		providerOpts = append(providerOpts, identity.WithStore(store))
	}

	engineOpts := []cart.Option{cart.WithSyncTimeout(cfg.Cart.SyncTimeout)}
	if cfg.Nats.Enabled {
		publisher, pErr := deps.newPublisher(ctx, cfg.Nats, logger)
		if pErr != nil {
			return nil, pErr
		}
		engineOpts = append(engineOpts, cart.WithPublisher(publisher))
	}

	engine := cart.NewEngine(client, logger, engineOpts...)
	provider := identity.NewProvider(authenticator, logger, providerOpts...)
	deps.Session = session.New(provider, engine, logger)
	// the session is closed before the connections it publishes and persists through
	deps.closers = append(deps.closers, deps.Session.Close)
	deps.Checkout = checkout.NewService(engine, client, logger)
	return deps, nil
}

func newAuthenticator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.Authenticator, error) {
	if cfg.Auth.Provider != pkgconfig.AuthProviderKeycloak {
		authenticator, err := identity.NewHTTPAuthenticator(cfg.Remote.BaseURL, cfg.Remote.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticator: %w", err)
		}
		return authenticator, nil
	}

	client := gocloak.NewClient(cfg.Auth.Keycloak.URL)
	//fail-fast
	if _, err := client.LoginClient(ctx, cfg.Auth.Keycloak.ClientID, cfg.Auth.Keycloak.Secret, cfg.Auth.Keycloak.Realm); err != nil {
		return nil, fmt.Errorf("keycloak login failed: %w", err)
	}
	verifier, err := auth.NewJWTVerifier(ctx, cfg.Auth.IdP)
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	return identity.NewKeycloakAuthenticator(client, verifier, cfg.Auth.Keycloak, logger), nil
}

func (d *Dependencies) newPublisher(ctx context.Context, cfg pkgconfig.NATSConfig, logger *slog.Logger) (messaging.Publisher, error) {
	nc, err := natsclient.NewClient(cfg.Url, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	d.closers = append(d.closers, func(context.Context) error { return nc.Drain() })

	js, err := natsclient.NewJetStreamContext(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if _, err := natsclient.EnsureStream(ctx, js, cfg.Stream, events.CartSyncedWildcard); err != nil {
		return nil, err
	}
	logger.Info("Publishing cart sync events", slog.String("stream", cfg.Stream))
	return natsclient.NewNatsPublisher(js), nil
}

// Close releases everything SetupDependencies opened, newest first.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// SetupHttpHandler builds the router of the storefront BFF.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Session.Cart(), deps.Session.Identity(), deps.Checkout, deps.Logger)
	handler.RegisterRoutes(mux)
	if deps.Metrics != nil {
		mux.Handle(deps.metricsPath, deps.Metrics.Handler())
	}
}

// SetupHttpServer creates the HTTP server of the storefront BFF.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, SetupHttpHandler(deps))
}
