// Package session binds the identity lifecycle to the cart engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/identity"
)

// Session is one storefront session: an identity provider and the cart that follows it.
type Session struct {
	provider *identity.Provider
	engine   *cart.Engine
	logger   *slog.Logger

	once sync.Once
}

func New(provider *identity.Provider, engine *cart.Engine, logger *slog.Logger) *Session {
	return &Session{
		provider: provider,
		engine:   engine,
		logger:   logger.With("component", "session"),
	}
}

// Start subscribes the cart to identity changes and restores the persisted identity,
// which triggers the initial cart load. A failed restore leaves the session anonymous.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.provider.OnChange(func(ctx context.Context, u *identity.User) {
			s.engine.Reload(identity.EmailOf(u))
		})
		if restoreErr := s.provider.Restore(ctx); restoreErr != nil {
			s.logger.WarnContext(ctx, "Failed to restore identity, continuing anonymously", "error", restoreErr)
			err = fmt.Errorf("restore identity: %w", restoreErr)
		}
	})
	return err
}

// Cart returns the engine of the session.
func (s *Session) Cart() *cart.Engine {
	return s.engine
}

// Identity returns the identity provider of the session.
func (s *Session) Identity() *identity.Provider {
	return s.provider
}

// Close stops the cart engine. Queued remote mutations are delivered until ctx expires.
func (s *Session) Close(ctx context.Context) error {
	err := s.engine.Close(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Pending cart sync abandoned on shutdown", "error", err)
	}
	return err
}
