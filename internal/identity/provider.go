package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/abgdnv/storefront/pkg/validation"
	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgSignupFailed       = "Signup failed"
	msgNetwork            = "Network error - check server"
	msgUserExists         = "User already exists"
	msgPasswordMismatch   = "Passwords do not match"
)

// Provider owns the current identity. Listeners run synchronously, in
// registration order, after every change and before the changing call returns.
type Provider struct {
	auth     Authenticator
	store    Store
	validate *validator.Validate
	logger   *slog.Logger

	changeMu  sync.Mutex // serializes changes and their notifications
	mu        sync.RWMutex
	current   *User
	listeners []Listener
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithStore persists the signed-in user.
func WithStore(s Store) ProviderOption {
	return func(p *Provider) {
		p.store = s
	}
}

func NewProvider(auth Authenticator, logger *slog.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		auth:     auth,
		validate: validation.New(),
		logger:   logger.With("component", "identity"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns a copy of the signed-in user, nil when anonymous.
func (p *Provider) Current() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	u := *p.current
	return &u
}

// OnChange registers l for every future identity change.
func (p *Provider) OnChange(l Listener) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()
	p.listeners = append(p.listeners, l)
}

// SignIn checks the credentials and, on success, makes the user current.
func (p *Provider) SignIn(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Result{Error: msgInvalidCredentials}
	}
	user, err := p.auth.SignIn(ctx, email, password)
	if err != nil {
		p.logger.InfoContext(ctx, "Sign-in failed", "email", email, "error", err)
		return Result{Error: failureMessage(err, msgInvalidCredentials)}
	}
	p.set(ctx, &user)
	p.logger.InfoContext(ctx, "Signed in", "user_id", user.ID)
	return Result{Success: true}
}

// SignUp registers the user and signs them in.
func (p *Provider) SignUp(ctx context.Context, req SignUpRequest) Result {
	req.Email = strings.TrimSpace(req.Email)
	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "eqfield" {
					return Result{Error: msgPasswordMismatch}
				}
			}
		}
		return Result{Error: msgSignupFailed}
	}
	user, err := p.auth.SignUp(ctx, req)
	if err != nil {
		p.logger.InfoContext(ctx, "Sign-up failed", "email", req.Email, "error", err)
		return Result{Error: failureMessage(err, msgSignupFailed)}
	}
	p.set(ctx, &user)
	p.logger.InfoContext(ctx, "Signed up", "user_id", user.ID)
	return Result{Success: true}
}

// SignOut forgets the current user. Listeners have run when it returns.
func (p *Provider) SignOut(ctx context.Context) {
	p.set(ctx, nil)
	p.logger.InfoContext(ctx, "Signed out")
}

// Restore loads the persisted user, if any, and notifies listeners with it.
// Listeners are notified even when nobody is stored, so they can settle on anonymous.
func (p *Provider) Restore(ctx context.Context) error {
	var user *User
	if p.store != nil {
		var err error
		if user, err = p.store.Load(ctx); err != nil {
			p.set(ctx, nil)
			return err
		}
	}
	p.changeMu.Lock()
	defer p.changeMu.Unlock()
	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	p.notify(ctx, user)
	return nil
}

func (p *Provider) set(ctx context.Context, user *User) {
	p.changeMu.Lock()
	defer p.changeMu.Unlock()

	p.mu.Lock()
	p.current = user
	p.mu.Unlock()

	if p.store != nil {
		var err error
		if user != nil {
			err = p.store.Save(ctx, *user)
		} else {
			err = p.store.Delete(ctx)
		}
		if err != nil {
			p.logger.WarnContext(ctx, "Failed to persist identity", "error", err)
		}
	}
	p.notify(ctx, user)
}

func (p *Provider) notify(ctx context.Context, user *User) {
	for _, l := range p.listeners {
		var u *User
		if user != nil {
			c := *user
			u = &c
		}
		l(ctx, u)
	}
}

// failureMessage picks the message shown to the user for err.
func failureMessage(err error, fallback string) string {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected) && rejected.Message != "":
		return rejected.Message
	case errors.Is(err, ErrNetwork):
		return msgNetwork
	case errors.Is(err, ErrUserAlreadyExists):
		return msgUserExists
	default:
		return fallback
	}
}
