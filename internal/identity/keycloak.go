package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Nerzal/gocloak/v13"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/config"
)

var _ Authenticator = (*KeycloakAuthenticator)(nil)

// GoCloak is the part of the gocloak client used for sign-in and registration.
type GoCloak interface {
	Login(ctx context.Context, clientID, clientSecret, realm, username, password string) (*gocloak.JWT, error)
	LoginClient(ctx context.Context, clientID, clientSecret, realm string, scopes ...string) (*gocloak.JWT, error)
	CreateUser(ctx context.Context, token, realm string, user gocloak.User) (string, error)
	SetPassword(ctx context.Context, token, userID, realm, password string, temporary bool) error
	DeleteUser(ctx context.Context, accessToken, realm, userID string) error
}

// KeycloakAuthenticator signs users in with the password grant and registers
// them through the admin API using the client's service account.
type KeycloakAuthenticator struct {
	client   GoCloak
	verifier auth.Verifier
	cfg      config.KeycloakConfig
	logger   *slog.Logger
}

func NewKeycloakAuthenticator(client GoCloak, verifier auth.Verifier, cfg config.KeycloakConfig, logger *slog.Logger) *KeycloakAuthenticator {
	return &KeycloakAuthenticator{
		client:   client,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger.With("component", "keycloak"),
	}
}

// SignIn exchanges the credentials for an access token and reads the user from its claims.
func (k *KeycloakAuthenticator) SignIn(ctx context.Context, email, password string) (User, error) {
	token, err := k.client.Login(ctx, k.cfg.ClientID, k.cfg.Secret, k.cfg.Realm, email, password)
	if err != nil {
		var apiErr *gocloak.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusBadRequest) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	verified, err := k.verifier.Verify(ctx, token.AccessToken)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrIdPInteractionFailed, err)
	}
	claims, err := auth.ClaimsOf(verified)
	if err != nil {
		return User{}, fmt.Errorf("%w: %w", ErrIdPInteractionFailed, err)
	}
	return User{ID: claims.Subject, Name: claims.Username, Email: firstNonEmpty(claims.Email, email)}, nil
}

// SignUp creates an enabled user with the given password. The user is deleted
// again when the password cannot be set.
func (k *KeycloakAuthenticator) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	token, err := k.client.LoginClient(ctx, k.cfg.ClientID, k.cfg.Secret, k.cfg.Realm)
	if err != nil {
		k.logger.ErrorContext(ctx, "Failed to login", "error", err)
		return User{}, fmt.Errorf("%w: failed to login to Keycloak: %v", ErrIdPInteractionFailed, err)
	}

	userID, err := k.client.CreateUser(ctx, token.AccessToken, k.cfg.Realm, gocloak.User{
		Username: gocloak.StringP(req.UserName),
		Email:    gocloak.StringP(req.Email),
		Enabled:  gocloak.BoolP(true),
	})
	if err != nil {
		k.logger.ErrorContext(ctx, "Failed to create user", "error", err)
		var apiErr *gocloak.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusConflict:
				return User{}, ErrUserAlreadyExists
			case http.StatusBadRequest:
				return User{}, ErrInvalidUserData
			}
		}
		return User{}, ErrIdPInteractionFailed
	}

	if err := k.client.SetPassword(ctx, token.AccessToken, userID, k.cfg.Realm, req.Password, false); err != nil {
		k.logger.ErrorContext(ctx, "Failed to set password", "error", err)
		if delErr := k.client.DeleteUser(ctx, token.AccessToken, k.cfg.Realm, userID); delErr != nil {
			k.logger.ErrorContext(ctx, "Failed to roll back user", "user_id", userID, "error", delErr)
		}
		return User{}, fmt.Errorf("%w: failed to set password: %v", ErrIdPInteractionFailed, err)
	}
	return User{ID: userID, Name: req.UserName, Email: req.Email}, nil
}
