// Package auth verifies access tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

type Verifier interface {
	Verify(ctx context.Context, tokenString string) (jwt.Token, error)
}

// ErrMissingSubject is returned by ClaimsOf for a token without a subject.
var ErrMissingSubject = errors.New("token has no subject")

// Claims is the identity carried by a verified access token.
type Claims struct {
	Subject  string
	Email    string
	Username string
}

// ClaimsOf reads the sub, email and preferred_username claims of token.
func ClaimsOf(token jwt.Token) (Claims, error) {
	var c Claims
	sub, ok := token.Subject()
	if !ok || sub == "" {
		return c, ErrMissingSubject
	}
	c.Subject = sub
	// optional claims, absent ones stay empty
	_ = token.Get("email", &c.Email)
	_ = token.Get("preferred_username", &c.Username)
	return c, nil
}

// JWTVerifier verifies tokens against a JWKS endpoint.
// The key set is cached for minInterval; a failed refresh keeps serving the cached set.
type JWTVerifier struct {
	mu sync.RWMutex

	jwksURL  string
	issuer   string
	clientID string

	cachedSet     jwk.Set
	lastRefreshed time.Time
	minInterval   time.Duration
}

// NewJWTVerifier creates a verifier and fetches the key set once, failing fast on a bad configuration.
func NewJWTVerifier(ctx context.Context, cfg config.IdP) (*JWTVerifier, error) {
	v := &JWTVerifier{
		jwksURL:     cfg.JwksURL,
		issuer:      cfg.Issuer,
		clientID:    cfg.ClientID,
		minInterval: cfg.MinInterval,
	}
	if _, err := v.getKeySet(ctx); err != nil {
		return nil, fmt.Errorf("initial JWKS fetch failed: %w", err)
	}
	return v, nil
}

func (v *JWTVerifier) getKeySet(ctx context.Context) (jwk.Set, error) {
	v.mu.RLock()
	if v.cachedSet != nil && time.Since(v.lastRefreshed) < v.minInterval {
		set := v.cachedSet
		v.mu.RUnlock()
		return set, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	// another goroutine may have refreshed while we waited for the lock
	if v.cachedSet != nil && time.Since(v.lastRefreshed) < v.minInterval {
		return v.cachedSet, nil
	}
	set, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		if v.cachedSet != nil {
			return v.cachedSet, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", v.jwksURL, err)
	}
	v.cachedSet = set
	v.lastRefreshed = time.Now()
	return v.cachedSet, nil
}

// Verify checks signature, expiry, issuer and the authorized party (azp) of tokenString.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	set, err := v.getKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get keyset for verification: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithClaimValue("azp", v.clientID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return token, nil
}
