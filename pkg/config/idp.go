package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	AuthProviderHTTP     = "http"
	AuthProviderKeycloak = "keycloak"
)

// AuthConfig selects the authentication backend.
// The http provider uses the storefront API; keycloak talks to the IdP directly.
type AuthConfig struct {
	Provider string         `koanf:"provider"`
	Keycloak KeycloakConfig `koanf:"keycloak"`
	IdP      IdP            `koanf:"idp"`
}

// KeycloakConfig holds the confidential client used for sign-in and user registration.
type KeycloakConfig struct {
	URL      string `koanf:"url"`
	Realm    string `koanf:"realm"`
	ClientID string `koanf:"clientid"`
	Secret   string `koanf:"secret"`
}

// IdP describes how access tokens issued by the IdP are verified.
type IdP struct {
	JwksURL     string        `koanf:"jwksurl"`
	Issuer      string        `koanf:"issuer"`
	ClientID    string        `koanf:"clientid"`
	MinInterval time.Duration `koanf:"mininterval"`
}

func (c *AuthConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Auth ---\n")
	b.WriteString(fmt.Sprintf("  provider: %s\n", c.Provider))
	if c.Provider == AuthProviderKeycloak {
		b.WriteString(fmt.Sprintf("  keycloak.url: %s\n", c.Keycloak.URL))
		b.WriteString(fmt.Sprintf("  keycloak.realm: %s\n", c.Keycloak.Realm))
		b.WriteString(fmt.Sprintf("  keycloak.clientid: %s\n", c.Keycloak.ClientID))
		b.WriteString(fmt.Sprintf("  idp.issuer: %s\n", c.IdP.Issuer))
	}
	return b.String()
}

func (c *AuthConfig) Validate() error {
	switch c.Provider {
	case "":
		c.Provider = AuthProviderHTTP
		return nil
	case AuthProviderHTTP:
		return nil
	case AuthProviderKeycloak:
		if err := c.Keycloak.Validate(); err != nil {
			return err
		}
		return c.IdP.Validate()
	default:
		return fmt.Errorf("unknown auth provider: %q", c.Provider)
	}
}

func (c *KeycloakConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("keycloak URL cannot be empty")
	}
	if c.Realm == "" {
		return fmt.Errorf("keycloak realm cannot be empty")
	}
	if c.ClientID == "" {
		return fmt.Errorf("keycloak client ID cannot be empty")
	}
	if c.Secret == "" {
		return fmt.Errorf("keycloak secret cannot be empty")
	}
	return nil
}

func (c *IdP) Validate() error {
	if c.JwksURL == "" {
		return fmt.Errorf("IdP JWKS URL cannot be empty")
	}
	if c.Issuer == "" {
		return fmt.Errorf("IdP issuer cannot be empty")
	}
	if c.ClientID == "" {
		return fmt.Errorf("IdP client ID cannot be empty")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("IdP minimum interval must be greater than zero")
	}
	return nil
}
