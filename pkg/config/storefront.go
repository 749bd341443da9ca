package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// RemoteConfig points at the storefront API that owns carts, users and orders.
type RemoteConfig struct {
	BaseURL string        `koanf:"baseurl"`
	Timeout time.Duration `koanf:"timeout"`
}

// CartConfig tunes the cart engine.
type CartConfig struct {
	SyncTimeout time.Duration `koanf:"synctimeout"`
}

// SessionConfig locates the local database that keeps the signed-in user across restarts.
// An empty path disables persistence.
type SessionConfig struct {
	Path string `koanf:"path"`
}

const (
	defaultRemoteTimeout   = 10 * time.Second
	defaultCartSyncTimeout = 10 * time.Second
)

func (c *RemoteConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Remote ---\n")
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.BaseURL))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *RemoteConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("remote base URL is not configured")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote base URL must be absolute: %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		log.Println("Using default value for remote.timeout")
		c.Timeout = defaultRemoteTimeout
	}
	return nil
}

func (c *CartConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Cart ---\n")
	b.WriteString(fmt.Sprintf("  synctimeout: %s\n", c.SyncTimeout))
	return b.String()
}

func (c *CartConfig) Validate() error {
	if c.SyncTimeout < 0 {
		return fmt.Errorf("cart sync timeout must not be negative")
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = defaultCartSyncTimeout
	}
	return nil
}

func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  path: %s\n", c.Path))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	return nil
}
