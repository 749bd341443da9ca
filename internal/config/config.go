// Package config is the configuration of the storefront process.
package config

import (
	"strings"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

// ServiceName prefixes environment variables: STOREFRONT_REMOTE_BASEURL, STOREFRONT_LOG_LEVEL, ...
const ServiceName = "storefront"

var _ configloader.Validator = (*Config)(nil)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Remote     config.RemoteConfig     `koanf:"remote"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Cart       config.CartConfig       `koanf:"cart"`
	Session    config.SessionConfig    `koanf:"session"`
	Auth       config.AuthConfig       `koanf:"auth"`
	Nats       config.NATSConfig       `koanf:"nats"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
}

// Load reads the storefront configuration.
func Load(opts ...configloader.Option) (*Config, error) {
	return configloader.Load[*Config](ServiceName, opts...)
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Remote.String())
	b.WriteString(c.Resilience.String())
	b.WriteString(c.Cart.String())
	b.WriteString(c.Session.String())
	b.WriteString(c.Auth.String())
	b.WriteString(c.Nats.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	return b.String()
}

// Validate checks every section. HTTP listener settings are only checked when
// a port is set, since one-shot CLI commands never listen.
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.Remote,
		&c.Resilience,
		&c.Cart,
		&c.Session,
		&c.Auth,
		&c.Nats,
		&c.Telemetry,
		&c.Log,
		&c.PProf,
		&c.Shutdown,
	}
	if c.HTTPServer.Port != 0 {
		validators = append(validators, &c.HTTPServer)
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
