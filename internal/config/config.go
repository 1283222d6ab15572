// Package config provides configuration types and loading for linkgate.
package config

import (
	"time"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener and service identity.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store selects and configures the key-value backend.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Auth configures the shared API secret and the admin tenant.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// OAuth configures the identity provider and tenant binding.
	OAuth OAuthConfig `yaml:"oauth" mapstructure:"oauth"`

	// Status configures the background target health poller.
	Status StatusConfig `yaml:"status" mapstructure:"status"`

	// DevMode enables development features (debug logging, cookie Secure
	// not required by the browser on localhost anyway).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server listener and service identity.
type ServerConfig struct {
	// Addr is the listen address. Default: "127.0.0.1:8080".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// Domain is the registrable service domain ("example.com"). Session
	// cookies are scoped to it; tenant subdomains hang off it. Empty is
	// allowed for local development.
	Domain string `yaml:"domain" mapstructure:"domain" validate:"omitempty,fqdn"`
	// DefaultTenant is the namespace served on the bare domain.
	// Default: the admin tenant.
	DefaultTenant string `yaml:"default_tenant" mapstructure:"default_tenant"`
	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// TLSCert/TLSKey enable TLS when both are set.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	// Backend is one of memory, redis, sqlite. Default: memory.
	Backend string       `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory redis sqlite"`
	Redis   RedisConfig  `yaml:"redis" mapstructure:"redis"`
	SQLite  SQLiteConfig `yaml:"sqlite" mapstructure:"sqlite"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. Default: "./linkgate.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig configures API-key authentication.
type AuthConfig struct {
	// APISecretHash is the hashed shared secret ("sha256:<hex>" or
	// Argon2id PHC format; see "linkgate hash-key"). Empty disables
	// API-key auth.
	APISecretHash string `yaml:"api_secret_hash" mapstructure:"api_secret_hash"`
	// AdminTenant is the fixed namespace API-key callers act as.
	// Default: "admin".
	AdminTenant string `yaml:"admin_tenant" mapstructure:"admin_tenant"`
	// SessionTTL is the session lifetime as a duration string.
	// Default: "720h" (30 days).
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl" validate:"omitempty,duration"`
}

// OAuthConfig configures the identity provider and tenant binding.
// When AllowedEmail is set the gateway runs in single-tenant mode binding
// that address to Tenant; otherwise emails are looked up in the store's
// "email:" directory.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	AuthURL      string `yaml:"auth_url" mapstructure:"auth_url" validate:"omitempty,url"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url" validate:"omitempty,url"`
	ProfileURL   string `yaml:"profile_url" mapstructure:"profile_url" validate:"omitempty,url"`
	RedirectURL  string `yaml:"redirect_url" mapstructure:"redirect_url" validate:"omitempty,url"`
	AllowedEmail string `yaml:"allowed_email" mapstructure:"allowed_email" validate:"omitempty,email"`
	Tenant       string `yaml:"tenant" mapstructure:"tenant"`
	// HTTPTimeout bounds provider calls. Default: "10s".
	HTTPTimeout string `yaml:"http_timeout" mapstructure:"http_timeout" validate:"omitempty,duration"`
}

// StatusConfig configures the background target health poller.
type StatusConfig struct {
	// Enabled turns the poller on. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Interval between sweeps. Default: "5m".
	Interval string `yaml:"interval" mapstructure:"interval" validate:"omitempty,duration"`
	// ProbeTimeout per target. Default: "8s".
	ProbeTimeout string `yaml:"probe_timeout" mapstructure:"probe_timeout" validate:"omitempty,duration"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./linkgate.db"
	}
	if c.Auth.AdminTenant == "" {
		c.Auth.AdminTenant = "admin"
	}
	if c.Auth.SessionTTL == "" {
		c.Auth.SessionTTL = "720h"
	}
	if c.Server.DefaultTenant == "" {
		c.Server.DefaultTenant = c.Auth.AdminTenant
	}
	if c.OAuth.HTTPTimeout == "" {
		c.OAuth.HTTPTimeout = "10s"
	}
	if c.Status.Interval == "" {
		c.Status.Interval = "5m"
	}
	if c.Status.ProbeTimeout == "" {
		c.Status.ProbeTimeout = "8s"
	}
}

// SessionTTL returns the parsed session lifetime.
// Validate guarantees the string parses.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Auth.SessionTTL)
	return d
}

// OAuthHTTPTimeout returns the parsed provider call timeout.
func (c *Config) OAuthHTTPTimeout() time.Duration {
	d, _ := time.ParseDuration(c.OAuth.HTTPTimeout)
	return d
}

// StatusInterval returns the parsed poll interval.
func (c *Config) StatusInterval() time.Duration {
	d, _ := time.ParseDuration(c.Status.Interval)
	return d
}

// StatusProbeTimeout returns the parsed per-probe timeout.
func (c *Config) StatusProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Status.ProbeTimeout)
	return d
}
