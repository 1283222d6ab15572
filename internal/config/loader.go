package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, linkgate.yaml/.yml is searched in
// standard locations. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully (env-only configuration).
		viper.SetConfigName("linkgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: LINKGATE_SERVER_ADDR etc.
	viper.SetEnvPrefix("LINKGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for linkgate.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".linkgate"),
		"/etc/linkgate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "linkgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment override.
// Example: LINKGATE_STORE_REDIS_ADDR overrides store.redis.addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.domain")
	_ = viper.BindEnv("server.default_tenant")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tls_cert")
	_ = viper.BindEnv("server.tls_key")

	_ = viper.BindEnv("store.backend")
	_ = viper.BindEnv("store.redis.addr")
	_ = viper.BindEnv("store.redis.username")
	_ = viper.BindEnv("store.redis.password")
	_ = viper.BindEnv("store.redis.db")
	_ = viper.BindEnv("store.sqlite.path")

	_ = viper.BindEnv("auth.api_secret_hash")
	_ = viper.BindEnv("auth.admin_tenant")
	_ = viper.BindEnv("auth.session_ttl")

	_ = viper.BindEnv("oauth.client_id")
	_ = viper.BindEnv("oauth.client_secret")
	_ = viper.BindEnv("oauth.auth_url")
	_ = viper.BindEnv("oauth.token_url")
	_ = viper.BindEnv("oauth.profile_url")
	_ = viper.BindEnv("oauth.redirect_url")
	_ = viper.BindEnv("oauth.allowed_email")
	_ = viper.BindEnv("oauth.tenant")
	_ = viper.BindEnv("oauth.http_timeout")

	_ = viper.BindEnv("status.enabled")
	_ = viper.BindEnv("status.interval")
	_ = viper.BindEnv("status.probe_timeout")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides and
// defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string in env-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
