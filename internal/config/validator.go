package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/khamel/linkgate/internal/kv"
)

// RegisterCustomValidators registers linkgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: validates time.ParseDuration strings ("30s", "720h").
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateStoreBackend(); err != nil {
		return err
	}
	if err := c.validateOAuth(); err != nil {
		return err
	}
	if err := c.validateTenantNames(); err != nil {
		return err
	}

	return nil
}

// validateTenantNames rejects tenant names that alias a reserved store
// namespace ("session", "email", "status", "views").
func (c *Config) validateTenantNames() error {
	fields := []struct {
		name  string
		value string
	}{
		{"auth.admin_tenant", c.Auth.AdminTenant},
		{"server.default_tenant", c.Server.DefaultTenant},
		{"oauth.tenant", c.OAuth.Tenant},
	}
	for _, f := range fields {
		if f.value != "" && kv.IsReservedTenant(f.value) {
			return fmt.Errorf("%s must not be a reserved namespace name (%q)", f.name, f.value)
		}
	}
	return nil
}

// validateStoreBackend ensures the selected backend has its settings.
func (c *Config) validateStoreBackend() error {
	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required when store.backend is redis")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required when store.backend is sqlite")
		}
	}
	return nil
}

// validateOAuth ensures the provider settings are complete when login is
// configured, and that single-tenant mode names its tenant.
func (c *Config) validateOAuth() error {
	if c.OAuth.ClientID == "" {
		// Login disabled; API-key auth may still be in use.
		return nil
	}
	required := map[string]string{
		"oauth.client_secret": c.OAuth.ClientSecret,
		"oauth.auth_url":      c.OAuth.AuthURL,
		"oauth.token_url":     c.OAuth.TokenURL,
		"oauth.profile_url":   c.OAuth.ProfileURL,
		"oauth.redirect_url":  c.OAuth.RedirectURL,
	}
	for field, val := range required {
		if val == "" {
			return fmt.Errorf("%s is required when oauth.client_id is set", field)
		}
	}
	if c.OAuth.AllowedEmail != "" && c.OAuth.Tenant == "" {
		return errors.New("oauth.tenant is required when oauth.allowed_email is set")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "fqdn":
		return fmt.Sprintf("%s must be a valid domain name", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"30s\", \"720h\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
