// Package route contains the multi-tenant route table: per-tenant CRUD over
// path-to-target mappings and request-time resolution into redirect targets.
package route

import (
	"errors"
	"fmt"
	"regexp"
)

// pathPattern is the allowed route path syntax. Matching is case-insensitive;
// paths are stored lowercased.
var pathPattern = regexp.MustCompile(`(?i)^[a-z0-9_-]+$`)

// ErrBadPath is returned when a route path contains disallowed characters.
var ErrBadPath = errors.New("path may only contain letters, digits, '-' and '_'")

// ErrMissingField is returned when path or target is empty.
var ErrMissingField = errors.New("path and target are required")

// Route is a single short-link mapping owned by one tenant.
// Target is stored verbatim; it is only required to be non-empty.
type Route struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// NotFoundError reports a failed resolution. It carries the attempted route
// name and the tenant's available routes for diagnostic display.
type NotFoundError struct {
	Route     string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no route named %q", e.Route)
}

// ValidatePath checks a route path against the syntax rule.
// Returns ErrMissingField for an empty path, ErrBadPath on syntax mismatch.
func ValidatePath(path string) error {
	if path == "" {
		return ErrMissingField
	}
	if !pathPattern.MatchString(path) {
		return ErrBadPath
	}
	return nil
}
