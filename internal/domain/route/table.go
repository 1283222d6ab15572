package route

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/khamel/linkgate/internal/kv"
)

// Table provides namespaced route CRUD and resolution over a kv.Store.
// Routes live under "<tenant>:<path>" keys; the tenant prefix is the sole
// isolation boundary, so every method takes the tenant explicitly.
type Table struct {
	store kv.Store
}

// NewTable creates a route table backed by the given store.
func NewTable(store kv.Store) *Table {
	return &Table{store: store}
}

// key builds the storage key for a tenant's route.
func key(tenant, path string) string {
	return tenant + ":" + path
}

// List returns the tenant's routes sorted by path for stable output.
// The underlying prefix scan yields no particular order.
func (t *Table) List(ctx context.Context, tenant string) ([]Route, error) {
	prefix := tenant + ":"
	entries, err := t.store.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := make([]Route, 0, len(entries))
	for k, target := range entries {
		routes = append(routes, Route{
			Path:   strings.TrimPrefix(k, prefix),
			Target: target,
		})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes, nil
}

// Put creates or overwrites a route. Paths are lowercased before storage.
// Overwrites are silent: concurrent writers to the same path race under the
// store's last-write-wins semantics.
// Returns ErrMissingField or ErrBadPath on invalid input.
func (t *Table) Put(ctx context.Context, tenant, path, target string) (*Route, error) {
	if path == "" || target == "" {
		return nil, ErrMissingField
	}
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	path = strings.ToLower(path)
	if err := t.store.Put(ctx, key(tenant, path), target); err != nil {
		return nil, fmt.Errorf("failed to store route: %w", err)
	}
	return &Route{Path: path, Target: target}, nil
}

// Delete removes a route. Idempotent: deleting an absent path succeeds.
func (t *Table) Delete(ctx context.Context, tenant, path string) error {
	if err := t.store.Delete(ctx, key(tenant, strings.ToLower(path))); err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return nil
}

// Resolve turns a request path into a redirect target. The leading segment
// names the route; remaining segments are carried through verbatim onto the
// target, with the target's trailing slash collapsed so no duplicate slash
// appears. An exact match with no subpath returns the stored target
// untouched.
//
// Returns a *NotFoundError listing the tenant's routes when the leading
// segment names no route. The caller is expected to handle the empty request
// path (landing view) before calling Resolve.
func (t *Table) Resolve(ctx context.Context, tenant, requestPath string) (string, error) {
	requestPath = strings.TrimPrefix(requestPath, "/")
	name, subpath, _ := strings.Cut(requestPath, "/")
	name = strings.ToLower(name)

	target, err := t.store.Get(ctx, key(tenant, name))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", t.notFound(ctx, tenant, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up route: %w", err)
	}

	if subpath == "" {
		return target, nil
	}
	return strings.TrimSuffix(target, "/") + "/" + subpath, nil
}

// notFound builds a NotFoundError carrying the tenant's available routes.
// Listing failures degrade to an empty list rather than masking the 404.
func (t *Table) notFound(ctx context.Context, tenant, name string) error {
	available := []string{}
	if routes, err := t.List(ctx, tenant); err == nil {
		for _, r := range routes {
			available = append(available, r.Path)
		}
	}
	return &NotFoundError{Route: name, Available: available}
}
