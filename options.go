package aegis

import (
	"log/slog"

	"github.com/meridianhq/aegis/catalog"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/plugin"
	"github.com/meridianhq/aegis/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithCatalog sets the permission catalog.
func WithCatalog(c *catalog.Catalog) Option { return func(e *Engine) { e.catalog = c } }

// WithCache sets the decision cache. Overrides the default in-memory
// cache.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// SystemRole declares a built-in role seeded at engine start.
type SystemRole struct {
	Name        string
	DisplayName string
	Description string
	Permissions []permission.Permission
}

// WithSystemRoles declares the system roles the engine seeds on Start.
// Existing system roles with the same name are updated in place so the
// store converges on the declared definitions.
func WithSystemRoles(roles ...SystemRole) Option {
	return func(e *Engine) { e.systemRoles = append(e.systemRoles, roles...) }
}

// WithPlugin registers a plugin with the engine.
func WithPlugin(x plugin.Plugin) Option {
	return func(e *Engine) {
		if e.plugins == nil {
			e.plugins = plugin.NewRegistry(e.logger)
		}
		e.plugins.Register(x)
	}
}
