package extension

import (
	"log/slog"

	"github.com/meridianhq/aegis"
	"github.com/meridianhq/aegis/catalog"
	"github.com/meridianhq/aegis/plugin"
	"github.com/meridianhq/aegis/store"
)

// ExtOption configures the Aegis Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.engOpts = append(e.engOpts, aegis.WithStore(s))
	}
}

// WithCatalog sets the permission catalog the engine validates against.
func WithCatalog(c *catalog.Catalog) ExtOption {
	return func(e *Extension) {
		e.engOpts = append(e.engOpts, aegis.WithCatalog(c))
	}
}

// WithSystemRoles declares system roles to seed on start.
func WithSystemRoles(defs ...aegis.SystemRole) ExtOption {
	return func(e *Extension) {
		e.engOpts = append(e.engOpts, aegis.WithSystemRoles(defs...))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithEngineOptions adds engine-level options.
func WithEngineOptions(opts ...aegis.Option) ExtOption {
	return func(e *Extension) {
		e.engOpts = append(e.engOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.plugins = append(e.plugins, x)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}
