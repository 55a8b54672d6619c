package aegis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/meridianhq/aegis/catalog"
	"github.com/meridianhq/aegis/cache"
	"github.com/meridianhq/aegis/permission"
	"github.com/meridianhq/aegis/plugin"
	"github.com/meridianhq/aegis/store"
)

// Engine is the central authorization engine. It resolves principals'
// permissions through their role assignments, serves checks from the
// decision cache, and records every mutation in the audit trail.
type Engine struct {
	store       store.Store
	catalog     *catalog.Catalog
	cache       Cache
	plugins     *plugin.Registry
	logger      *slog.Logger
	config      Config
	systemRoles []SystemRole
	locks       *keyedMutex

	// genMu guards cacheGen, the per-principal invalidation generation.
	// A cache fill records the generation before reading the store and
	// is discarded if an invalidation bumped it meanwhile, so a slow
	// fill can never re-install a permission set that a completed
	// mutation already invalidated.
	genMu    sync.Mutex
	cacheGen map[string]uint64
}

// NewEngine creates a new engine with the given options. A store and a
// catalog are required; the decision cache defaults to an in-memory
// implementation sized by Config.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   slog.Default(),
		config:   DefaultConfig(),
		locks:    newKeyedMutex(),
		cacheGen: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("aegis: store is required")
	}
	if e.catalog == nil {
		return nil, errors.New("aegis: catalog is required")
	}
	if e.config.DisableCache {
		e.cache = nil
	} else if e.cache == nil {
		e.cache = cacheAdapter{cache.NewMemory(
			cache.WithTTL(e.config.CacheTTL),
			cache.WithMaxSize(e.config.CacheMaxEntries),
		)}
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Catalog returns the permission catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start seeds the declared system roles. A declared role that already
// exists is updated in place if its definition drifted; roles are matched
// by name. Seeding is audited with the reserved actor "system".
func (e *Engine) Start(ctx context.Context) error {
	for _, def := range e.systemRoles {
		if err := e.seedSystemRole(ctx, def); err != nil {
			return fmt.Errorf("aegis: seed system role %q: %w", def.Name, err)
		}
	}
	return nil
}

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// Check decides whether the principal may perform action on resource
// given the request context attributes. Denial is reported through the
// Decision, never as an error; a non-nil error means the store failed and
// is always paired with a denying decision.
func (e *Engine) Check(ctx context.Context, principalID, resource, action string, reqCtx map[string]string) (*Decision, error) {
	d := &Decision{Resource: resource, Action: action, EvaluatedAt: time.Now().UTC()}

	if !e.catalog.Known(resource, action) {
		e.emitAfterCheck(ctx, principalID, d)
		return d, nil
	}

	grants, err := e.resolve(ctx, principalID)
	if err != nil {
		e.logger.Error("check failed against store, denying",
			slog.String("principal_id", principalID),
			slog.String("resource", resource),
			slog.String("action", action),
			slog.Any("error", err))
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, g := range grants {
		if permissionMatches(g.Permission, resource, action, reqCtx) {
			d.Allowed = true
			d.DecidingRole = g.Role
			break
		}
	}
	e.emitAfterCheck(ctx, principalID, d)
	return d, nil
}

func (e *Engine) emitAfterCheck(ctx context.Context, principalID string, d *Decision) {
	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, principalID, d)
	}
}

// CheckAny decides whether the principal holds at least one of the
// required permissions. The permission set is resolved once for all
// requirements.
func (e *Engine) CheckAny(ctx context.Context, principalID string, reqs []Requirement, reqCtx map[string]string) (*Decision, error) {
	d := &Decision{EvaluatedAt: time.Now().UTC()}
	if len(reqs) == 0 {
		return d, nil
	}

	grants, err := e.resolve(ctx, principalID)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, req := range reqs {
		if !e.catalog.Known(req.Resource, req.Action) {
			continue
		}
		for _, g := range grants {
			if permissionMatches(g.Permission, req.Resource, req.Action, reqCtx) {
				d.Allowed = true
				d.Resource = req.Resource
				d.Action = req.Action
				d.DecidingRole = g.Role
				return d, nil
			}
		}
	}
	return d, nil
}

// CheckAll decides whether the principal holds every required permission.
// The decision reports the first unsatisfied requirement when denied.
func (e *Engine) CheckAll(ctx context.Context, principalID string, reqs []Requirement, reqCtx map[string]string) (*Decision, error) {
	d := &Decision{EvaluatedAt: time.Now().UTC()}
	if len(reqs) == 0 {
		d.Allowed = true
		return d, nil
	}

	grants, err := e.resolve(ctx, principalID)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, req := range reqs {
		satisfied := false
		if e.catalog.Known(req.Resource, req.Action) {
			for _, g := range grants {
				if permissionMatches(g.Permission, req.Resource, req.Action, reqCtx) {
					satisfied = true
					break
				}
			}
		}
		if !satisfied {
			d.Resource = req.Resource
			d.Action = req.Action
			return d, nil
		}
	}
	d.Allowed = true
	return d, nil
}

// EffectivePermissions returns the principal's resolved permission set:
// the deduplicated union of the permissions of every role the principal
// holds, with each grant attributed to a contributing role. The result is
// sorted by permission key for stable output.
func (e *Engine) EffectivePermissions(ctx context.Context, principalID string) ([]Grant, error) {
	grants, err := e.resolve(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make([]Grant, len(grants))
	for i, g := range grants {
		out[i] = Grant{Role: g.Role, Permission: g.Permission.Clone()}
	}
	return out, nil
}

// Enforce is Check for call sites that want denial as an error.
func (e *Engine) Enforce(ctx context.Context, principalID, resource, action string, reqCtx map[string]string) error {
	d, err := e.Check(ctx, principalID, resource, action, reqCtx)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s on %s:%s", ErrAccessDenied, principalID, resource, action)
	}
	return nil
}

// resolve returns the principal's permission set, from cache when
// possible. A cache miss loads every held role and takes the union of
// their permission sets, deduplicating identical permissions and keeping
// one contributing role per entry.
func (e *Engine) resolve(ctx context.Context, principalID string) ([]Grant, error) {
	if e.cache != nil {
		if grants, ok := e.cache.Get(ctx, principalID); ok {
			return grants, nil
		}
	}
	gen := e.generation(principalID)

	roleIDs, err := e.store.ListRolesForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	grants := make([]Grant, 0, len(roleIDs)*4)
	for _, rid := range roleIDs {
		r, err := e.store.GetRole(ctx, rid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Assignment raced a role delete; skip.
				continue
			}
			return nil, err
		}
		for _, p := range r.Permissions {
			key := grantKey(p)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			grants = append(grants, Grant{Role: r.ID, Permission: p.Clone()})
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		return grantKey(grants[i].Permission) < grantKey(grants[j].Permission)
	})

	if e.cache != nil {
		// Discard the fill if an invalidation landed while the store
		// was being read; the data may predate the mutation.
		e.genMu.Lock()
		if e.cacheGen[principalID] == gen {
			e.cache.Set(ctx, principalID, grants)
		}
		e.genMu.Unlock()
	}
	return grants, nil
}

// generation returns the current invalidation generation for a principal.
func (e *Engine) generation(principalID string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.cacheGen[principalID]
}

// grantKey identifies a permission including its conditions, so that
// differently conditioned grants on the same (resource, action) survive
// deduplication. Segments are quoted so that delimiter characters inside
// condition keys or values cannot make distinct permissions collide.
func grantKey(p permission.Permission) string {
	key := p.Key()
	if len(p.Conditions) == 0 {
		return key
	}
	keys := make([]string, 0, len(p.Conditions))
	for k := range p.Conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key += "|" + strconv.Quote(k) + "=" + strconv.Quote(p.Conditions[k])
	}
	return key
}

// invalidatePrincipal drops the principal's cached permission set and
// bumps the fill generation so an in-flight resolve cannot re-install
// state read before the mutation committed.
func (e *Engine) invalidatePrincipal(ctx context.Context, principalID string) {
	if e.cache == nil {
		return
	}
	e.genMu.Lock()
	e.cacheGen[principalID]++
	e.genMu.Unlock()
	e.cache.Invalidate(ctx, principalID)
}

// cacheAdapter bridges the concrete in-memory cache to the Cache
// interface without the cache package importing the root package.
type cacheAdapter struct {
	mem *cache.Memory
}

func (a cacheAdapter) Get(ctx context.Context, principalID string) ([]Grant, bool) {
	entries, ok := a.mem.Get(ctx, principalID)
	if !ok {
		return nil, false
	}
	grants := make([]Grant, len(entries))
	for i, en := range entries {
		grants[i] = Grant{Role: en.Role, Permission: en.Permission}
	}
	return grants, true
}

func (a cacheAdapter) Set(ctx context.Context, principalID string, grants []Grant) {
	entries := make([]cache.Entry, len(grants))
	for i, g := range grants {
		entries[i] = cache.Entry{Role: g.Role, Permission: g.Permission.Clone()}
	}
	a.mem.Set(ctx, principalID, entries)
}

func (a cacheAdapter) Invalidate(ctx context.Context, principalID string) {
	a.mem.Invalidate(ctx, principalID)
}
