// Package memory provides an in-memory implementation of the composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/role"
	"github.com/meridianhq/aegis/store"
)

// Compile-time interface checks.
var (
	_ role.Store       = (*Store)(nil)
	_ assignment.Store = (*Store)(nil)
	_ audit.Store      = (*Store)(nil)
	_ store.Store      = (*Store)(nil)
)

// Store is a thread-safe in-memory store. All mutating operations apply
// the mutation and its audit entries under one lock acquisition, so the
// atomicity contract holds trivially.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Role             // roleID -> role
	rolesByName map[string]string                 // name -> roleID
	assignments map[string]*assignment.Assignment // principalID + roleID -> assignment
	audits      []*audit.Entry                    // append-only, insertion order
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Role),
		rolesByName: make(map[string]string),
		assignments: make(map[string]*assignment.Assignment),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func assignmentKey(principalID string, roleID id.RoleID) string {
	return principalID + "\x00" + roleID.String()
}

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolesByName[r.Name]; ok {
		return fmt.Errorf("role name %q: %w", r.Name, store.ErrConflict)
	}
	s.roles[r.ID.String()] = r.Clone()
	s.rolesByName[r.Name] = r.ID.String()
	s.audits = append(s.audits, entry.Clone())
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rid, ok := s.rolesByName[name]
	if !ok {
		return nil, fmt.Errorf("role name %q: %w", name, store.ErrNotFound)
	}
	return s.roles[rid].Clone(), nil
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.roles[r.ID.String()]
	if !ok {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	if prev.Name != r.Name {
		return fmt.Errorf("role name is immutable: %w", store.ErrConflict)
	}
	s.roles[r.ID.String()] = r.Clone()
	s.audits = append(s.audits, entry.Clone())
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID, entries []*audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	delete(s.rolesByName, r.Name)
	delete(s.roles, roleID.String())
	for k, a := range s.assignments {
		if a.RoleID == roleID {
			delete(s.assignments, k)
		}
	}
	for _, e := range entries {
		s.audits = append(s.audits, e.Clone())
	}
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if filter.Origin != nil && r.Origin != *filter.Origin {
				continue
			}
			if filter.Search != "" && !matchesSearch(r, filter.Search) {
				continue
			}
		}
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return applyPagination(result, paginationOpts(filter)), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	var unpaged *role.ListFilter
	if filter != nil {
		f := *filter
		f.Limit, f.Offset = 0, 0
		unpaged = &f
	}
	roles, err := s.ListRoles(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(roles)), nil
}

func matchesSearch(r *role.Role, search string) bool {
	q := strings.ToLower(search)
	return strings.Contains(strings.ToLower(r.Name), q) ||
		strings.Contains(strings.ToLower(r.DisplayName), q)
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(a.PrincipalID, a.RoleID)
	if _, ok := s.assignments[key]; ok {
		return fmt.Errorf("assignment %s/%s: %w", a.PrincipalID, a.RoleID, store.ErrConflict)
	}
	s.assignments[key] = a.Clone()
	s.audits = append(s.audits, entry.Clone())
	return nil
}

func (s *Store) GetAssignment(_ context.Context, principalID string, roleID id.RoleID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentKey(principalID, roleID)]
	if !ok {
		return nil, fmt.Errorf("assignment %s/%s: %w", principalID, roleID, store.ErrNotFound)
	}
	return a.Clone(), nil
}

func (s *Store) DeleteAssignment(_ context.Context, principalID string, roleID id.RoleID, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(principalID, roleID)
	if _, ok := s.assignments[key]; !ok {
		return fmt.Errorf("assignment %s/%s: %w", principalID, roleID, store.ErrNotFound)
	}
	delete(s.assignments, key)
	s.audits = append(s.audits, entry.Clone())
	return nil
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		if filter != nil {
			if filter.PrincipalID != "" && a.PrincipalID != filter.PrincipalID {
				continue
			}
			if filter.RoleID != nil && a.RoleID != *filter.RoleID {
				continue
			}
			if filter.AssignedBy != "" && a.AssignedBy != filter.AssignedBy {
				continue
			}
		}
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].AssignedAt.Equal(result[j].AssignedAt) {
			return result[i].AssignedAt.Before(result[j].AssignedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return applyPagination(result, paginationOptsAssign(filter)), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	var unpaged *assignment.ListFilter
	if filter != nil {
		f := *filter
		f.Limit, f.Offset = 0, 0
		unpaged = &f
	}
	asgs, err := s.ListAssignments(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(asgs)), nil
}

func (s *Store) ListRolesForPrincipal(_ context.Context, principalID string) ([]id.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roleIDs []id.RoleID
	for _, a := range s.assignments {
		if a.PrincipalID == principalID {
			roleIDs = append(roleIDs, a.RoleID)
		}
	}
	return roleIDs, nil
}

func (s *Store) ListAssignmentsByRole(_ context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*assignment.Assignment
	for _, a := range s.assignments {
		if a.RoleID == roleID {
			result = append(result, a.Clone())
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

func (s *Store) AppendAuditEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e.Clone())
	return nil
}

func (s *Store) GetAuditEntry(_ context.Context, auditID id.AuditID) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.audits {
		if e.ID == auditID {
			return e.Clone(), nil
		}
	}
	return nil, fmt.Errorf("audit entry %s: %w", auditID, store.ErrNotFound)
}

func (s *Store) ListAuditEntries(_ context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// The slice is already in insertion order, which is the oldest-first
	// order the contract requires.
	result := make([]*audit.Entry, 0, len(s.audits))
	for _, e := range s.audits {
		if filter != nil {
			if filter.ActorID != "" && e.ActorID != filter.ActorID {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.RoleID != nil && e.RoleID != *filter.RoleID {
				continue
			}
			if filter.PrincipalID != "" && e.PrincipalID != filter.PrincipalID {
				continue
			}
			if filter.After != nil && !e.CreatedAt.After(*filter.After) {
				continue
			}
			if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
				continue
			}
		}
		result = append(result, e.Clone())
	}
	return applyPagination(result, paginationOptsAudit(filter)), nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	var unpaged *audit.QueryFilter
	if filter != nil {
		f := *filter
		f.Limit, f.Offset = 0, 0
		unpaged = &f
	}
	entries, err := s.ListAuditEntries(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// ──────────────────────────────────────────────────
// Pagination
// ──────────────────────────────────────────────────

type pagOpts struct {
	limit, offset int
}

func paginationOpts(f *role.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsAssign(f *assignment.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsAudit(f *audit.QueryFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
