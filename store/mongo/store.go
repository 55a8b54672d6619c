// Package mongo provides a MongoDB implementation of the composite store
// using grove ORM. MongoDB has no multi-statement transaction on standalone
// deployments, so compound mutations are applied as ordered sequential
// writes: audit entries first, then the record change, with the entries
// removed again if the record change fails. An audit write failure aborts
// the mutation before anything is applied. A crash between the two writes
// can leave an audit entry for a mutation that never applied; deployments
// needing strict atomicity should use the SQL backends.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/meridianhq/aegis/assignment"
	"github.com/meridianhq/aegis/audit"
	"github.com/meridianhq/aegis/id"
	"github.com/meridianhq/aegis/role"
	"github.com/meridianhq/aegis/store"
)

// Collection name constants.
const (
	colRoles       = "aegis_roles"
	colAssignments = "aegis_assignments"
	colAudit       = "aegis_audit_entries"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all aegis collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("aegis: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// discardAudit removes audit entries written ahead of a mutation that then
// failed. Best effort: if the delete itself fails the entries stay behind,
// describing a mutation that never applied.
func (s *Store) discardAudit(ctx context.Context, entryIDs ...id.AuditID) {
	if len(entryIDs) == 0 {
		return
	}
	ids := make([]string, len(entryIDs))
	for i, v := range entryIDs {
		ids[i] = v.String()
	}
	_, _ = s.mdb.NewDelete((*auditModel)(nil)).
		Many().
		Filter(bson.M{"_id": bson.M{"$in": ids}}).
		Exec(ctx)
}

// migrationIndexes returns the index definitions for all aegis collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "origin", Value: 1}}},
		},
		colAssignments: {
			{
				Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "role_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "principal_id", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "actor_id", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "principal_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role, entry *audit.Entry) error {
	if _, err := s.mdb.NewInsert(auditToModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create role audit: %w", err)
	}
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		s.discardAudit(ctx, entry.ID)
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("role name %q: %w", r.Name, store.ErrConflict)
		}
		return fmt.Errorf("aegis: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get role: %w", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role name %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get role by name: %w", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role, entry *audit.Entry) error {
	if _, err := s.mdb.NewInsert(auditToModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: update role audit: %w", err)
	}
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		s.discardAudit(ctx, entry.ID)
		return fmt.Errorf("aegis: update role: %w", err)
	}
	if res.MatchedCount() == 0 {
		s.discardAudit(ctx, entry.ID)
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID, entries []*audit.Entry) error {
	entryIDs := make([]id.AuditID, len(entries))
	if len(entries) > 0 {
		models := make([]auditModel, len(entries))
		for i, e := range entries {
			models[i] = *auditToModel(e)
			entryIDs[i] = e.ID
		}
		if _, err := s.mdb.NewInsert(&models).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: delete role audit: %w", err)
		}
	}
	_, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		s.discardAudit(ctx, entryIDs...)
		return fmt.Errorf("aegis: delete role assignments: %w", err)
	}
	_, err = s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		s.discardAudit(ctx, entryIDs...)
		return fmt.Errorf("aegis: delete role: %w", err)
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).
		Filter(roleFilter(filter)).
		Sort(bson.D{{Key: "name", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(roleFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count roles: %w", err)
	}
	return count, nil
}

func roleFilter(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Origin != nil {
		f["origin"] = string(*filter.Origin)
	}
	if filter.Search != "" {
		pattern := escapeRegex(filter.Search)
		f["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"display_name": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return f
}

// escapeRegex quotes regex metacharacters so search terms match literally.
func escapeRegex(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment, entry *audit.Entry) error {
	if _, err := s.mdb.NewInsert(auditToModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create assignment audit: %w", err)
	}
	if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		s.discardAudit(ctx, entry.ID)
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("assignment %s/%s: %w", a.PrincipalID, a.RoleID, store.ErrConflict)
		}
		return fmt.Errorf("aegis: create assignment: %w", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, principalID string, roleID id.RoleID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"principal_id": principalID, "role_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("assignment %s/%s: %w", principalID, roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get assignment: %w", err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) DeleteAssignment(ctx context.Context, principalID string, roleID id.RoleID, entry *audit.Entry) error {
	if _, err := s.mdb.NewInsert(auditToModel(entry)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: delete assignment audit: %w", err)
	}
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bson.M{"principal_id": principalID, "role_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		s.discardAudit(ctx, entry.ID)
		return fmt.Errorf("aegis: delete assignment: %w", err)
	}
	if res.DeletedCount() == 0 {
		s.discardAudit(ctx, entry.ID)
		return fmt.Errorf("assignment %s/%s: %w", principalID, roleID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilter(filter)).
		Sort(bson.D{{Key: "assigned_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list assignments: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(assignmentFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count assignments: %w", err)
	}
	return count, nil
}

func (s *Store) ListRolesForPrincipal(ctx context.Context, principalID string) ([]id.RoleID, error) {
	var models []assignmentModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"principal_id": principalID}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list roles for principal: %w", err)
	}
	result := make([]id.RoleID, 0, len(models))
	for _, m := range models {
		rid, err := id.ParseRoleID(m.RoleID)
		if err == nil {
			result = append(result, rid)
		}
	}
	return result, nil
}

func (s *Store) ListAssignmentsByRole(ctx context.Context, roleID id.RoleID) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"role_id": roleID.String()}).
		Sort(bson.D{{Key: "assigned_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list assignments by role: %w", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func assignmentFilter(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.PrincipalID != "" {
		f["principal_id"] = filter.PrincipalID
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.AssignedBy != "" {
		f["assigned_by"] = filter.AssignedBy
	}
	return f
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) AppendAuditEntry(ctx context.Context, e *audit.Entry) error {
	if _, err := s.mdb.NewInsert(auditToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: append audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, auditID id.AuditID) (*audit.Entry, error) {
	var m auditModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": auditID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("audit entry %s: %w", auditID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("aegis: get audit entry: %w", err)
	}
	return auditFromModel(&m), nil
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.mdb.NewFind(&models).
		Filter(auditFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list audit entries: %w", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*auditModel)(nil)).
		Filter(auditFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count audit entries: %w", err)
	}
	return count, nil
}

func auditFilter(filter *audit.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.ActorID != "" {
		f["actor_id"] = filter.ActorID
	}
	if filter.Action != "" {
		f["action"] = string(filter.Action)
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.PrincipalID != "" {
		f["principal_id"] = filter.PrincipalID
	}
	if filter.After != nil {
		f["created_at"] = bson.M{"$gt": *filter.After}
	}
	if filter.Before != nil {
		if existing, ok := f["created_at"].(bson.M); ok {
			existing["$lt"] = *filter.Before
		} else {
			f["created_at"] = bson.M{"$lt": *filter.Before}
		}
	}
	return f
}
