// Package rules holds the per-connector rule store: type-mapping rules,
// object-name (rename) rules, and transform-expression rules, plus the
// reload/migration logic that compares a freshly loaded rule set against
// the one currently in effect.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/cdcbridge/synchdb/pkg/synchdb/ident"
)

// SourceKind identifies the upstream system a connector captures from; it
// selects the type-normalisation branch in ResolveType.
type SourceKind string

const (
	SourceMySQL          SourceKind = "mysql"
	SourceSQLServer      SourceKind = "sqlserver"
	SourceOracleDebezium SourceKind = "oracle-debezium"
	SourceOracleOLR      SourceKind = "oracle-olr"

	// SourcePostgresLogrepl is the bonus local-development source kind
	// (SPEC_FULL.md §8); it carries no special type-normalisation rules,
	// so ResolveType falls through to its default pass-through branch.
	SourcePostgresLogrepl SourceKind = "postgres-logrepl"
)

func (k SourceKind) isOracle() bool {
	return k == SourceOracleDebezium || k == SourceOracleOLR
}

// ObjectKind distinguishes the two renameable object categories in the
// name-rule table.
type ObjectKind int

const (
	ObjectTable ObjectKind = iota
	ObjectColumn
)

// TypeKey is the compound key of the type-rule table: either a raw/
// normalised source type token, or (for a per-column override) the fully
// qualified column id, paired with whether the column auto-increments.
type TypeKey struct {
	Token         string
	AutoIncrement bool
}

// TypeRule is the value side of the type-rule table. LengthOverride of -1
// means "no override, keep the source-declared length".
type TypeRule struct {
	DestType       string
	LengthOverride int
}

// NameKey is the compound key of the object-name rule table.
type NameKey struct {
	ID   string
	Kind ObjectKind
}

// MigrationKind classifies a catalog-side action the applier must take
// after a Reload changes the effective rule set.
type MigrationKind int

const (
	MigrationRenameTable MigrationKind = iota
	MigrationRenameColumn
	MigrationRetypeColumn
)

// Migration describes one catalog-sync action produced by Reload.
type Migration struct {
	Kind     MigrationKind
	ObjectID string
	OldName  string
	NewName  string
	NewType  string
}

// RuleSource loads the three rule tables from their backing store (a
// database table, config file, or test fixture). Reload calls all three
// and diffs the result against the store's current contents.
type RuleSource interface {
	LoadTypeRules(ctx context.Context) (map[TypeKey]TypeRule, error)
	LoadNameRules(ctx context.Context) (map[NameKey]string, error)
	LoadTransformRules(ctx context.Context) (map[string]string, error)
}

// Store holds the three rule maps for one connector. Stores are never
// shared across connectors (spec's per-connector resource model).
type Store struct {
	mu             sync.RWMutex
	typeRules      map[TypeKey]TypeRule
	nameRules      map[NameKey]string
	transformRules map[string]string
}

// New returns a Store seeded with the built-in default type rules; user
// rules are merged on top by the first Reload.
func New() *Store {
	return &Store{
		typeRules:      defaultTypeRules(),
		nameRules:      make(map[NameKey]string),
		transformRules: make(map[string]string),
	}
}

// ResolveType implements the five-step type-resolution algorithm of
// spec.md §4.B. columnID must already be the fully-qualified
// "db[.schema].table.column" string; rawToken, length and scale are the
// column's source-declared type token, length, and scale.
func (s *Store) ResolveType(columnID string, autoIncrement bool, rawToken string, length, scale int, kind SourceKind) (destType string, destLength int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rule, ok := s.typeRules[TypeKey{Token: columnID, AutoIncrement: autoIncrement}]; ok {
		return applyOverride(rule, length)
	}

	token := normaliseToken(rawToken, length, scale, kind)

	if rule, ok := s.typeRules[TypeKey{Token: token, AutoIncrement: autoIncrement}]; ok {
		return applyOverride(rule, length)
	}

	return rawToken, length
}

func applyOverride(rule TypeRule, length int) (string, int) {
	if rule.LengthOverride != -1 {
		return rule.DestType, rule.LengthOverride
	}
	return rule.DestType, length
}

func normaliseToken(rawToken string, length, scale int, kind SourceKind) string {
	switch {
	case kind == SourceMySQL || kind == SourceSQLServer:
		if rawToken == "bit" && length == 1 {
			return "bit(1)"
		}
		return rawToken
	case kind.isOracle():
		stripped, _ := ident.RemovePrecision(rawToken)
		if stripped == "number" && scale == 0 {
			return fmt.Sprintf("number(%d,0)", length)
		}
		return rawToken
	default:
		return rawToken
	}
}

// ResolveName looks up a destination rename for a table or column id.
// ok is false when no rule applies ("no rename").
func (s *Store) ResolveName(id string, kind ObjectKind) (name string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok = s.nameRules[NameKey{ID: id, Kind: kind}]
	return name, ok
}

// ResolveTransform looks up the transform expression attached to a fully
// qualified column id. ok is false when no transform applies.
func (s *Store) ResolveTransform(columnID string) (expr string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expr, ok = s.transformRules[columnID]
	return expr, ok
}

// Reload rebuilds all three maps from source and returns the catalog-sync
// migrations implied by whatever changed: renamed tables, renamed
// columns, and retyped columns (keyed by their fully-qualified column id,
// i.e. per-column override rules only — built-in token rules never imply
// a migration since they don't name a specific live column).
func (s *Store) Reload(ctx context.Context, source RuleSource) ([]Migration, error) {
	newType, err := source.LoadTypeRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rules: load type rules: %w", err)
	}
	newName, err := source.LoadNameRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rules: load name rules: %w", err)
	}
	newTransform, err := source.LoadTransformRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rules: load transform rules: %w", err)
	}

	merged := defaultTypeRules()
	for k, v := range newType {
		merged[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var migrations []Migration
	for key, newDestName := range newName {
		if oldDestName, ok := s.nameRules[key]; ok && oldDestName != newDestName {
			switch key.Kind {
			case ObjectTable:
				migrations = append(migrations, Migration{Kind: MigrationRenameTable, ObjectID: key.ID, OldName: oldDestName, NewName: newDestName})
			case ObjectColumn:
				migrations = append(migrations, Migration{Kind: MigrationRenameColumn, ObjectID: key.ID, OldName: oldDestName, NewName: newDestName})
			}
		}
	}
	for key, newRule := range merged {
		if oldRule, ok := s.typeRules[key]; ok && oldRule.DestType != newRule.DestType {
			migrations = append(migrations, Migration{Kind: MigrationRetypeColumn, ObjectID: key.Token, NewType: newRule.DestType})
		}
	}

	s.typeRules = merged
	s.nameRules = newName
	s.transformRules = newTransform

	return migrations, nil
}

// defaultTypeRules returns the built-in defaults merged before user rules
// on every Reload and at Store construction: the bit(1) -> boolean
// special case (spec.md §8 boundary behaviour) plus a handful of common
// MySQL/SQL Server/Oracle integer-width mappings.
func defaultTypeRules() map[TypeKey]TypeRule {
	return map[TypeKey]TypeRule{
		{Token: "bit(1)", AutoIncrement: false}: {DestType: "boolean", LengthOverride: -1},
		{Token: "bit(1)", AutoIncrement: true}:  {DestType: "boolean", LengthOverride: -1},

		{Token: "tinyint", AutoIncrement: false}:    {DestType: "smallint", LengthOverride: -1},
		{Token: "tinyint", AutoIncrement: true}:     {DestType: "smallserial", LengthOverride: -1},
		{Token: "mediumint", AutoIncrement: false}:  {DestType: "integer", LengthOverride: -1},
		{Token: "mediumint", AutoIncrement: true}:   {DestType: "serial", LengthOverride: -1},
		{Token: "int", AutoIncrement: false}:         {DestType: "integer", LengthOverride: -1},
		{Token: "int", AutoIncrement: true}:          {DestType: "serial", LengthOverride: -1},
		{Token: "bigint", AutoIncrement: false}:      {DestType: "bigint", LengthOverride: -1},
		{Token: "bigint", AutoIncrement: true}:       {DestType: "bigserial", LengthOverride: -1},

		{Token: "number(1,0)", AutoIncrement: false}:  {DestType: "smallint", LengthOverride: -1},
		{Token: "number(5,0)", AutoIncrement: false}:  {DestType: "smallint", LengthOverride: -1},
		{Token: "number(10,0)", AutoIncrement: false}: {DestType: "integer", LengthOverride: -1},
		{Token: "number(19,0)", AutoIncrement: false}: {DestType: "bigint", LengthOverride: -1},
		{Token: "number(38,0)", AutoIncrement: false}: {DestType: "numeric", LengthOverride: 38},
	}
}
