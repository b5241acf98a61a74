// Package convert turns a neutral event.Ddl/event.Dml into destination
// SQL strings or value tuples, per spec.md §4.G. ConvertDDL resolves the
// destination schema.table, runs per-column type resolution through the
// rule store, and diffs against the live destination schema for ALTER.
// ConvertDML builds either a text-SQL statement or a tuple-mode value
// list, selected by Mode.
package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/cdcbridge/synchdb/pkg/synchdb/codec"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/ident"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// Mode selects how ConvertDML renders a Dml record.
type Mode int

const (
	// ModeTextSQL builds INSERT/UPDATE/DELETE statements for the
	// applier to submit through the destination's SQL interface.
	ModeTextSQL Mode = iota
	// ModeTuple builds parallel before/after value lists for the
	// applier to submit through the destination's tuple-level API.
	ModeTuple
)

// TupleValue is one column's value, destination oid, and ordinal
// position, matching spec.md §4.G.2's tuple-mode output shape.
type TupleValue struct {
	Value   string // "NULL" for SQL NULL
	OID     uint32
	Ordinal int
}

// Statement is the result of ConvertDML.
type Statement struct {
	// SQL holds the rendered statement in ModeTextSQL; empty in ModeTuple.
	SQL string
	// TableOID, Before, After hold the tuple-mode output in ModeTuple.
	TableOID uint32
	Before   []TupleValue
	After    []TupleValue
}

// DDLResult is the result of ConvertDDL.
type DDLResult struct {
	SQL          string
	Evicted      bool // true if a prior schema cache entry for this table was evicted
	AlterSubkind event.AlterSubkind
}

// ConvertDDL implements spec.md §4.G.1: CREATE/ALTER/DROP, including the
// ADD/DROP/ALTER column diffing algorithm against the live destination
// schema (via schemas.Get). rulesStore resolves per-column destination
// types and the table's destination name.
func ConvertDDL(ctx context.Context, ddl *event.Ddl, rulesStore *rules.Store, schemas *schemacache.Cache, kind rules.SourceKind, useDB bool) (*DDLResult, error) {
	destSchema, destTable, err := resolveTableName(ddl.SourceID, rulesStore, useDB)
	if err != nil {
		return nil, err
	}

	switch ddl.Kind {
	case event.DdlCreate:
		sql := buildCreate(ddl, rulesStore, destSchema, destTable, kind)
		return &DDLResult{SQL: sql}, nil
	case event.DdlDrop:
		schemas.Evict(destSchema, destTable)
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", destSchema, destTable)
		return &DDLResult{SQL: sql, Evicted: true}, nil
	case event.DdlAlter:
		entry, err := schemas.Get(ctx, destSchema, destTable)
		if err != nil {
			return nil, err
		}
		sql, subkind := buildAlter(ddl, rulesStore, entry, destSchema, destTable, kind)
		schemas.Evict(destSchema, destTable)
		return &DDLResult{SQL: sql, Evicted: true, AlterSubkind: subkind}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognised ddl kind %d", synchdberr.ErrUnsupportedDdl, ddl.Kind)
	}
}

func resolveTableName(sourceID string, rulesStore *rules.Store, useDB bool) (schemaName, tableName string, err error) {
	if mapped, ok := rulesStore.ResolveName(sourceID, rules.ObjectTable); ok {
		_, s, t, err := ident.Split(mapped, false)
		if err != nil {
			return "", "", err
		}
		if s == "" {
			s = "public"
		}
		return s, t, nil
	}
	db, schema, table, err := ident.Split(sourceID, useDB)
	if err != nil {
		return "", "", err
	}
	if schema != "" {
		return schema, table, nil
	}
	if db != "" {
		return db, table, nil
	}
	return "public", table, nil
}

// buildCreate implements the CREATE branch of spec.md §4.G.1.
func buildCreate(ddl *event.Ddl, rulesStore *rules.Store, destSchema, destTable string, kind rules.SourceKind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE SCHEMA IF NOT EXISTS %s;\n", destSchema)
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s.%s (\n", destSchema, destTable)

	defs := make([]string, 0, len(ddl.Columns)+1)
	for _, col := range ddl.Columns {
		defs = append(defs, columnDefinition(ddl.SourceID, col, rulesStore, kind))
	}
	if pkCols := parsePKArray(ddl.PrimaryKeyJSON); len(pkCols) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}
	sb.WriteString(strings.Join(defs, ",\n"))
	sb.WriteString("\n);")
	return sb.String()
}

// columnDefinition renders one column's DDL fragment: resolved type,
// optional length/scale, the unsigned CHECK constraint, NOT NULL, and
// the DEFAULT NULL normalisation rule (spec.md §8 boundary behaviour:
// any non-NULL source default is normalised to DEFAULT NULL since the
// source's default expression isn't trusted to parse on the destination).
func columnDefinition(sourceID string, col event.ColumnDescriptor, rulesStore *rules.Store, kind rules.SourceKind) string {
	columnID := sourceID + "." + col.Name
	destType, destLength := rulesStore.ResolveType(columnID, col.AutoIncrement, col.RemoteType, col.Length, col.Scale, kind)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", col.Name, destType)
	if destLength > 0 {
		if col.Scale > 0 {
			fmt.Fprintf(&sb, "(%d,%d)", destLength, col.Scale)
		} else {
			fmt.Fprintf(&sb, "(%d)", destLength)
		}
	}
	if strings.Contains(col.RemoteType, "unsigned") {
		fmt.Fprintf(&sb, " CHECK (%s >= 0)", col.Name)
	}
	if !col.Optional {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		sb.WriteString(" DEFAULT NULL")
	}
	return sb.String()
}

// buildAlter implements the ALTER branch of spec.md §4.G.1: diffing the
// source column list against the live destination schema to choose
// ADD/DROP/per-column-ALTER.
func buildAlter(ddl *event.Ddl, rulesStore *rules.Store, entry *schemacache.Entry, destSchema, destTable string, kind rules.SourceKind) (string, event.AlterSubkind) {
	liveCount := entry.AttrCount
	srcCount := len(ddl.Columns)

	var sb strings.Builder
	fmt.Fprintf(&sb, "ALTER TABLE %s.%s\n", destSchema, destTable)

	switch {
	case srcCount > liveCount:
		clauses := make([]string, 0, srcCount-liveCount)
		newIdx := liveCount
		for _, col := range ddl.Columns {
			if _, ok := entry.Attributes[col.Name]; ok {
				continue
			}
			newIdx++
			columnID := ddl.SourceID + "." + col.Name
			destType, destLength := rulesStore.ResolveType(columnID, col.AutoIncrement, col.RemoteType, col.Length, col.Scale, kind)
			frag := fmt.Sprintf("ADD COLUMN %s %s", col.Name, destType)
			if destLength > 0 {
				if col.Scale > 0 {
					frag += fmt.Sprintf("(%d,%d)", destLength, col.Scale)
				} else {
					frag += fmt.Sprintf("(%d)", destLength)
				}
			}
			if strings.Contains(col.RemoteType, "unsigned") {
				frag += fmt.Sprintf(" CHECK (%s >= 0)", col.Name)
			}
			if !col.Optional {
				frag += " NOT NULL"
			}
			if col.Default != "" {
				frag += " DEFAULT NULL"
			}
			clauses = append(clauses, frag)
		}
		sb.WriteString(strings.Join(clauses, ",\n"))
		sb.WriteString(";")
		return sb.String(), event.AlterAddColumn

	case srcCount < liveCount:
		srcNames := make(map[string]bool, srcCount)
		for _, col := range ddl.Columns {
			srcNames[col.Name] = true
		}
		clauses := make([]string, 0, liveCount-srcCount)
		for name := range entry.Attributes {
			if isDroppedMarker(name) {
				continue
			}
			if !srcNames[strings.ToLower(name)] {
				clauses = append(clauses, fmt.Sprintf("DROP COLUMN %s", name))
			}
		}
		sb.WriteString(strings.Join(clauses, ",\n"))
		sb.WriteString(";")
		return sb.String(), event.AlterDropColumn

	default:
		clauses := make([]string, 0, srcCount)
		for _, col := range ddl.Columns {
			attr, ok := entry.Attributes[col.Name]
			if !ok || attr.IsPrimaryKey {
				continue
			}
			columnID := ddl.SourceID + "." + col.Name
			destType, destLength := rulesStore.ResolveType(columnID, col.AutoIncrement, col.RemoteType, col.Length, col.Scale, kind)
			typeFrag := destType
			if destLength > 0 {
				if col.Scale > 0 {
					typeFrag += fmt.Sprintf("(%d,%d)", destLength, col.Scale)
				} else {
					typeFrag += fmt.Sprintf("(%d)", destLength)
				}
			}
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DATA TYPE %s", col.Name, typeFrag))
			if col.Default != "" {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT NULL", col.Name))
			} else {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", col.Name))
			}
			if !col.Optional {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col.Name))
			} else {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col.Name))
			}
		}
		if !hasPrimaryKey(entry) {
			if pkCols := parsePKArray(ddl.PrimaryKeyJSON); len(pkCols) > 0 {
				clauses = append(clauses, fmt.Sprintf("ADD PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
			}
		}
		sb.WriteString(strings.Join(clauses, ",\n"))
		sb.WriteString(";")
		return sb.String(), event.AlterAlterColumn
	}
}

// isDroppedMarker reports whether name matches the marker pattern used
// by some source connectors for already-dropped columns (e.g. Debezium's
// placeholder rewrites), which the diff should ignore rather than
// re-issue a DROP for.
func isDroppedMarker(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "__dropped_")
}

func hasPrimaryKey(entry *schemacache.Entry) bool {
	for _, a := range entry.Attributes {
		if a.IsPrimaryKey {
			return true
		}
	}
	return false
}

// parsePKArray parses the verbatim JSON array literal carried in
// Ddl.PrimaryKeyJSON, e.g. `["id","tenant_id"]`, into a plain string
// slice. A malformed or empty literal yields nil rather than an error,
// since an absent PK is a valid (if unusual) table shape.
func parsePKArray(raw string) []string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil
	}
	inner := raw[1 : len(raw)-1]
	if strings.TrimSpace(inner) == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out
}

// ConvertDML implements spec.md §4.G.2: text-SQL or tuple-mode rendering
// of one Dml record. Each value passes through codec.Decode.
func ConvertDML(dml *event.Dml, mode Mode, rulesStore *rules.Store, evaluator codec.TransformEvaluator) (*Statement, error) {
	switch mode {
	case ModeTuple:
		return convertDMLTuple(dml, rulesStore, evaluator)
	default:
		return convertDMLTextSQL(dml, rulesStore, evaluator)
	}
}

func convertDMLTextSQL(dml *event.Dml, rulesStore *rules.Store, evaluator codec.TransformEvaluator) (*Statement, error) {
	switch dml.Op {
	case event.OpCreate, event.OpRead:
		names := make([]string, 0, len(dml.After))
		values := make([]string, 0, len(dml.After))
		for _, col := range dml.After {
			v, err := codec.Decode(col, true, dml.SourceID, rulesStore, evaluator)
			if err != nil {
				return nil, err
			}
			names = append(names, col.Name)
			values = append(values, v)
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", dml.DestID, strings.Join(names, ", "), strings.Join(values, ", "))
		return &Statement{SQL: sql}, nil

	case event.OpDelete:
		preds, err := pkPredicates(dml.Before, dml.SourceID, rulesStore, evaluator)
		if err != nil {
			return nil, err
		}
		if len(preds) == 0 {
			return nil, fmt.Errorf("%w: delete on %s", synchdberr.ErrNoPrimaryKey, dml.DestID)
		}
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s;", dml.DestID, strings.Join(preds, " AND "))
		return &Statement{SQL: sql}, nil

	case event.OpUpdate:
		preds, err := pkPredicates(dml.Before, dml.SourceID, rulesStore, evaluator)
		if err != nil {
			return nil, err
		}
		if len(preds) == 0 {
			return nil, fmt.Errorf("%w: update on %s", synchdberr.ErrNoPrimaryKey, dml.DestID)
		}
		sets := make([]string, 0, len(dml.After))
		for _, col := range dml.After {
			v, err := codec.Decode(col, true, dml.SourceID, rulesStore, evaluator)
			if err != nil {
				return nil, err
			}
			sets = append(sets, fmt.Sprintf("%s = %s", col.Name, v))
		}
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s;", dml.DestID, strings.Join(sets, ", "), strings.Join(preds, " AND "))
		return &Statement{SQL: sql}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognised dml op %q", synchdberr.ErrMalformedEvent, dml.Op)
	}
}

func pkPredicates(cols []event.ColumnValue, sourceID string, rulesStore *rules.Store, evaluator codec.TransformEvaluator) ([]string, error) {
	var preds []string
	for _, col := range cols {
		if !col.IsPrimaryKey {
			continue
		}
		v, err := codec.Decode(col, true, sourceID, rulesStore, evaluator)
		if err != nil {
			return nil, err
		}
		preds = append(preds, fmt.Sprintf("%s = %s", col.Name, v))
	}
	return preds, nil
}

func convertDMLTuple(dml *event.Dml, rulesStore *rules.Store, evaluator codec.TransformEvaluator) (*Statement, error) {
	stmt := &Statement{TableOID: dml.DestTableOID}

	before, err := tupleValues(dml.Before, dml.SourceID, rulesStore, evaluator)
	if err != nil {
		return nil, err
	}
	stmt.Before = before

	after, err := tupleValues(dml.After, dml.SourceID, rulesStore, evaluator)
	if err != nil {
		return nil, err
	}
	stmt.After = after

	if (dml.Op == event.OpUpdate || dml.Op == event.OpDelete) && !anyPK(dml.Before) {
		return nil, fmt.Errorf("%w: %s", synchdberr.ErrNoPrimaryKey, dml.DestID)
	}
	return stmt, nil
}

func anyPK(cols []event.ColumnValue) bool {
	for _, c := range cols {
		if c.IsPrimaryKey {
			return true
		}
	}
	return false
}

func tupleValues(cols []event.ColumnValue, sourceID string, rulesStore *rules.Store, evaluator codec.TransformEvaluator) ([]TupleValue, error) {
	out := make([]TupleValue, 0, len(cols))
	for _, col := range cols {
		v, err := codec.Decode(col, false, sourceID, rulesStore, evaluator)
		if err != nil {
			return nil, err
		}
		out = append(out, TupleValue{Value: v, OID: col.DestOID, Ordinal: col.Ordinal})
	}
	return out, nil
}
