// Package schemacache is the per-connector destination-schema cache:
// lazily populated attribute metadata (spec.md §4.C) plus the JSON
// position map used to classify each column of an incoming change event.
// It wraps the same introspection idea as pkg/pgx/schema.Cache but tracks
// the oid/typmod/category fields the codec and converter need, which that
// package's Table/Column types don't carry.
package schemacache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	synchdbpgx "github.com/cdcbridge/synchdb/pkg/pgx"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// Attribute is one destination column's catalog metadata.
type Attribute struct {
	Name         string
	OID          uint32
	Ordinal      int
	Typmod       int32
	IsPrimaryKey bool
	Category     string
	TypeName     string
}

// PositionEntry is one remote column's classification within a change
// event's schema section.
type PositionEntry struct {
	Position int
	WireType event.DbzType
	TimeRep  event.TimeRep
	Scale    int
}

// SchemaField is one element of a change event's schema/fields section,
// already extracted from whichever wire envelope (Debezium or OLR) by the
// caller.
type SchemaField struct {
	FieldName string // the JSON key within the before/after payload
	Type      string // Debezium's "type" (wire type token)
	Name      string // Debezium's "name" (semantic/logical type), optional
	Scale     int    // "parameters.scale", optional
}

// Entry is one (schema, table)'s cached metadata.
type Entry struct {
	Schema     string
	Table      string
	TableOID   uint32
	Attributes map[string]Attribute // keyed by lowercased attribute name
	Positions  map[string]PositionEntry
	AttrCount  int
}

// Cache holds the entries for one connector. Caches are never shared
// across connectors.
type Cache struct {
	conn synchdbpgx.Conn

	mu      sync.RWMutex
	entries map[cacheKey]*Entry
}

type cacheKey struct {
	schema, table string
}

// New returns an empty Cache backed by conn for catalog introspection.
func New(conn synchdbpgx.Conn) *Cache {
	return &Cache{conn: conn, entries: make(map[cacheKey]*Entry)}
}

// Get returns the cached entry for (schema, table), populating it from
// the destination catalog on first access. Positions is left empty until
// the caller supplies fields via BuildPositions for the event currently
// being processed.
func (c *Cache) Get(ctx context.Context, schema, table string) (*Entry, error) {
	key := cacheKey{schema, table}

	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	entry, err := c.load(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	return entry, nil
}

// Evict removes the cached entry for (schema, table); called by the
// converter on CREATE/ALTER/DROP of that table.
func (c *Cache) Evict(schema, table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{schema, table})
}

// Preload installs entry directly, bypassing catalog introspection. Used
// to warm the cache right after a CREATE TABLE is applied (the converter
// already knows the new shape) and by tests that exercise callers of Get
// without a live destination connection.
func (c *Cache) Preload(schema, table string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{schema, table}] = entry
}

func (c *Cache) load(ctx context.Context, schema, table string) (*Entry, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("%w: %s.%s (no catalog connection)", synchdberr.ErrTableNotFound, schema, table)
	}
	var schemaExists bool
	if err := c.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_namespace WHERE nspname = $1)`, schema,
	).Scan(&schemaExists); err != nil {
		return nil, fmt.Errorf("schemacache: check schema %s: %w", schema, err)
	}
	if !schemaExists {
		return nil, fmt.Errorf("%w: %s", synchdberr.ErrSchemaNotFound, schema)
	}

	var tableOID uint32
	err := c.conn.QueryRow(ctx, `
		SELECT cl.oid FROM pg_class cl
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		WHERE n.nspname = $1 AND cl.relname = $2`, schema, table,
	).Scan(&tableOID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", synchdberr.ErrTableNotFound, schema, table, err)
	}

	rows, err := c.conn.Query(ctx, `
		SELECT a.attname, a.atttypid, a.attnum, a.atttypmod, t.typname, t.typcategory,
			EXISTS (
				SELECT 1 FROM pg_constraint c
				WHERE c.conrelid = $1 AND c.contype = 'p' AND a.attnum = ANY(c.conkey)
			) AS is_pk
		FROM pg_attribute a
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, tableOID)
	if err != nil {
		return nil, fmt.Errorf("schemacache: query attributes %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	attrs := make(map[string]Attribute)
	count := 0
	for rows.Next() {
		var a Attribute
		var category string
		if err := rows.Scan(&a.Name, &a.OID, &a.Ordinal, &a.Typmod, &a.TypeName, &category, &a.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("schemacache: scan attribute: %w", err)
		}
		a.Category = categoryName(category)
		attrs[strings.ToLower(a.Name)] = a
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schemacache: read attributes %s.%s: %w", schema, table, err)
	}

	return &Entry{
		Schema:     schema,
		Table:      table,
		TableOID:   tableOID,
		Attributes: attrs,
		Positions:  make(map[string]PositionEntry),
		AttrCount:  count,
	}, nil
}

// BuildPositions replaces the entry's JSON position map from fields,
// matching spec.md §4.C step 4: walk the event's schema section in
// order, extracting field/type/name/scale per element.
func (e *Entry) BuildPositions(fields []SchemaField) {
	positions := make(map[string]PositionEntry, len(fields))
	for i, f := range fields {
		positions[strings.ToLower(f.FieldName)] = PositionEntry{
			Position: i,
			WireType: ClassifyWireType(f.Type),
			TimeRep:  ClassifyTimeRep(f.Name),
			Scale:    f.Scale,
		}
	}
	e.Positions = positions
}

// categoryName maps Postgres's single-character typcategory code to the
// category labels spec.md §4.D's dispatch table names.
func categoryName(code string) string {
	switch code {
	case "B":
		return "Boolean"
	case "N":
		return "Numeric"
	case "D":
		return "DateTime"
	case "V":
		return "BitString"
	case "T":
		return "TimeSpan"
	case "S":
		return "String"
	case "U":
		return "Bytea"
	default:
		return "String"
	}
}

// ClassifyWireType maps a Debezium/OLR schema "type" token to a DbzType.
func ClassifyWireType(token string) event.DbzType {
	switch strings.ToLower(token) {
	case "float32", "float":
		return event.Float32
	case "float64", "double":
		return event.Float64
	case "bytes":
		return event.Bytes
	case "int8":
		return event.Int8
	case "int16":
		return event.Int16
	case "int32":
		return event.Int32
	case "int64":
		return event.Int64
	case "struct":
		return event.Struct
	default:
		return event.String
	}
}

// ClassifyTimeRep maps a Debezium schema "name" (semantic type) to a
// TimeRep. An empty name (no semantic type attached) is TimeRepUndef.
func ClassifyTimeRep(name string) event.TimeRep {
	switch name {
	case "io.debezium.time.Date":
		return event.TimeRepDate
	case "io.debezium.time.Time":
		return event.TimeRepTime
	case "io.debezium.time.MicroTime":
		return event.TimeRepMicroTime
	case "io.debezium.time.NanoTime":
		return event.TimeRepNanoTime
	case "io.debezium.time.Timestamp":
		return event.TimeRepTimestamp
	case "io.debezium.time.MicroTimestamp":
		return event.TimeRepMicroTimestamp
	case "io.debezium.time.NanoTimestamp":
		return event.TimeRepNanoTimestamp
	case "io.debezium.time.ZonedTimestamp":
		return event.TimeRepZonedTimestamp
	case "io.debezium.time.MicroDuration":
		return event.TimeRepMicroDuration
	case "io.debezium.data.VariableScaleDecimal", "io.debezium.data.geometry.Geometry":
		return event.TimeRepVariableScale
	case "io.debezium.data.Enum":
		return event.TimeRepEnum
	default:
		return event.TimeRepUndef
	}
}
