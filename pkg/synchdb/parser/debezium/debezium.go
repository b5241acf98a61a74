// Package debezium parses Debezium-shaped change event JSON (the wire
// format produced by the Debezium Oracle/MySQL/SQL Server connectors,
// and by PostgreSQL's own pgoutput-to-Debezium bridge) into the neutral
// event.Ddl/event.Dml/event.TxBoundary records, per spec.md §4.E.
package debezium

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/ident"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
	"github.com/cdcbridge/synchdb/pkg/util"
)

// Adapter satisfies pkg/synchdb/connector.Parser by fixing Parse's
// schemas/rulesStore/useDB arguments for the lifetime of one connector
// and unwrapping ParsedEvent's sum type into the three-pointer shape
// Connector expects.
type Adapter struct {
	Schemas *schemacache.Cache
	Rules   *rules.Store
	UseDB   bool
}

// NewAdapter builds an Adapter bound to the given schema cache and rule
// store, for the mysql/sqlserver/oracle-debezium connector kinds.
func NewAdapter(schemas *schemacache.Cache, rulesStore *rules.Store, useDB bool) *Adapter {
	return &Adapter{Schemas: schemas, Rules: rulesStore, UseDB: useDB}
}

func (a *Adapter) Parse(ctx context.Context, raw []byte) (*event.Ddl, *event.Dml, *event.TxBoundary, error) {
	parsed, err := Parse(ctx, raw, a.Schemas, a.Rules, a.UseDB)
	if err != nil {
		return nil, nil, nil, err
	}
	return parsed.Ddl, parsed.Dml, parsed.Tx, nil
}

// Kind classifies a parsed event.
type Kind int

const (
	KindDDL Kind = iota
	KindDML
	KindTxBoundary
)

// ParsedEvent is the sum-type result of Parse: exactly one of Ddl, Dml,
// or Tx is set, selected by Kind.
type ParsedEvent struct {
	Kind Kind
	Ddl  *event.Ddl
	Dml  *event.Dml
	Tx   *event.TxBoundary
}

// Parse dispatches a raw change event to the DDL, DML, or transaction-
// boundary branch by inspecting payload.source/payload.op/payload.status,
// matching the C source's parseDBZDdl/parseDBZDML/transaction-boundary
// branches. useDB controls how a two-part identifier is disambiguated
// (db.table vs schema.table) when the connector has no explicit schema
// concept (MySQL); Oracle and SQL Server sources always carry a schema.
func Parse(ctx context.Context, raw []byte, schemas *schemacache.Cache, rulesStore *rules.Store, useDB bool) (*ParsedEvent, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: top-level unmarshal: %v", synchdberr.ErrMalformedEvent, err)
	}

	payload, ok := asObject(root["payload"])
	if !ok {
		return nil, fmt.Errorf("%w: missing payload", synchdberr.ErrMalformedEvent)
	}

	source, hasSource := asObject(payload["source"])
	if !hasSource {
		return parseTxBoundary(payload)
	}

	if _, isDML := payload["op"]; isDML {
		dml, err := parseDML(ctx, root, payload, source, schemas, rulesStore, useDB)
		if err != nil {
			return nil, err
		}
		return &ParsedEvent{Kind: KindDML, Dml: dml}, nil
	}

	if _, isDDL := payload["tableChanges"]; isDDL {
		ddl, err := parseDDL(payload, useDB)
		if err != nil {
			return nil, err
		}
		return &ParsedEvent{Kind: KindDDL, Ddl: ddl}, nil
	}

	return nil, fmt.Errorf("%w: payload has neither op nor tableChanges", synchdberr.ErrMalformedEvent)
}

func parseTxBoundary(payload map[string]interface{}) (*ParsedEvent, error) {
	status, ok := payload["status"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: transaction boundary missing status", synchdberr.ErrMalformedEvent)
	}
	return &ParsedEvent{Kind: KindTxBoundary, Tx: &event.TxBoundary{Status: status}}, nil
}

// parseDDL builds an event.Ddl from payload.tableChanges[0], following
// the field layout original_source's build_tableinfo walks: id, type,
// table.columns[], table.primaryKeyColumnNames.
func parseDDL(payload map[string]interface{}, useDB bool) (*event.Ddl, error) {
	tableChanges, ok := payload["tableChanges"].([]interface{})
	if !ok || len(tableChanges) == 0 {
		return nil, fmt.Errorf("%w: empty tableChanges", synchdberr.ErrMalformedEvent)
	}
	change, ok := asObject(tableChanges[0])
	if !ok {
		return nil, fmt.Errorf("%w: tableChanges[0] is not an object", synchdberr.ErrMalformedEvent)
	}

	id, _ := util.Jq(change, "id")
	if id == "" {
		return nil, fmt.Errorf("%w: tableChanges[0].id missing", synchdberr.ErrMalformedEvent)
	}
	id = unquoteDottedID(id)
	if _, _, _, err := ident.Split(id, useDB); err != nil {
		return nil, err
	}

	kindToken, _ := util.Jq(change, "type")
	kind, ok := ddlKindTokens[strings.ToUpper(strings.Trim(kindToken, `"`))]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognised DDL type %q", synchdberr.ErrUnsupportedDdl, kindToken)
	}

	table, _ := asObject(change["table"])
	var columns []event.ColumnDescriptor
	if rawColumns, ok := table["columns"].([]interface{}); ok {
		for _, rc := range rawColumns {
			col, ok := asObject(rc)
			if !ok {
				continue
			}
			columns = append(columns, event.ColumnDescriptor{
				Name:          strings.ToLower(stringField(col, "name")),
				RemoteType:    strings.ToLower(stringField(col, "typeName")),
				Length:        intField(col, "length"),
				Scale:         intField(col, "scale"),
				Optional:      boolFieldDefault(col, "optional", true),
				AutoIncrement: boolFieldDefault(col, "autoIncremented", false),
				Default:       stringField(col, "defaultValueExpression"),
				EnumValues:    stringField(col, "enumValues"),
				Charset:       stringField(col, "charsetName"),
			})
		}
	}

	var pkJSON string
	if pkNames, ok := table["primaryKeyColumnNames"].([]interface{}); ok {
		b, _ := json.Marshal(pkNames)
		pkJSON = string(b)
	} else {
		pkJSON = "[]"
	}

	return &event.Ddl{
		SourceID:       ident.FoldLower(id),
		Kind:           kind,
		PrimaryKeyJSON: pkJSON,
		Columns:        columns,
	}, nil
}

// unquoteDottedID strips a double-quote wrapper from each dot-separated
// part of a table-changes id like `"db"."schema"."table"`, matching how
// Debezium renders quoted identifiers in tableChanges[0].id.
func unquoteDottedID(id string) string {
	parts := strings.Split(id, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(p, `"`)
	}
	return strings.Join(parts, ".")
}

var ddlKindTokens = map[string]event.DdlKind{
	"CREATE": event.DdlCreate,
	"ALTER":  event.DdlAlter,
	"DROP":   event.DdlDrop,
}

// parseDML builds an event.Dml from payload.op/payload.before/
// payload.after, matching original_source's parseDBZDML: form the
// remote object id from source.db[.schema].table, look up the
// destination schema/table via schemacache, walk before/after as flat
// key-value maps (a nested object/array value is re-serialized whole,
// matching the struct wire-type convention codec.Decode expects).
func parseDML(ctx context.Context, root, payload, source map[string]interface{}, schemas *schemacache.Cache, rulesStore *rules.Store, useDB bool) (*event.Dml, error) {
	db := stringField(source, "db")
	if db == "" {
		return nil, fmt.Errorf("%w: payload.source.db missing", synchdberr.ErrMalformedEvent)
	}
	schema := stringField(source, "schema")
	table := stringField(source, "table")
	if table == "" {
		return nil, fmt.Errorf("%w: payload.source.table missing", synchdberr.ErrMalformedEvent)
	}

	parts := []string{db}
	if schema != "" {
		parts = append(parts, schema)
	}
	parts = append(parts, table)
	sourceID := ident.FoldLower(strings.Join(parts, "."))

	destSchema, destTable := schema, table
	if mapped, ok := rulesStore.ResolveName(sourceID, rules.ObjectTable); ok {
		_, s, t, err := ident.Split(mapped, false)
		if err != nil {
			return nil, err
		}
		destSchema, destTable = s, t
	}
	if destSchema == "" {
		destSchema = "public"
	}

	opToken := stringField(payload, "op")
	if opToken == "" {
		return nil, fmt.Errorf("%w: payload.op missing", synchdberr.ErrMalformedEvent)
	}
	op := event.Op(opToken[0])

	entry, err := schemas.Get(ctx, destSchema, destTable)
	if err != nil {
		return nil, err
	}

	fields, err := extractRowFields(root, "after")
	if err != nil {
		return nil, err
	}
	entry.BuildPositions(fields)

	dml := &event.Dml{
		Op:           op,
		SourceID:     sourceID,
		DestID:       destSchema + "." + destTable,
		DestTableOID: entry.TableOID,
	}

	if op == event.OpUpdate || op == event.OpDelete {
		before, ok := asObject(payload["before"])
		if ok {
			cols, err := buildColumnValues(before, sourceID, rulesStore, entry)
			if err != nil {
				return nil, err
			}
			dml.Before = cols
		}
	}
	if op == event.OpCreate || op == event.OpRead || op == event.OpUpdate {
		after, ok := asObject(payload["after"])
		if ok {
			cols, err := buildColumnValues(after, sourceID, rulesStore, entry)
			if err != nil {
				return nil, err
			}
			dml.After = cols
		}
	}
	dml.ColumnCount = len(dml.After)
	if dml.ColumnCount == 0 {
		dml.ColumnCount = len(dml.Before)
	}

	return dml, nil
}

// buildColumnValues walks one flattened before/after row image and joins
// it against the destination attribute cache and the event's position
// map, matching original_source's per-key lookups into typeidhash and
// namejsonposhash.
func buildColumnValues(row map[string]interface{}, sourceID string, rulesStore *rules.Store, entry *schemacache.Entry) ([]event.ColumnValue, error) {
	cols := make([]event.ColumnValue, 0, len(row))
	for remoteName, raw := range row {
		remoteLower := ident.FoldLower(remoteName)

		destName := remoteLower
		if mapped, ok := rulesStore.ResolveName(sourceID+"."+remoteLower, rules.ObjectColumn); ok {
			destName = ident.FoldLower(mapped)
		}

		attr, ok := entry.Attributes[destName]
		if !ok {
			return nil, fmt.Errorf("%w: %s (destination %s)", synchdberr.ErrUnknownColumn, remoteName, destName)
		}
		pos, ok := entry.Positions[remoteLower]
		if !ok {
			return nil, fmt.Errorf("%w: no schema position for %s", synchdberr.ErrMalformedEventSchema, remoteName)
		}

		cols = append(cols, event.ColumnValue{
			Name:         destName,
			RemoteName:   remoteLower,
			Value:        stringifyValue(raw),
			DestOID:      attr.OID,
			DestCategory: attr.Category,
			DestTypeName: attr.TypeName,
			DestTypmod:   attr.Typmod,
			WireType:     pos.WireType,
			TimeRep:      pos.TimeRep,
			Scale:        pos.Scale,
			IsPrimaryKey: attr.IsPrimaryKey,
			Ordinal:      attr.Ordinal,
		})
	}
	event.SortByOrdinal(cols)
	return cols, nil
}

// stringifyValue renders one decoded JSON value as the plain-text form
// the codec expects: null becomes the literal "NULL", scalars render
// directly, and nested objects/arrays (struct wire types: geometry,
// variable-scale decimals) are re-serialized whole so codec.Decode can
// re-parse them.
func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "NULL"
		}
		return string(b)
	}
}

// extractRowFields walks the event's schema.fields to find the named
// struct field ("before" or "after") and returns its nested fields as
// SchemaField descriptors, matching original_source's
// build_schema_jsonpos_hash.
func extractRowFields(root map[string]interface{}, fieldName string) ([]schemacache.SchemaField, error) {
	schemaSection, ok := asObject(root["schema"])
	if !ok {
		return nil, fmt.Errorf("%w: missing top-level schema section", synchdberr.ErrMalformedEventSchema)
	}
	topFields, ok := schemaSection["fields"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: schema.fields is not an array", synchdberr.ErrMalformedEventSchema)
	}

	for _, tf := range topFields {
		field, ok := asObject(tf)
		if !ok {
			continue
		}
		if stringField(field, "field") != fieldName {
			continue
		}
		nested, ok := field["fields"].([]interface{})
		if !ok {
			return nil, nil
		}
		out := make([]schemacache.SchemaField, 0, len(nested))
		for _, nf := range nested {
			nfield, ok := asObject(nf)
			if !ok {
				continue
			}
			scale := 0
			if params, ok := asObject(nfield["parameters"]); ok {
				if s, ok := params["scale"].(string); ok {
					if n, err := strconv.Atoi(s); err == nil {
						scale = n
					}
				}
			}
			out = append(out, schemacache.SchemaField{
				FieldName: stringField(nfield, "field"),
				Type:      stringField(nfield, "type"),
				Name:      stringField(nfield, "name"),
				Scale:     scale,
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: schema section has no %q field", synchdberr.ErrMalformedEventSchema, fieldName)
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func boolFieldDefault(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}
