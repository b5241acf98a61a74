// Package olr parses OpenLogReplicator's framed protobuf/JSON change
// stream (spec.md §4.F) into the neutral event.Ddl/event.Dml/
// event.TxBoundary records, mirroring pkg/synchdb/parser/debezium's
// shape for the Oracle-via-OLR source kind.
package olr

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/ident"
	"github.com/cdcbridge/synchdb/pkg/synchdb/oracleddl"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// Adapter satisfies pkg/synchdb/connector.Parser by fixing Parse's
// schemas/rulesStore/ddlParser arguments for the lifetime of one
// connector and unwrapping ParsedEvent's sum type into the
// three-pointer shape Connector expects.
type Adapter struct {
	Schemas   *schemacache.Cache
	Rules     *rules.Store
	DDLParser oracleddl.Parser
}

// NewAdapter builds an Adapter bound to the given schema cache, rule
// store, and injected Oracle DDL grammar, for the oracle-olr connector
// kind.
func NewAdapter(schemas *schemacache.Cache, rulesStore *rules.Store, ddlParser oracleddl.Parser) *Adapter {
	return &Adapter{Schemas: schemas, Rules: rulesStore, DDLParser: ddlParser}
}

func (a *Adapter) Parse(ctx context.Context, raw []byte) (*event.Ddl, *event.Dml, *event.TxBoundary, error) {
	parsed, err := Parse(ctx, raw, a.Schemas, a.Rules, a.DDLParser)
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

// column is one element of payload.columns: OLR's on-wire schema block
// supplies only a name and a wire-type token, unlike Debezium's fuller
// schema section. Each value's destination-catalog metadata (DestOID,
// DestCategory, DestTypeName, DestTypmod, IsPrimaryKey, Ordinal) comes
// from the schemacache entry instead, filled in by buildColumnValues.
type column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type payloadEnvelope struct {
	Op      string                 `json:"op"`
	SQL     string                 `json:"sql"`
	Schema  string                 `json:"schema"`
	Table   string                 `json:"table"`
	Before  map[string]interface{} `json:"before"`
	After   map[string]interface{} `json:"after"`
	Columns []column               `json:"columns"`
}

type envelope struct {
	Payload payloadEnvelope `json:"payload"`
}

// txOps is the set of payload.op tokens OLR emits for transaction
// boundaries; anything else with no sql/before/after is malformed.
var txOps = map[string]bool{"begin": true, "commit": true}

// Parse dispatches one raw OLR change-stream frame to the DDL, DML, or
// transaction-boundary branch by inspecting payload.op. DDL text is
// normalised (ddl.go) and handed to ddlParser, the injected Oracle
// grammar capability (pkg/synchdb/oracleddl); schemas resolves the
// destination catalog entry for DML rows and may be nil for DDL-only or
// transaction-boundary frames. rulesStore applies any table/column
// rename rules in effect for the connector.
func Parse(ctx context.Context, raw []byte, schemas *schemacache.Cache, rulesStore *rules.Store, ddlParser oracleddl.Parser) (*ParsedEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: top-level unmarshal: %v", synchdberr.ErrMalformedEvent, err)
	}

	p := env.Payload
	switch {
	case p.Op == "ddl":
		ddl, err := parseDDL(p, ddlParser)
		if err != nil {
			return nil, err
		}
		return &ParsedEvent{Kind: KindDDL, Ddl: ddl}, nil
	case txOps[p.Op]:
		return &ParsedEvent{Kind: KindTxBoundary, Tx: &event.TxBoundary{Status: p.Op}}, nil
	case p.Op != "":
		dml, err := parseDML(ctx, p, schemas, rulesStore)
		if err != nil {
			return nil, err
		}
		return &ParsedEvent{Kind: KindDML, Dml: dml}, nil
	default:
		return nil, fmt.Errorf("%w: payload.op missing", synchdberr.ErrMalformedEvent)
	}
}

// parseDDL normalises payload.sql and hands it to ddlParser, translating
// the returned AST into an event.Ddl. Matches seed scenario S3 (Oracle
// DROP TABLE arriving via OLR).
func parseDDL(p payloadEnvelope, ddlParser oracleddl.Parser) (*event.Ddl, error) {
	if p.SQL == "" {
		return nil, fmt.Errorf("%w: ddl payload missing sql", synchdberr.ErrMalformedEvent)
	}
	if ddlParser == nil {
		return nil, fmt.Errorf("%w: no oracle ddl parser configured", synchdberr.ErrUnsupportedDdl)
	}

	normalized, err := NormalizeDDL(p.SQL)
	if err != nil {
		return nil, err
	}
	ast, err := ddlParser.Parse(normalized)
	if err != nil {
		return nil, err
	}

	sourceID := ident.FoldLower(ast.Schema + "." + ast.Table)

	var columns []event.ColumnDescriptor
	for _, c := range ast.Columns {
		columns = append(columns, event.ColumnDescriptor{
			Name:       ident.FoldLower(c.Name),
			RemoteType: c.RemoteType,
			Length:     c.Length,
			Scale:      c.Scale,
			Optional:   c.Optional,
		})
	}

	pkJSON := "[]"
	if len(ast.PrimaryKey) > 0 {
		b, err := json.Marshal(ast.PrimaryKey)
		if err != nil {
			return nil, fmt.Errorf("olr: marshal primary key: %w", err)
		}
		pkJSON = string(b)
	}

	return &event.Ddl{
		SourceID:       sourceID,
		Kind:           ast.Kind,
		AlterSubkind:   ast.AlterSubkind,
		PrimaryKeyJSON: pkJSON,
		Columns:        columns,
		ConstraintName: ast.ConstraintName,
	}, nil
}

// parseDML builds an event.Dml from payload.schema/table/op/before/
// after, resolving the destination table via schemas and any rename
// rule in rulesStore. Destination column metadata for each value is
// copied from the cached entry by buildColumnValues.
func parseDML(ctx context.Context, p payloadEnvelope, schemas *schemacache.Cache, rulesStore *rules.Store) (*event.Dml, error) {
	if p.Schema == "" || p.Table == "" {
		return nil, fmt.Errorf("%w: dml payload missing schema/table", synchdberr.ErrMalformedEvent)
	}
	if schemas == nil {
		return nil, fmt.Errorf("%w: no schema cache configured", synchdberr.ErrMalformedEvent)
	}

	sourceID := ident.FoldLower(p.Schema + "." + p.Table)

	destSchema, destTable := p.Schema, p.Table
	if mapped, ok := rulesStore.ResolveName(sourceID, rules.ObjectTable); ok {
		_, s, t, err := ident.Split(mapped, false)
		if err != nil {
			return nil, err
		}
		destSchema, destTable = s, t
	}
	destSchema = ident.FoldLower(destSchema)
	destTable = ident.FoldLower(destTable)

	op, err := dmlOp(p.Op)
	if err != nil {
		return nil, err
	}

	entry, err := schemas.Get(ctx, destSchema, destTable)
	if err != nil {
		return nil, err
	}

	wireTypes := make(map[string]event.DbzType, len(p.Columns))
	for _, c := range p.Columns {
		wireTypes[ident.FoldLower(c.Name)] = schemacache.ClassifyWireType(c.Type)
	}

	dml := &event.Dml{
		Op:           op,
		SourceID:     sourceID,
		DestID:       destSchema + "." + destTable,
		DestTableOID: entry.TableOID,
	}

	if op == event.OpUpdate || op == event.OpDelete {
		cols, err := buildColumnValues(p.Before, sourceID, rulesStore, entry, wireTypes)
		if err != nil {
			return nil, err
		}
		dml.Before = cols
	}
	if op == event.OpCreate || op == event.OpUpdate {
		cols, err := buildColumnValues(p.After, sourceID, rulesStore, entry, wireTypes)
		if err != nil {
			return nil, err
		}
		dml.After = cols
	}
	dml.ColumnCount = len(dml.After)
	if dml.ColumnCount == 0 {
		dml.ColumnCount = len(dml.Before)
	}

	return dml, nil
}

func dmlOp(token string) (event.Op, error) {
	switch token {
	case "c", "r", "u", "d":
		return event.Op(token[0]), nil
	default:
		return 0, fmt.Errorf("%w: unrecognised op %q", synchdberr.ErrMalformedEvent, token)
	}
}

// buildColumnValues walks one before/after row image and joins it
// against the destination attribute cache, the per-column wire-type map
// parsed from payload.columns, and any column rename rule.
func buildColumnValues(row map[string]interface{}, sourceID string, rulesStore *rules.Store, entry *schemacache.Entry, wireTypes map[string]event.DbzType) ([]event.ColumnValue, error) {
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

		cols = append(cols, event.ColumnValue{
			Name:         destName,
			RemoteName:   remoteLower,
			Value:        stringifyValue(raw),
			DestOID:      attr.OID,
			DestCategory: attr.Category,
			DestTypeName: attr.TypeName,
			DestTypmod:   attr.Typmod,
			WireType:     wireTypes[remoteLower],
			IsPrimaryKey: attr.IsPrimaryKey,
			Ordinal:      attr.Ordinal,
		})
	}
	event.SortByOrdinal(cols)
	return cols, nil
}

// stringifyValue renders one decoded JSON value as the plain-text form
// the codec expects, matching pkg/synchdb/parser/debezium's convention.
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
