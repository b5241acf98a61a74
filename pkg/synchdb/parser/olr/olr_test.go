package olr

import (
	"context"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/oracleddl"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func empCache() *schemacache.Cache {
	c := schemacache.New(nil)
	c.Preload("hr", "emp", &schemacache.Entry{
		Schema:   "hr",
		Table:    "emp",
		TableOID: 20001,
		Attributes: map[string]schemacache.Attribute{
			"id":   {Name: "id", OID: 20, Ordinal: 1, Category: "Numeric", TypeName: "bigint", IsPrimaryKey: true},
			"name": {Name: "name", OID: 25, Ordinal: 2, Category: "String", TypeName: "text"},
		},
		Positions: make(map[string]schemacache.PositionEntry),
		AttrCount: 2,
	})
	return c
}

func TestNormalizeDDLStripsSysBinSuffix(t *testing.T) {
	got, err := NormalizeDDL(`DROP TABLE HR.EMP AS SYS_BIN$a8FQ1w9mQZSTQw9eDpFFAg==$0`)
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE HR.EMP", got)
}

func TestNormalizeDDLTruncatesStorageClause(t *testing.T) {
	got, err := NormalizeDDL(`CREATE TABLE HR.EMP (ID NUMBER(10,0), NAME VARCHAR2(50)) TABLESPACE USERS STORAGE (INITIAL 100K)`)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE HR.EMP (ID NUMBER(10,0), NAME VARCHAR2(50));`, got)
}

func TestNormalizeDDLRejectsOutsideWhitelist(t *testing.T) {
	_, err := NormalizeDDL(`GRANT SELECT ON HR.EMP TO SCOTT`)
	assert.Error(t, err)
}

// TestParseDDLDropScenario exercises seed scenario S3: Oracle DROP via
// OLR, normalised then parsed via a stub OracleDDLParser.
func TestParseDDLDropScenario(t *testing.T) {
	stub := oracleddl.NewStubParser()
	stub.Register(`DROP TABLE HR.EMP`, &oracleddl.AST{
		Kind:   event.DdlDrop,
		Schema: "HR",
		Table:  "EMP",
	})

	raw := []byte(`{"payload":{"op":"ddl","sql":"DROP TABLE HR.EMP AS SYS_BIN$xyz==$0","scn":1001,"c_scn":991}}`)
	parsed, err := Parse(context.Background(), raw, nil, rules.New(), stub)
	require.NoError(t, err)
	require.Equal(t, KindDDL, parsed.Kind)
	assert.Equal(t, event.DdlDrop, parsed.Ddl.Kind)
	assert.Equal(t, "hr.emp", parsed.Ddl.SourceID)
}

func TestParseTxBoundary(t *testing.T) {
	raw := []byte(`{"payload":{"op":"begin","scn":1001,"c_scn":991}}`)
	parsed, err := Parse(context.Background(), raw, nil, rules.New(), nil)
	require.NoError(t, err)
	require.Equal(t, KindTxBoundary, parsed.Kind)
	assert.Equal(t, "begin", parsed.Tx.Status)
}

func TestParseDMLInsert(t *testing.T) {
	raw := []byte(`{
		"payload": {
			"op": "c",
			"schema": "HR",
			"table": "EMP",
			"after": {"ID": 7, "NAME": "new"},
			"columns": [
				{"name": "ID", "type": "int64"},
				{"name": "NAME", "type": "string"}
			]
		}
	}`)
	parsed, err := Parse(context.Background(), raw, empCache(), rules.New(), nil)
	require.NoError(t, err)
	require.Equal(t, KindDML, parsed.Kind)
	assert.Equal(t, event.OpCreate, parsed.Dml.Op)
	assert.Equal(t, "hr.emp", parsed.Dml.SourceID)
	require.Len(t, parsed.Dml.After, 2)
}

func TestParseMalformedNoPayload(t *testing.T) {
	_, err := Parse(context.Background(), []byte(`{}`), nil, rules.New(), nil)
	assert.Error(t, err)
}
