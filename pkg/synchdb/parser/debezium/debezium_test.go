package debezium

import (
	"context"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersCache() *schemacache.Cache {
	c := schemacache.New(nil)
	c.Preload("public", "orders", &schemacache.Entry{
		Schema:   "public",
		Table:    "orders",
		TableOID: 16400,
		Attributes: map[string]schemacache.Attribute{
			"order_number": {Name: "order_number", OID: 23, Ordinal: 1, Category: "Numeric", TypeName: "integer"},
			"order_date":   {Name: "order_date", OID: 1082, Ordinal: 2, Category: "DateTime", TypeName: "date"},
			"purchaser":    {Name: "purchaser", OID: 23, Ordinal: 3, Category: "Numeric", TypeName: "integer", IsPrimaryKey: true},
		},
		Positions: make(map[string]schemacache.PositionEntry),
		AttrCount: 3,
	})
	return c
}

const ordersSchema = `{
	"field": "after",
	"fields": [
		{"field": "order_number", "type": "int32"},
		{"field": "order_date", "type": "int32", "name": "io.debezium.time.Date"},
		{"field": "purchaser", "type": "int32"}
	]
}`

func TestParseDMLInsert(t *testing.T) {
	raw := []byte(`{
		"schema": {"fields": [` + ordersSchema + `]},
		"payload": {
			"before": null,
			"after": {"order_number": 10001, "order_date": 19000, "purchaser": 1001},
			"source": {"db": "testdb", "schema": "public", "table": "orders"},
			"op": "c"
		}
	}`)

	parsed, err := Parse(context.Background(), raw, ordersCache(), rules.New(), false)
	require.NoError(t, err)
	require.Equal(t, KindDML, parsed.Kind)
	assert.Equal(t, event.OpCreate, parsed.Dml.Op)
	assert.Equal(t, "public.orders", parsed.Dml.DestID)
	assert.Equal(t, uint32(16400), parsed.Dml.DestTableOID)
	require.Len(t, parsed.Dml.After, 3)
	assert.Equal(t, "order_number", parsed.Dml.After[0].Name)
	assert.Equal(t, "10001", parsed.Dml.After[0].Value)
	assert.Equal(t, event.TimeRepDate, parsed.Dml.After[1].TimeRep)
}

func TestParseDMLDeleteUsesBefore(t *testing.T) {
	raw := []byte(`{
		"schema": {"fields": [` + ordersSchema + `]},
		"payload": {
			"before": {"order_number": 10001, "order_date": 19000, "purchaser": 1001},
			"after": null,
			"source": {"db": "testdb", "schema": "public", "table": "orders"},
			"op": "d"
		}
	}`)

	parsed, err := Parse(context.Background(), raw, ordersCache(), rules.New(), false)
	require.NoError(t, err)
	assert.Equal(t, event.OpDelete, parsed.Dml.Op)
	require.Len(t, parsed.Dml.Before, 3)
	assert.Empty(t, parsed.Dml.After)
}

func TestParseDMLUnknownColumnErrors(t *testing.T) {
	raw := []byte(`{
		"schema": {"fields": [` + ordersSchema + `]},
		"payload": {
			"after": {"order_number": 1, "order_date": 1, "purchaser": 1, "mystery": "x"},
			"before": null,
			"source": {"db": "testdb", "schema": "public", "table": "orders"},
			"op": "c"
		}
	}`)

	_, err := Parse(context.Background(), raw, ordersCache(), rules.New(), false)
	assert.Error(t, err)
}

func TestParseDDLCreateTable(t *testing.T) {
	raw := []byte(`{
		"payload": {
			"source": {"db": "testdb", "schema": "public", "table": "orders"},
			"tableChanges": [{
				"id": "\"testdb\".\"public\".\"orders\"",
				"type": "CREATE",
				"table": {
					"primaryKeyColumnNames": ["order_number"],
					"columns": [
						{"name": "order_number", "typeName": "INT", "length": null, "scale": null, "optional": false, "autoIncremented": true},
						{"name": "order_date", "typeName": "DATE", "optional": true}
					]
				}
			}]
		}
	}`)

	parsed, err := Parse(context.Background(), raw, nil, rules.New(), false)
	require.NoError(t, err)
	require.Equal(t, KindDDL, parsed.Kind)
	assert.Equal(t, event.DdlCreate, parsed.Ddl.Kind)
	require.Len(t, parsed.Ddl.Columns, 2)
	assert.Equal(t, "order_number", parsed.Ddl.Columns[0].Name)
	assert.True(t, parsed.Ddl.Columns[0].AutoIncrement)
	assert.Equal(t, `["order_number"]`, parsed.Ddl.PrimaryKeyJSON)
}

func TestParseTxBoundary(t *testing.T) {
	raw := []byte(`{"payload": {"status": "BEGIN"}}`)
	parsed, err := Parse(context.Background(), raw, nil, rules.New(), false)
	require.NoError(t, err)
	require.Equal(t, KindTxBoundary, parsed.Kind)
	assert.Equal(t, "BEGIN", parsed.Tx.Status)
}

func TestParseMalformedEventNoPayload(t *testing.T) {
	_, err := Parse(context.Background(), []byte(`{}`), nil, rules.New(), false)
	assert.Error(t, err)
}
