package schemacache

import (
	"context"
	"os"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyWireType(t *testing.T) {
	assert.Equal(t, event.Int32, ClassifyWireType("int32"))
	assert.Equal(t, event.Float32, ClassifyWireType("float"))
	assert.Equal(t, event.Float64, ClassifyWireType("double"))
	assert.Equal(t, event.Struct, ClassifyWireType("struct"))
	assert.Equal(t, event.String, ClassifyWireType("unknown-token"))
}

func TestClassifyTimeRep(t *testing.T) {
	assert.Equal(t, event.TimeRepDate, ClassifyTimeRep("io.debezium.time.Date"))
	assert.Equal(t, event.TimeRepVariableScale, ClassifyTimeRep("io.debezium.data.VariableScaleDecimal"))
	assert.Equal(t, event.TimeRepVariableScale, ClassifyTimeRep("io.debezium.data.geometry.Geometry"))
	assert.Equal(t, event.TimeRepEnum, ClassifyTimeRep("io.debezium.data.Enum"))
	assert.Equal(t, event.TimeRepUndef, ClassifyTimeRep(""))
}

func TestCategoryName(t *testing.T) {
	assert.Equal(t, "Numeric", categoryName("N"))
	assert.Equal(t, "DateTime", categoryName("D"))
	assert.Equal(t, "String", categoryName("Z"))
}

func TestBuildPositions(t *testing.T) {
	e := &Entry{}
	e.BuildPositions([]SchemaField{
		{FieldName: "order_id", Type: "int32"},
		{FieldName: "order_date", Type: "int32", Name: "io.debezium.time.Date"},
		{FieldName: "total", Type: "bytes", Scale: 2},
	})

	require.Len(t, e.Positions, 3)
	assert.Equal(t, PositionEntry{Position: 0, WireType: event.Int32, TimeRep: event.TimeRepUndef}, e.Positions["order_id"])
	assert.Equal(t, event.TimeRepDate, e.Positions["order_date"].TimeRep)
	assert.Equal(t, 1, e.Positions["order_date"].Position)
	assert.Equal(t, 2, e.Positions["total"].Scale)
}

func TestCacheGetAndEvictLive(t *testing.T) {
	connString := os.Getenv("TEST_POSTGRES_CONN_STRING")
	if connString == "" {
		t.Skip("TEST_POSTGRES_CONN_STRING not set")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connString)
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schemacache_test (id int PRIMARY KEY, name text)`)
	require.NoError(t, err)
	defer conn.Exec(ctx, `DROP TABLE schemacache_test`)

	c := New(conn)
	entry, err := c.Get(ctx, "public", "schemacache_test")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.AttrCount)
	assert.True(t, entry.Attributes["id"].IsPrimaryKey)
	assert.False(t, entry.Attributes["name"].IsPrimaryKey)

	c.Evict("public", "schemacache_test")
	_, ok := c.entries[cacheKey{"public", "schemacache_test"}]
	assert.False(t, ok)

	_, err = c.Get(ctx, "public", "does_not_exist")
	assert.Error(t, err)
}
