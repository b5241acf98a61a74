package pg

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/apply"
	"github.com/cdcbridge/synchdb/pkg/synchdb/convert"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// connectTestPool returns a pool against TEST_POSTGRES_CONN_STRING,
// skipping the test if it isn't set, matching pkg/pgx/listen_test.go's
// gating style.
func connectTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	connString := os.Getenv("TEST_POSTGRES_CONN_STRING")
	if connString == "" {
		t.Skip("TEST_POSTGRES_CONN_STRING not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPGSessionExecUtilityAndDML(t *testing.T) {
	pool := connectTestPool(t)
	ctx := context.Background()

	schema := fmt.Sprintf("synchdb_test_%d", time.Now().UnixNano())
	_, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
	})

	sess, err := New(ctx, pool)
	require.NoError(t, err)

	require.NoError(t, sess.ExecUtility(ctx, fmt.Sprintf(
		"CREATE TABLE %s.orders (id integer PRIMARY KEY, total numeric(10,2));", schema)))

	rows, err := sess.ExecDML(ctx, fmt.Sprintf(
		"INSERT INTO %s.orders (id, total) VALUES (1, 12.50);", schema))
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	require.NoError(t, sess.Commit(ctx))

	var total string
	require.NoError(t, pool.QueryRow(ctx, fmt.Sprintf("SELECT total FROM %s.orders WHERE id = 1", schema)).Scan(&total))
	require.Equal(t, "12.50", total)
}

func TestPGSessionExecUtilityRejectsInvalidSQL(t *testing.T) {
	pool := connectTestPool(t)
	ctx := context.Background()

	sess, err := New(ctx, pool)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	err = sess.ExecUtility(ctx, "CREATE TABLE this is not valid sql (;")
	require.Error(t, err)
}

func TestPGSessionResolveSchemaAndOpenTable(t *testing.T) {
	pool := connectTestPool(t)
	ctx := context.Background()

	schema := fmt.Sprintf("synchdb_test_%d", time.Now().UnixNano())
	_, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
	})
	_, err = pool.Exec(ctx, fmt.Sprintf("CREATE TABLE %s.widgets (col_1 integer PRIMARY KEY, col_2 text)", schema))
	require.NoError(t, err)

	var oid uint32
	require.NoError(t, pool.QueryRow(ctx, "SELECT oid FROM pg_class WHERE relname = 'widgets'").Scan(&oid))

	sess, err := New(ctx, pool)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	schemaOid, err := sess.ResolveSchema(ctx, schema)
	require.NoError(t, err)
	require.NotZero(t, schemaOid)

	table, err := sess.OpenTable(ctx, oid)
	require.NoError(t, err)
	require.Equal(t, oid, table.OID())

	require.NoError(t, table.InsertTuple(ctx, []convert.TupleValue{
		{Ordinal: 1, Value: "1"},
		{Ordinal: 2, Value: "'hello'"},
	}))
	require.NoError(t, table.UpdateTuple(ctx,
		[]convert.TupleValue{{Ordinal: 1, Value: "1"}},
		[]convert.TupleValue{{Ordinal: 1, Value: "1"}, {Ordinal: 2, Value: "'updated'"}},
	))
	require.NoError(t, table.DeleteTuple(ctx, []convert.TupleValue{{Ordinal: 1, Value: "1"}}))
}

func TestAttrTableSyncRecordMapping(t *testing.T) {
	pool := connectTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS synchdb_attribute_catalog (
			connector_name text NOT NULL,
			connector_kind text NOT NULL,
			dest_attnum integer NOT NULL,
			remote_id text,
			remote_name text,
			remote_type text,
			PRIMARY KEY (connector_name, dest_attnum)
		)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(),
			"DELETE FROM synchdb_attribute_catalog WHERE connector_name = 'test-connector'")
	})

	sync := NewAttrTableSync(pool)
	require.NoError(t, sync.RecordMapping(ctx, apply.AttrMapping{
		ConnectorName: "test-connector",
		ConnectorKind: "mysql",
		DestAttnum:    1,
		RemoteID:      "1",
		RemoteName:    "id",
		RemoteType:    "int",
	}))

	// Upsert path: same (connector_name, dest_attnum) updates remote_type.
	require.NoError(t, sync.RecordMapping(ctx, apply.AttrMapping{
		ConnectorName: "test-connector",
		ConnectorKind: "mysql",
		DestAttnum:    1,
		RemoteID:      "1",
		RemoteName:    "id",
		RemoteType:    "bigint",
	}))

	var remoteType string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT remote_type FROM synchdb_attribute_catalog WHERE connector_name = 'test-connector' AND dest_attnum = 1",
	).Scan(&remoteType))
	require.Equal(t, "bigint", remoteType)
}
