package apply

import (
	"context"
	"errors"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/convert"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	oid      uint32
	inserted []convert.TupleValue
	updated  struct{ before, after []convert.TupleValue }
	deleted  []convert.TupleValue
}

func (f *fakeTable) OID() uint32 { return f.oid }

func (f *fakeTable) InsertTuple(ctx context.Context, values []convert.TupleValue) error {
	f.inserted = values
	return nil
}

func (f *fakeTable) UpdateTuple(ctx context.Context, before, after []convert.TupleValue) error {
	f.updated.before, f.updated.after = before, after
	return nil
}

func (f *fakeTable) DeleteTuple(ctx context.Context, before []convert.TupleValue) error {
	f.deleted = before
	return nil
}

type fakeSession struct {
	utilitySQL []string
	dmlSQL     []string
	table      *fakeTable
	execErr    error
	openErr    error
}

func (f *fakeSession) ExecUtility(ctx context.Context, sql string) error {
	if f.execErr != nil {
		return f.execErr
	}
	f.utilitySQL = append(f.utilitySQL, sql)
	return nil
}

func (f *fakeSession) ExecDML(ctx context.Context, sql string) (int64, error) {
	if f.execErr != nil {
		return 0, f.execErr
	}
	f.dmlSQL = append(f.dmlSQL, sql)
	return 1, nil
}

func (f *fakeSession) ResolveSchema(ctx context.Context, name string) (uint32, error) {
	return 1, nil
}

func (f *fakeSession) OpenTable(ctx context.Context, oid uint32) (Table, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.table.oid = oid
	return f.table, nil
}

func (f *fakeSession) Commit(ctx context.Context) error   { return nil }
func (f *fakeSession) Rollback(ctx context.Context) error { return nil }

type fakeCatalog struct {
	recorded []AttrMapping
	err      error
}

func (f *fakeCatalog) RecordMapping(ctx context.Context, m AttrMapping) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, m)
	return nil
}

func TestApplyDDLRecordsMappings(t *testing.T) {
	sess := &fakeSession{}
	catalog := &fakeCatalog{}
	a := New(sess, catalog)

	mappings := []AttrMapping{
		{DestAttnum: 1, RemoteID: "shop.orders", RemoteName: "order_id", RemoteType: "int"},
		{DestAttnum: 2, RemoteID: "shop.orders", RemoteName: "order_date", RemoteType: "date"},
	}
	err := a.ApplyDDL(context.Background(), "conn1", "mysql", "CREATE TABLE shop.orders (...);", mappings)
	require.NoError(t, err)

	require.Equal(t, []string{"CREATE TABLE shop.orders (...);"}, sess.utilitySQL)
	require.Len(t, catalog.recorded, 2)
	assert.Equal(t, "conn1", catalog.recorded[0].ConnectorName)
	assert.Equal(t, "mysql", catalog.recorded[0].ConnectorKind)
	assert.Equal(t, "order_date", catalog.recorded[1].RemoteName)
}

func TestApplyDDLSkipsRecordingWithNilCatalog(t *testing.T) {
	sess := &fakeSession{}
	a := New(sess, nil)

	err := a.ApplyDDL(context.Background(), "conn1", "mysql", "DROP TABLE shop.orders;", []AttrMapping{{DestAttnum: 1}})
	require.NoError(t, err)
}

func TestApplyDDLWrapsExecError(t *testing.T) {
	sess := &fakeSession{execErr: errors.New("syntax error")}
	a := New(sess, nil)

	err := a.ApplyDDL(context.Background(), "conn1", "mysql", "CREATE TABLE bad (;", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, synchdberr.ErrApply)

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, "CREATE TABLE bad (;", applyErr.SQL)
}

func TestApplyDMLTextSQL(t *testing.T) {
	sess := &fakeSession{}
	a := New(sess, nil)

	stmt := &convert.Statement{SQL: "INSERT INTO shop.orders (id) VALUES (1);"}
	err := a.ApplyDML(context.Background(), stmt, 'c')
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO shop.orders (id) VALUES (1);"}, sess.dmlSQL)
}

func TestApplyDMLTextSQLWrapsExecError(t *testing.T) {
	sess := &fakeSession{execErr: errors.New("constraint violation")}
	a := New(sess, nil)

	stmt := &convert.Statement{SQL: "INSERT INTO shop.orders (id) VALUES (1);"}
	err := a.ApplyDML(context.Background(), stmt, 'c')
	require.Error(t, err)
	assert.ErrorIs(t, err, synchdberr.ErrApply)
}

func TestApplyDMLTupleInsert(t *testing.T) {
	table := &fakeTable{}
	sess := &fakeSession{table: table}
	a := New(sess, nil)

	stmt := &convert.Statement{TableOID: 42, After: []convert.TupleValue{{Value: "1", OID: 23, Ordinal: 1}}}
	err := a.ApplyDML(context.Background(), stmt, 'c')
	require.NoError(t, err)
	assert.Equal(t, uint32(42), table.oid)
	require.Len(t, table.inserted, 1)
	assert.Equal(t, "1", table.inserted[0].Value)
}

func TestApplyDMLTupleUpdate(t *testing.T) {
	table := &fakeTable{}
	sess := &fakeSession{table: table}
	a := New(sess, nil)

	stmt := &convert.Statement{
		TableOID: 42,
		Before:   []convert.TupleValue{{Value: "1", OID: 23, Ordinal: 1}},
		After:    []convert.TupleValue{{Value: "2", OID: 23, Ordinal: 1}},
	}
	err := a.ApplyDML(context.Background(), stmt, 'u')
	require.NoError(t, err)
	assert.Equal(t, "1", table.updated.before[0].Value)
	assert.Equal(t, "2", table.updated.after[0].Value)
}

func TestApplyDMLTupleDelete(t *testing.T) {
	table := &fakeTable{}
	sess := &fakeSession{table: table}
	a := New(sess, nil)

	stmt := &convert.Statement{TableOID: 42, Before: []convert.TupleValue{{Value: "1", OID: 23, Ordinal: 1}}}
	err := a.ApplyDML(context.Background(), stmt, 'd')
	require.NoError(t, err)
	assert.Equal(t, "1", table.deleted[0].Value)
}

func TestApplyDMLUnrecognisedOp(t *testing.T) {
	table := &fakeTable{}
	sess := &fakeSession{table: table}
	a := New(sess, nil)

	stmt := &convert.Statement{TableOID: 42}
	err := a.ApplyDML(context.Background(), stmt, 'x')
	require.Error(t, err)
	assert.ErrorIs(t, err, synchdberr.ErrMalformedEvent)
}
