// Package apply executes converted DDL/DML against the destination and
// tracks per-connector offset/progress state, per spec.md §4.H.
// DestinationSession is the injected capability the converter's output
// flows through (spec.md §9 Design Notes); OffsetManager is the injected
// persistence strategy, with Debezium and OLR implementations.
package apply

import (
	"context"
	"fmt"

	"github.com/cdcbridge/synchdb/pkg/synchdb/convert"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// Table is a minimal handle to an open destination table, used by the
// tuple-mode DML path.
type Table interface {
	OID() uint32
	InsertTuple(ctx context.Context, values []convert.TupleValue) error
	UpdateTuple(ctx context.Context, before, after []convert.TupleValue) error
	DeleteTuple(ctx context.Context, before []convert.TupleValue) error
}

// DestinationSession is the capability the applier needs from the
// destination: execute utility SQL, execute DML SQL, look up schema/
// table metadata, open a table for tuple-mode access, and commit/
// rollback the ambient transaction. Modeled as a trait object per
// spec.md §9 Design Notes; PGSession (pkg/synchdb/apply/pg) is the only
// production implementation, tests substitute a fake.
type DestinationSession interface {
	ExecUtility(ctx context.Context, sql string) error
	ExecDML(ctx context.Context, sql string) (rowsAffected int64, err error)
	ResolveSchema(ctx context.Context, name string) (oid uint32, err error)
	OpenTable(ctx context.Context, oid uint32) (Table, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ApplyError wraps a destination rejection with the offending SQL, per
// spec.md §7.
type ApplyError struct {
	SQL string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply: %v: %s", e.Err, e.SQL)
}

func (e *ApplyError) Unwrap() error { return synchdberr.ErrApply }

// AttrMapping is one row the applier writes to the destination catalog-
// sync table (schema_attr_table in spec.md §4.H) after a successful DDL
// apply, recording the correspondence between a destination attnum and
// the remote column it came from.
type AttrMapping struct {
	ConnectorName string
	ConnectorKind string
	DestAttnum    int
	RemoteID      string
	RemoteName    string
	RemoteType    string
}

// CatalogSync persists AttrMapping rows after a DDL apply succeeds. The
// production implementation writes to a destination table; tests
// substitute an in-memory fake.
type CatalogSync interface {
	RecordMapping(ctx context.Context, m AttrMapping) error
}

// Applier is the single public operation of spec.md §4.H: apply a
// converted DDL or DML statement against sess, and for DDL, record the
// resulting attribute mapping via catalog.
type Applier struct {
	sess    DestinationSession
	catalog CatalogSync
}

// New returns an Applier executing against sess and recording DDL
// attribute mappings via catalog. catalog may be nil to skip recording
// (used by tests and by connectors running in schema-sync mode where
// the mapping table isn't needed).
func New(sess DestinationSession, catalog CatalogSync) *Applier {
	return &Applier{sess: sess, catalog: catalog}
}

// ApplyDDL submits ddlSQL through the destination's utility executor
// and, on success, records mappings for every column so the catalog-sync
// layer can update its attribute table.
func (a *Applier) ApplyDDL(ctx context.Context, connectorName, connectorKind, ddlSQL string, mappings []AttrMapping) error {
	if err := a.sess.ExecUtility(ctx, ddlSQL); err != nil {
		return &ApplyError{SQL: ddlSQL, Err: err}
	}
	if a.catalog == nil {
		return nil
	}
	for _, m := range mappings {
		m.ConnectorName, m.ConnectorKind = connectorName, connectorKind
		if err := a.catalog.RecordMapping(ctx, m); err != nil {
			return fmt.Errorf("apply: record attribute mapping: %w", err)
		}
	}
	return nil
}

// ApplyDML submits a converted DML statement, dispatching on whether it
// carries a rendered SQL string (text-SQL mode) or a tuple-mode value
// set (tuple mode, via OpenTable).
func (a *Applier) ApplyDML(ctx context.Context, stmt *convert.Statement, op byte) error {
	if stmt.SQL != "" {
		if _, err := a.sess.ExecDML(ctx, stmt.SQL); err != nil {
			return &ApplyError{SQL: stmt.SQL, Err: err}
		}
		return nil
	}

	table, err := a.sess.OpenTable(ctx, stmt.TableOID)
	if err != nil {
		return fmt.Errorf("apply: open table %d: %w", stmt.TableOID, err)
	}

	switch op {
	case 'c', 'r':
		return table.InsertTuple(ctx, stmt.After)
	case 'u':
		return table.UpdateTuple(ctx, stmt.Before, stmt.After)
	case 'd':
		return table.DeleteTuple(ctx, stmt.Before)
	default:
		return fmt.Errorf("%w: unrecognised dml op %q", synchdberr.ErrMalformedEvent, op)
	}
}
