package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/apply"
	"github.com/cdcbridge/synchdb/pkg/synchdb/connector"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/lifecycle"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptySource struct{ closed bool }

func (s *emptySource) Receive(ctx context.Context) (connector.RawEvent, bool, error) {
	<-ctx.Done()
	return connector.RawEvent{}, false, nil
}

func (s *emptySource) Close() error {
	s.closed = true
	return nil
}

type noopParser struct{}

func (noopParser) Parse(ctx context.Context, raw []byte) (*event.Ddl, *event.Dml, *event.TxBoundary, error) {
	return nil, nil, nil, fmt.Errorf("noopParser: never called")
}

type noopOffsets struct{}

func (noopOffsets) Advance(ctx context.Context, forceFlush bool) error { return nil }

type noopSession struct{}

func (noopSession) ExecUtility(ctx context.Context, sql string) error          { return nil }
func (noopSession) ExecDML(ctx context.Context, sql string) (int64, error)     { return 0, nil }
func (noopSession) ResolveSchema(ctx context.Context, name string) (uint32, error) {
	return 0, nil
}
func (noopSession) OpenTable(ctx context.Context, oid uint32) (apply.Table, error) {
	return nil, fmt.Errorf("not used")
}
func (noopSession) Commit(ctx context.Context) error   { return nil }
func (noopSession) Rollback(ctx context.Context) error { return nil }

func newTestConnector(name string) (*connector.Connector, *emptySource) {
	src := &emptySource{}
	conn := connector.New(
		connector.Config{Name: name, NaptimeMs: time.Millisecond},
		src,
		noopParser{},
		rules.New(),
		schemacache.New(nil),
		noopOffsets{},
		nil,
		nil,
		func(ctx context.Context) (apply.DestinationSession, error) { return noopSession{}, nil },
		nil,
		nil,
	)
	return conn, src
}

func TestManagerStartAndGetState(t *testing.T) {
	m := New(2, nil)
	conn, _ := newTestConnector("conn1")

	require.NoError(t, m.Start(context.Background(), "conn1", conn))

	require.Eventually(t, func() bool {
		for _, s := range m.GetState() {
			if s.Name == "conn1" && s.State == lifecycle.StateSyncing {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestManagerStartRejectsDuplicateName(t *testing.T) {
	m := New(2, nil)
	conn1, _ := newTestConnector("conn1")
	conn2, _ := newTestConnector("conn1")

	require.NoError(t, m.Start(context.Background(), "conn1", conn1))
	err := m.Start(context.Background(), "conn1", conn2)
	require.Error(t, err)
}

func TestManagerStartRejectsOverCapacity(t *testing.T) {
	m := New(1, nil)
	conn1, _ := newTestConnector("conn1")
	conn2, _ := newTestConnector("conn2")

	require.NoError(t, m.Start(context.Background(), "conn1", conn1))
	err := m.Start(context.Background(), "conn2", conn2)
	require.Error(t, err)
}

func TestManagerPauseResume(t *testing.T) {
	m := New(2, nil)
	conn, _ := newTestConnector("conn1")
	require.NoError(t, m.Start(context.Background(), "conn1", conn))

	require.Eventually(t, func() bool {
		return conn.Lifecycle().State() == lifecycle.StateSyncing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Pause("conn1"))
	require.Eventually(t, func() bool {
		return conn.Lifecycle().State() == lifecycle.StatePaused
	}, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Resume("conn1"))
	require.Eventually(t, func() bool {
		return conn.Lifecycle().State() == lifecycle.StateSyncing
	}, time.Second, 5*time.Millisecond)
}

func TestManagerStopAndRemove(t *testing.T) {
	m := New(2, nil)
	conn, src := newTestConnector("conn1")
	require.NoError(t, m.Start(context.Background(), "conn1", conn))

	require.Eventually(t, func() bool {
		return conn.Lifecycle().State() == lifecycle.StateSyncing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop("conn1"))
	require.Eventually(t, func() bool {
		return conn.Lifecycle().State() == lifecycle.StateStopped
	}, 3*time.Second, 5*time.Millisecond)
	assert.True(t, src.closed)

	require.NoError(t, m.Remove("conn1"))
	assert.NotContains(t, m.Names(), "conn1")
}

func TestManagerUnknownConnectorErrors(t *testing.T) {
	m := New(2, nil)
	assert.Error(t, m.Pause("missing"))
	assert.Error(t, m.Stop("missing"))
	assert.Error(t, m.Resume("missing"))
	assert.Error(t, m.Restart("missing", ""))
	assert.Error(t, m.SetOffset("missing", nil))
	assert.Error(t, m.ReloadObjmap("missing"))
	assert.Error(t, m.ResetStats("missing"))
	assert.Error(t, m.Remove("missing"))
}

func TestManagerResetStats(t *testing.T) {
	m := New(2, nil)
	conn, _ := newTestConnector("conn1")
	require.NoError(t, m.Start(context.Background(), "conn1", conn))

	conn.Lifecycle().UpdateStats(lifecycle.Stats{DDLCount: 5})
	require.NoError(t, m.ResetStats("conn1"))

	for _, s := range m.GetStats() {
		if s.Name == "conn1" {
			assert.Equal(t, uint64(0), s.Stats.DDLCount)
		}
	}
}
