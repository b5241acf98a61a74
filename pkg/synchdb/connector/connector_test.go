package connector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/apply"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/lifecycle"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events []RawEvent
	idx    int
	closed bool
}

func (f *fakeSource) Receive(ctx context.Context) (RawEvent, bool, error) {
	if f.idx >= len(f.events) {
		return RawEvent{}, false, nil
	}
	ev := f.events[f.idx]
	f.idx++
	return ev, true, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type parseResult struct {
	ddl *event.Ddl
	dml *event.Dml
	tx  *event.TxBoundary
	err error
}

type fakeParser struct {
	results map[string]parseResult
}

func (f *fakeParser) Parse(ctx context.Context, raw []byte) (*event.Ddl, *event.Dml, *event.TxBoundary, error) {
	r, ok := f.results[string(raw)]
	if !ok {
		return nil, nil, nil, fmt.Errorf("fakeParser: no result configured for %q", raw)
	}
	return r.ddl, r.dml, r.tx, r.err
}

type fakeOffsets struct {
	advanceCalls int
	forced       []bool
	err          error
}

func (f *fakeOffsets) Advance(ctx context.Context, forceFlush bool) error {
	f.advanceCalls++
	f.forced = append(f.forced, forceFlush)
	return f.err
}

type fakeSession struct {
	utilitySQL     []string
	dmlSQL         []string
	commitCalled   bool
	rollbackCalled bool
	commitErr      error
}

func (f *fakeSession) ExecUtility(ctx context.Context, sql string) error {
	f.utilitySQL = append(f.utilitySQL, sql)
	return nil
}

func (f *fakeSession) ExecDML(ctx context.Context, sql string) (int64, error) {
	f.dmlSQL = append(f.dmlSQL, sql)
	return 1, nil
}

func (f *fakeSession) ResolveSchema(ctx context.Context, name string) (uint32, error) {
	return 1, nil
}

func (f *fakeSession) OpenTable(ctx context.Context, oid uint32) (apply.Table, error) {
	return nil, fmt.Errorf("tuple mode not exercised in this test")
}

func (f *fakeSession) Commit(ctx context.Context) error {
	f.commitCalled = true
	return f.commitErr
}

func (f *fakeSession) Rollback(ctx context.Context) error {
	f.rollbackCalled = true
	return nil
}

func newTestConnector(cfg Config, source Source, parser Parser, offsets apply.OffsetManager, sess *fakeSession) *Connector {
	return New(cfg, source, parser, rules.New(), schemacache.New(nil), offsets, nil, nil,
		func(ctx context.Context) (apply.DestinationSession, error) { return sess, nil }, nil, nil)
}

func syncingConnector(c *Connector) {
	_ = c.Lifecycle().Transition(lifecycle.StateInitializing)
	_ = c.Lifecycle().Transition(lifecycle.StateSyncing)
}

func TestReceiveBatchStopsOnEmptyPoll(t *testing.T) {
	source := &fakeSource{events: []RawEvent{{Payload: []byte("a")}, {Payload: []byte("b")}}}
	c := newTestConnector(Config{MaxBatchSize: 10}, source, &fakeParser{}, &fakeOffsets{}, &fakeSession{})

	batch, err := c.receiveBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
}

func TestReceiveBatchRespectsMaxBatchSize(t *testing.T) {
	events := make([]RawEvent, 5)
	for i := range events {
		events[i] = RawEvent{Payload: []byte(fmt.Sprintf("ev-%d", i))}
	}
	source := &fakeSource{events: events}
	c := newTestConnector(Config{MaxBatchSize: 3}, source, &fakeParser{}, &fakeOffsets{}, &fakeSession{})

	batch, err := c.receiveBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 3)
}

func TestProcessBatchCommitsDMLAndAdvancesOffsets(t *testing.T) {
	dml := &event.Dml{
		Op:       event.OpCreate,
		SourceID: "shop.orders",
		DestID:   "shop.orders",
		After: []event.ColumnValue{
			{Name: "id", Value: "1", DestCategory: "Numeric", WireType: event.Int32, Ordinal: 1},
		},
	}
	parser := &fakeParser{results: map[string]parseResult{"ev1": {dml: dml}}}
	offsets := &fakeOffsets{}
	sess := &fakeSession{}
	c := newTestConnector(Config{}, &fakeSource{}, parser, offsets, sess)
	syncingConnector(c)

	err := c.processBatch(context.Background(), []RawEvent{{Payload: []byte("ev1")}})
	require.NoError(t, err)

	assert.True(t, sess.commitCalled)
	assert.False(t, sess.rollbackCalled)
	require.Len(t, sess.dmlSQL, 1)
	assert.Equal(t, "INSERT INTO shop.orders (id) VALUES (1);", sess.dmlSQL[0])
	assert.Equal(t, 1, offsets.advanceCalls)
	assert.Equal(t, lifecycle.StateSyncing, c.Lifecycle().State())

	stats := c.Lifecycle().Stats()
	assert.Equal(t, uint64(1), stats.DMLCount)
	assert.Equal(t, uint64(1), stats.InsertCount)
}

func TestProcessBatchCommitsDDL(t *testing.T) {
	ddl := &event.Ddl{
		SourceID:       "shop.orders",
		Kind:           event.DdlCreate,
		PrimaryKeyJSON: `["id"]`,
		Columns: []event.ColumnDescriptor{
			{Name: "id", RemoteType: "int"},
		},
	}
	parser := &fakeParser{results: map[string]parseResult{"ev1": {ddl: ddl}}}
	offsets := &fakeOffsets{}
	sess := &fakeSession{}
	c := newTestConnector(Config{}, &fakeSource{}, parser, offsets, sess)
	syncingConnector(c)

	err := c.processBatch(context.Background(), []RawEvent{{Payload: []byte("ev1")}})
	require.NoError(t, err)

	require.Len(t, sess.utilitySQL, 1)
	assert.Contains(t, sess.utilitySQL[0], "CREATE TABLE IF NOT EXISTS")
	stats := c.Lifecycle().Stats()
	assert.Equal(t, uint64(1), stats.DDLCount)
}

func TestProcessBatchSkipsBadEventByDefault(t *testing.T) {
	parser := &fakeParser{results: map[string]parseResult{
		"bad": {err: fmt.Errorf("malformed payload")},
	}}
	offsets := &fakeOffsets{}
	sess := &fakeSession{}
	c := newTestConnector(Config{ErrorStrategy: StrategySkip}, &fakeSource{}, parser, offsets, sess)
	syncingConnector(c)

	err := c.processBatch(context.Background(), []RawEvent{{Payload: []byte("bad")}})
	require.NoError(t, err)
	assert.True(t, sess.commitCalled)
	stats := c.Lifecycle().Stats()
	assert.Equal(t, uint64(1), stats.BadEventCount)
}

func TestProcessBatchStrategyExitAbortsAndRollsBack(t *testing.T) {
	parser := &fakeParser{results: map[string]parseResult{
		"bad": {err: fmt.Errorf("malformed payload")},
	}}
	offsets := &fakeOffsets{}
	sess := &fakeSession{}
	c := newTestConnector(Config{ErrorStrategy: StrategyExit}, &fakeSource{}, parser, offsets, sess)
	syncingConnector(c)

	err := c.processBatch(context.Background(), []RawEvent{{Payload: []byte("bad")}})
	require.Error(t, err)
	assert.False(t, sess.commitCalled)
	assert.Equal(t, 0, offsets.advanceCalls)
}

func TestHandleRequestPauseAndResume(t *testing.T) {
	c := newTestConnector(Config{}, &fakeSource{}, &fakeParser{}, &fakeOffsets{}, &fakeSession{})
	syncingConnector(c)

	require.NoError(t, c.handleRequest(context.Background(), &lifecycle.Request{Kind: lifecycle.RequestPause}))
	assert.Equal(t, lifecycle.StatePaused, c.Lifecycle().State())

	require.NoError(t, c.handleRequest(context.Background(), &lifecycle.Request{Kind: lifecycle.RequestResume}))
	assert.Equal(t, lifecycle.StateSyncing, c.Lifecycle().State())
}

func TestHandleRequestStopShutsDown(t *testing.T) {
	source := &fakeSource{}
	offsets := &fakeOffsets{}
	c := newTestConnector(Config{}, source, &fakeParser{}, offsets, &fakeSession{})
	syncingConnector(c)

	require.NoError(t, c.handleRequest(context.Background(), &lifecycle.Request{Kind: lifecycle.RequestStop}))
	assert.Equal(t, lifecycle.StateStopped, c.Lifecycle().State())
	assert.True(t, source.closed)
	assert.Equal(t, 1, offsets.advanceCalls)
}

func TestRunExitsCleanlyOnRequestStop(t *testing.T) {
	source := &fakeSource{}
	c := newTestConnector(Config{NaptimeMs: time.Millisecond}, source, &fakeParser{}, &fakeOffsets{}, &fakeSession{})

	_, err := c.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestStop})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after RequestStop")
	}
	assert.Equal(t, lifecycle.StateStopped, c.Lifecycle().State())
	assert.True(t, source.closed)
}

func TestNaptimeDefaultAndConfigured(t *testing.T) {
	c := newTestConnector(Config{}, &fakeSource{}, &fakeParser{}, &fakeOffsets{}, &fakeSession{})
	assert.Equal(t, 500*time.Millisecond, c.naptime())

	c2 := newTestConnector(Config{NaptimeMs: 10 * time.Millisecond}, &fakeSource{}, &fakeParser{}, &fakeOffsets{}, &fakeSession{})
	assert.Equal(t, 10*time.Millisecond, c2.naptime())
}
