package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionNormalStart(t *testing.T) {
	m := New()
	require.Equal(t, StateStopped, m.State())
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateSyncing))
	require.Equal(t, StateSyncing, m.State())
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	m := New()
	err := m.Transition(StateExecuting)
	require.Error(t, err)
	assert.True(t, errors.Is(err, synchdberr.ErrInvalidTransition))
	assert.Equal(t, StateStopped, m.State())
}

func TestPauseResume(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateSyncing))
	require.NoError(t, m.Transition(StatePaused))
	require.NoError(t, m.Transition(StateSyncing))
}

func TestOffsetUpdateOnlyFromPaused(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateSyncing))
	err := m.Transition(StateOffsetUpdate)
	require.Error(t, err)

	require.NoError(t, m.Transition(StatePaused))
	require.NoError(t, m.Transition(StateOffsetUpdate))
	require.NoError(t, m.Transition(StatePaused))
}

func TestMemDumpFromAnyStateAndResume(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateMemDump))
	require.Equal(t, StateMemDump, m.State())
	require.NoError(t, m.Resume())
	require.Equal(t, StateInitializing, m.State())
}

func TestResumeOutsideMemDumpFails(t *testing.T) {
	m := New()
	err := m.Resume()
	require.Error(t, err)
	assert.True(t, errors.Is(err, synchdberr.ErrInvalidTransition))
}

func TestSchemaSyncDoneOnlyFromSyncing(t *testing.T) {
	m := New()
	require.Error(t, m.Transition(StateSchemaSyncDone))
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateSyncing))
	require.NoError(t, m.Transition(StateSchemaSyncDone))
	require.NoError(t, m.Transition(StatePaused))
}

func TestStopFromSyncingAndPaused(t *testing.T) {
	m := New()
	require.NoError(t, m.Transition(StateInitializing))
	require.NoError(t, m.Transition(StateSyncing))
	require.NoError(t, m.Transition(StateStopped))

	m2 := New()
	require.NoError(t, m2.Transition(StateInitializing))
	require.NoError(t, m2.Transition(StateSyncing))
	require.NoError(t, m2.Transition(StatePaused))
	require.NoError(t, m2.Transition(StateStopped))
}

func TestMailboxSingleSlot(t *testing.T) {
	m := New()
	id, err := m.Submit(Request{Kind: RequestPause})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = m.Submit(Request{Kind: RequestResume})
	require.ErrorIs(t, err, synchdberr.ErrRequestBusy)

	req := m.Drain()
	require.NotNil(t, req)
	assert.Equal(t, RequestPause, req.Kind)
	assert.Nil(t, m.Drain())

	_, err = m.Submit(Request{Kind: RequestResume})
	require.NoError(t, err)
}

func TestUpdateStatsAccumulatesAndTracksTimestamps(t *testing.T) {
	m := New()
	t1 := time.Now().Add(-time.Hour)
	t2 := time.Now()

	m.UpdateStats(Stats{DDLCount: 1, TotalEventCount: 2, FirstSourceTimestamp: t1, LastSourceTimestamp: t1})
	m.UpdateStats(Stats{DMLCount: 3, TotalEventCount: 4, FirstSourceTimestamp: t2, LastSourceTimestamp: t2})

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.DDLCount)
	assert.Equal(t, uint64(3), stats.DMLCount)
	assert.Equal(t, uint64(6), stats.TotalEventCount)
	assert.Equal(t, uint64(2), stats.BatchCount)
	// first timestamp sticks to the earliest value seen, last tracks the latest
	assert.True(t, stats.FirstSourceTimestamp.Equal(t1))
	assert.True(t, stats.LastSourceTimestamp.Equal(t2))

	m.ResetStats()
	assert.Equal(t, uint64(0), m.Stats().TotalEventCount)
}
