package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOLROffsetsFromZeroWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOLROffsets(dir, "oracle-olr", "conn1", "destdb", 0)
	require.NoError(t, err)
	require.Equal(t, SCN{}, o.Current())
}

func TestOLROffsetsMonotonicity(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOLROffsets(dir, "oracle-olr", "conn1", "destdb", 0)
	require.NoError(t, err)

	require.NoError(t, o.Record(SCN{SCN: 100, CSCN: 90, CIdx: 1}))
	err = o.Record(SCN{SCN: 99, CSCN: 90, CIdx: 1})
	require.Error(t, err)
}

func TestOLROffsetsFlushPolicyRequiresCommitAndTimer(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOLROffsets(dir, "oracle-olr", "conn1", "destdb", time.Hour)
	require.NoError(t, err)

	require.NoError(t, o.Record(SCN{SCN: 1, CSCN: 1, CIdx: 1}))
	// Timer hasn't elapsed and no force: should not flush.
	require.NoError(t, o.Advance(context.Background(), false))

	path := filepath.Join(dir, "oracle-olr_conn1_destdb_offsets.dat")
	_, statErr := os.Stat(path)
	require.Error(t, statErr, "expected no offsets file before the timer elapses")

	// Forced flush writes regardless of the timer.
	require.NoError(t, o.Advance(context.Background(), true))
	reloaded, err := NewOLROffsets(dir, "oracle-olr", "conn1", "destdb", time.Hour)
	require.NoError(t, err)
	require.Equal(t, SCN{SCN: 1, CSCN: 1, CIdx: 1}, reloaded.Current())
}

func TestOLROffsetsSnapshotFlag(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOLROffsets(dir, "oracle-olr", "conn1", "destdb", 0)
	require.NoError(t, err)

	done, err := o.SnapshotDone()
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, o.SetSnapshotDone(true))
	done, err = o.SnapshotDone()
	require.NoError(t, err)
	require.True(t, done)
}

type fakeDebeziumRunner struct {
	blob []byte
	err  error
}

func (f *fakeDebeziumRunner) GetOffset(ctx context.Context) ([]byte, error) {
	return f.blob, f.err
}

func (f *fakeDebeziumRunner) SetOffset(ctx context.Context, offset []byte) error {
	f.blob = offset
	return nil
}

func TestDebeziumOffsetsDelegatesToRunner(t *testing.T) {
	runner := &fakeDebeziumRunner{blob: []byte("opaque-offset-blob")}
	d := NewDebeziumOffsets(runner)

	require.NoError(t, d.Advance(context.Background(), false))
	require.Equal(t, []byte("opaque-offset-blob"), d.Last())
}

func TestSCNLessLexicographic(t *testing.T) {
	require.True(t, SCN{SCN: 1, CSCN: 0, CIdx: 0}.Less(SCN{SCN: 2}))
	require.True(t, SCN{SCN: 1, CSCN: 1, CIdx: 0}.Less(SCN{SCN: 1, CSCN: 2}))
	require.True(t, SCN{SCN: 1, CSCN: 1, CIdx: 1}.Less(SCN{SCN: 1, CSCN: 1, CIdx: 2}))
	require.False(t, SCN{SCN: 2}.Less(SCN{SCN: 1}))
}
