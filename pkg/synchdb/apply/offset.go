package apply

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// OffsetManager persists the per-connector resume point, per spec.md
// §4.H. Two back-ends exist: DebeziumOffsets delegates to the runner;
// OLROffsets maintains an in-memory (scn, c_scn, c_idx) triple flushed to
// a 24-byte file under a standardised policy (spec.md §9 Open Questions:
// flush when both a new SCN commits and the timer has elapsed, or a
// forced flush is requested).
type OffsetManager interface {
	// Advance records that offset has been reached; implementations may
	// defer the actual persistence (OLR) or delegate it entirely
	// (Debezium).
	Advance(ctx context.Context, forceFlush bool) error
}

// DebeziumRunner is the injected capability for the embedded Debezium
// runner's offset operations (spec.md §1's "out of scope" JVM host).
type DebeziumRunner interface {
	GetOffset(ctx context.Context) ([]byte, error)
	SetOffset(ctx context.Context, offset []byte) error
}

// DebeziumOffsets is the Debezium-backed OffsetManager: the runner owns
// the opaque offset blob and persists it itself after each batch: this
// manager's Advance is just the "fetch the latest blob" hook the worker
// calls after a batch commits, for diagnostic/admin-surface purposes
// (get_state/get_stats, spec.md §6).
type DebeziumOffsets struct {
	runner DebeziumRunner

	mu   sync.RWMutex
	last []byte
}

// NewDebeziumOffsets returns a DebeziumOffsets delegating to runner.
func NewDebeziumOffsets(runner DebeziumRunner) *DebeziumOffsets {
	return &DebeziumOffsets{runner: runner}
}

func (d *DebeziumOffsets) Advance(ctx context.Context, _ bool) error {
	blob, err := d.runner.GetOffset(ctx)
	if err != nil {
		return fmt.Errorf("apply: debezium get offset: %w", err)
	}
	d.mu.Lock()
	d.last = blob
	d.mu.Unlock()
	return nil
}

// Last returns the most recently fetched offset blob.
func (d *DebeziumOffsets) Last() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// SCN is the Oracle redo-stream coordinate triple OLR tracks: the system
// change number, the commit SCN, and an intra-commit index.
type SCN struct {
	SCN   uint64
	CSCN  uint64
	CIdx  uint64
}

// Less reports whether s sorts strictly before o, comparing
// lexicographically as spec.md §8 property 4 requires.
func (s SCN) Less(o SCN) bool {
	if s.SCN != o.SCN {
		return s.SCN < o.SCN
	}
	if s.CSCN != o.CSCN {
		return s.CSCN < o.CSCN
	}
	return s.CIdx < o.CIdx
}

const scnFileSize = 24 // 3 * uint64, little-endian

// OLROffsets is the OLR-backed OffsetManager: an in-memory SCN triple
// flushed atomically (open-truncate-write-close) to path when the flush
// policy fires, plus a sibling 1-byte snapshot-done flag file.
type OLROffsets struct {
	path          string
	snapshotPath  string
	flushInterval time.Duration

	mu            sync.Mutex
	current       SCN
	lastFlushed   SCN
	lastFlushTime time.Time
	scnCommitted  bool // true if current advanced since lastFlushed
}

// NewOLROffsets returns an OLROffsets backed by files under dir, named
// per spec.md §6's convention: "<kind>_<name>_<destdb>_offsets.dat" and
// "..._schemahistory.dat". Reads back any prior state; absence of the
// offsets file means "from zero".
func NewOLROffsets(dir, kind, name, destDB string, flushInterval time.Duration) (*OLROffsets, error) {
	base := fmt.Sprintf("%s_%s_%s", kind, name, destDB)
	o := &OLROffsets{
		path:          filepath.Join(dir, base+"_offsets.dat"),
		snapshotPath:  filepath.Join(dir, base+"_schemahistory.dat"),
		flushInterval: flushInterval,
		lastFlushTime: time.Now(),
	}
	if err := o.load(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OLROffsets) load() error {
	data, err := os.ReadFile(o.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply: read offsets file %s: %w", o.path, err)
	}
	if len(data) != scnFileSize {
		return fmt.Errorf("apply: offsets file %s has %d bytes, want %d", o.path, len(data), scnFileSize)
	}
	scn := SCN{
		SCN:  binary.LittleEndian.Uint64(data[0:8]),
		CSCN: binary.LittleEndian.Uint64(data[8:16]),
		CIdx: binary.LittleEndian.Uint64(data[16:24]),
	}
	o.current = scn
	o.lastFlushed = scn
	return nil
}

// Current returns the in-memory SCN triple.
func (o *OLROffsets) Current() SCN {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Record updates the in-memory SCN triple to scn, enforcing the
// monotonicity invariant (spec.md §3, §8 property 4): scn must not sort
// before the current value.
func (o *OLROffsets) Record(scn SCN) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if scn.Less(o.current) {
		return fmt.Errorf("apply: scn %+v is less than current %+v", scn, o.current)
	}
	if scn != o.current {
		o.current = scn
		o.scnCommitted = true
	}
	return nil
}

// Advance flushes the current SCN to disk if the standardised policy
// fires: a new SCN has committed since the last flush and the flush
// interval has elapsed, or forceFlush is true.
func (o *OLROffsets) Advance(ctx context.Context, forceFlush bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	due := o.scnCommitted && time.Since(o.lastFlushTime) >= o.flushInterval
	if !due && !forceFlush {
		return nil
	}
	if !o.scnCommitted && forceFlush && o.current == o.lastFlushed {
		return nil
	}

	buf := make([]byte, scnFileSize)
	binary.LittleEndian.PutUint64(buf[0:8], o.current.SCN)
	binary.LittleEndian.PutUint64(buf[8:16], o.current.CSCN)
	binary.LittleEndian.PutUint64(buf[16:24], o.current.CIdx)

	if err := writeFileAtomic(o.path, buf); err != nil {
		return fmt.Errorf("apply: flush offsets file %s: %w", o.path, err)
	}
	o.lastFlushed = o.current
	o.lastFlushTime = time.Now()
	o.scnCommitted = false
	return nil
}

// SnapshotDone reports whether the initial-snapshot flag file indicates
// completion ('t'); a missing file is treated as not-done.
func (o *OLROffsets) SnapshotDone() (bool, error) {
	data, err := os.ReadFile(o.snapshotPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply: read snapshot flag %s: %w", o.snapshotPath, err)
	}
	return len(data) > 0 && data[0] == 't', nil
}

// SetSnapshotDone writes the initial-snapshot flag file.
func (o *OLROffsets) SetSnapshotDone(done bool) error {
	b := byte('f')
	if done {
		b = 't'
	}
	if err := writeFileAtomic(o.snapshotPath, []byte{b}); err != nil {
		return fmt.Errorf("apply: write snapshot flag %s: %w", o.snapshotPath, err)
	}
	return nil
}

// writeFileAtomic implements the open-truncate-write-close sequence
// spec.md §4.H requires for offset persistence: write to a temp file in
// the same directory, then rename over the target so a reader never
// observes a partially written file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
