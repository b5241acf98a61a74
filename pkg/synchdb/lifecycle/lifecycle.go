// Package lifecycle implements the per-connector state machine of
// spec.md §4.I: states, valid transitions, a single-slot request
// mailbox, and per-batch statistics counters. Grounded on the teacher's
// pkg/pipeline.Manager's sync.RWMutex-guarded registry, generalised from
// "peers" to "connector slots".
package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
	"github.com/google/uuid"
)

// State is one of the connector lifecycle states named in spec.md §4.I.
type State int

const (
	StateUndef State = iota
	StateStopped
	StateInitializing
	StatePaused
	StateSyncing
	StateParsing
	StateConverting
	StateExecuting
	StateOffsetUpdate
	StateRestarting
	StateMemDump
	StateSchemaSyncDone
	StateReloadObjmap
)

func (s State) String() string {
	switch s {
	case StateUndef:
		return "Undef"
	case StateStopped:
		return "Stopped"
	case StateInitializing:
		return "Initializing"
	case StatePaused:
		return "Paused"
	case StateSyncing:
		return "Syncing"
	case StateParsing:
		return "Parsing"
	case StateConverting:
		return "Converting"
	case StateExecuting:
		return "Executing"
	case StateOffsetUpdate:
		return "OffsetUpdate"
	case StateRestarting:
		return "Restarting"
	case StateMemDump:
		return "MemDump"
	case StateSchemaSyncDone:
		return "SchemaSyncDone"
	case StateReloadObjmap:
		return "ReloadObjmap"
	default:
		return "Unknown"
	}
}

// RequestKind classifies a pending request in a connector's mailbox.
type RequestKind int

const (
	RequestPause RequestKind = iota
	RequestResume
	RequestStop
	RequestRestart
	RequestSetOffset
	RequestMemDump
	RequestReloadObjmap
)

// Request is one admin-surface operation queued in a connector's
// single-slot mailbox.
type Request struct {
	ID           string
	Kind         RequestKind
	SnapshotMode string // only meaningful for RequestRestart
	Offset       []byte // only meaningful for RequestSetOffset
}

// Stats holds the per-batch counters spec.md §4.I names, flushed to the
// machine's exported snapshot at batch commit.
type Stats struct {
	DDLCount        uint64
	DMLCount        uint64
	InsertCount     uint64
	UpdateCount     uint64
	DeleteCount     uint64
	BadEventCount   uint64
	TotalEventCount uint64
	BatchCount      uint64

	FirstSourceTimestamp      time.Time
	LastSourceTimestamp       time.Time
	FirstPipelineTimestamp    time.Time
	LastPipelineTimestamp     time.Time
	FirstDestinationTimestamp time.Time
	LastDestinationTimestamp  time.Time
}

// transitions enumerates every valid (from, to) pair of spec.md §4.I;
// anything absent from this set is rejected with ErrInvalidTransition.
// "any" is modeled as a wildcard check in Transition for
// the MemDump/ReloadObjmap cases, which are valid from every state.
var transitions = map[State]map[State]bool{
	StateStopped:        {StateInitializing: true},
	StateInitializing:   {StateSyncing: true},
	StateSyncing: {
		StateParsing:        true,
		StatePaused:         true,
		StateRestarting:     true,
		StateSchemaSyncDone: true,
		StateStopped:        true,
	},
	StateParsing:     {StateConverting: true, StateSyncing: true},
	StateConverting:  {StateExecuting: true, StateSyncing: true},
	StateExecuting:   {StateSyncing: true, StateParsing: true},
	StatePaused:      {StateSyncing: true, StateOffsetUpdate: true, StateStopped: true},
	StateOffsetUpdate: {StatePaused: true},
	StateRestarting:  {StateSyncing: true, StateStopped: true},
	StateSchemaSyncDone: {StatePaused: true},
}

// Machine is the lifecycle state machine for one connector slot. It is
// safe for concurrent use: the administrator reads/writes the mailbox
// field and statistics under the exclusive lock; the worker clears the
// mailbox and updates state/stats under the exclusive lock too (spec.md
// §5's "writes under the exclusive lock" rule — this implementation uses
// one mutex for both, which is a stricter but still-correct
// simplification of the spec's separate reader/writer-lock wording).
type Machine struct {
	mu      sync.RWMutex
	state   State
	prev    State // state to return to after MemDump/ReloadObjmap
	mailbox *Request
	stats   Stats
}

// New returns a Machine starting in StateStopped.
func New() *Machine {
	return &Machine{state: StateStopped}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves the machine from its current state to to, rejecting
// the move with synchdberr.ErrInvalidTransition if it isn't in the valid
// set. MemDump and ReloadObjmap are valid from any state and remember
// the state to return to.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	if to == StateMemDump || to == StateReloadObjmap {
		m.prev = m.state
		m.state = to
		return nil
	}
	if m.state == StateMemDump || m.state == StateReloadObjmap {
		if to != m.prev {
			return fmt.Errorf("%w: %s -> %s (expected return to %s)", synchdberr.ErrInvalidTransition, m.state, to, m.prev)
		}
		m.state = to
		return nil
	}
	if allowed, ok := transitions[m.state]; ok && allowed[to] {
		m.state = to
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", synchdberr.ErrInvalidTransition, m.state, to)
}

// Resume transitions out of MemDump or ReloadObjmap back to the state
// recorded when the machine entered it. It is a no-op error
// (ErrInvalidTransition) if the machine isn't currently in one of those
// two states.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateMemDump && m.state != StateReloadObjmap {
		return fmt.Errorf("%w: Resume called outside MemDump/ReloadObjmap (current %s)", synchdberr.ErrInvalidTransition, m.state)
	}
	return m.transitionLocked(m.prev)
}

// Submit places req in the single-slot mailbox, generating an ID if req
// doesn't carry one. It fails with synchdberr.ErrRequestBusy if a prior
// request hasn't been drained yet.
func (m *Machine) Submit(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mailbox != nil {
		return "", synchdberr.ErrRequestBusy
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	m.mailbox = &req
	return req.ID, nil
}

// Drain removes and returns the pending request, or nil if the mailbox
// is empty. Called by the worker at batch boundaries (spec.md §4.I:
// "check request mailbox").
func (m *Machine) Drain() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.mailbox
	m.mailbox = nil
	return req
}

// Pending reports whether a request is currently queued.
func (m *Machine) Pending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mailbox != nil
}

// UpdateStats merges delta into the machine's running statistics and
// updates the batch count and the first/last timestamp fields, matching
// spec.md §4.I's "flushed to shared state at batch commit".
func (m *Machine) UpdateStats(delta Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.DDLCount += delta.DDLCount
	m.stats.DMLCount += delta.DMLCount
	m.stats.InsertCount += delta.InsertCount
	m.stats.UpdateCount += delta.UpdateCount
	m.stats.DeleteCount += delta.DeleteCount
	m.stats.BadEventCount += delta.BadEventCount
	m.stats.TotalEventCount += delta.TotalEventCount
	m.stats.BatchCount++

	if m.stats.FirstSourceTimestamp.IsZero() && !delta.FirstSourceTimestamp.IsZero() {
		m.stats.FirstSourceTimestamp = delta.FirstSourceTimestamp
	}
	if !delta.LastSourceTimestamp.IsZero() {
		m.stats.LastSourceTimestamp = delta.LastSourceTimestamp
	}
	if m.stats.FirstPipelineTimestamp.IsZero() && !delta.FirstPipelineTimestamp.IsZero() {
		m.stats.FirstPipelineTimestamp = delta.FirstPipelineTimestamp
	}
	if !delta.LastPipelineTimestamp.IsZero() {
		m.stats.LastPipelineTimestamp = delta.LastPipelineTimestamp
	}
	if m.stats.FirstDestinationTimestamp.IsZero() && !delta.FirstDestinationTimestamp.IsZero() {
		m.stats.FirstDestinationTimestamp = delta.FirstDestinationTimestamp
	}
	if !delta.LastDestinationTimestamp.IsZero() {
		m.stats.LastDestinationTimestamp = delta.LastDestinationTimestamp
	}
}

// Stats returns a copy of the running statistics.
func (m *Machine) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// ResetStats zeroes the running statistics, per the admin surface's
// reset_stats(name) operation (spec.md §6).
func (m *Machine) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}
