// Package manager implements the process-wide registry of connector
// slots, per spec.md §5: a name-keyed map capped at N_max (default 30)
// slots, each holding one running (or stopped)
// pkg/synchdb/connector.Connector. Grounded on the teacher's
// pkg/pipeline.Manager, generalised from a map of pub/sub peers to a
// capped slot map with lifecycle-aware start/stop.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/cdcbridge/synchdb/pkg/synchdb/connector"
	"github.com/cdcbridge/synchdb/pkg/synchdb/lifecycle"
	"go.uber.org/zap"
)

// DefaultMaxConnectors is spec.md §5's N_max default.
const DefaultMaxConnectors = 30

// Slot holds one registered connector and its run state.
type Slot struct {
	mu     sync.RWMutex
	name   string
	conn   *connector.Connector
	cancel context.CancelFunc
	err    error
}

func (s *Slot) snapshot() (name string, state lifecycle.State, stats lifecycle.Stats, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return s.name, lifecycle.StateUndef, lifecycle.Stats{}, s.err
	}
	return s.name, s.conn.Lifecycle().State(), s.conn.Lifecycle().Stats(), s.err
}

// Manager is the capped connector registry. Start and Remove take the
// registry lock to add or delete a slot; the per-connector operations
// look their slot up under the registry's read lock and act on that
// connector alone, matching spec.md §5's "no connector may mutate
// another connector's state" rule.
type Manager struct {
	logger *zap.Logger

	mu    sync.RWMutex
	slots map[string]*Slot
	max   int
}

// New returns an empty Manager capped at max connectors (DefaultMaxConnectors
// if max <= 0).
func New(max int, logger *zap.Logger) *Manager {
	if max <= 0 {
		max = DefaultMaxConnectors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{slots: make(map[string]*Slot), max: max, logger: logger}
}

// Start registers and runs conn under name, spawning its worker
// goroutine. It fails if name is already registered or the registry is
// at capacity.
func (m *Manager) Start(ctx context.Context, name string, conn *connector.Connector) error {
	m.mu.Lock()
	if _, exists := m.slots[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("manager: connector %q already registered", name)
	}
	if len(m.slots) >= m.max {
		m.mu.Unlock()
		return fmt.Errorf("manager: registry full (max %d connectors)", m.max)
	}
	runCtx, cancel := context.WithCancel(ctx)
	slot := &Slot{name: name, conn: conn, cancel: cancel}
	m.slots[name] = slot
	m.mu.Unlock()

	go func() {
		err := connector.RetryRun(runCtx, func() error { return conn.Run(runCtx) })
		slot.mu.Lock()
		slot.err = err
		slot.mu.Unlock()
		if err != nil {
			m.logger.Error("manager: connector exited", zap.String("connector", name), zap.Error(err))
		}
	}()
	return nil
}

// Stop requests a graceful stop of the named connector by submitting a
// RequestStop to its mailbox, which the worker picks up once its current
// poll ends. It neither cancels the run context nor removes the slot
// (Remove does both), matching spec.md §6's stop(name) admin operation.
func (m *Manager) Stop(name string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestStop})
	if sErr != nil {
		return sErr
	}
	return nil
}

// Pause submits a pause request to the named connector.
func (m *Manager) Pause(name string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestPause})
	return sErr
}

// Resume submits a resume request to the named connector.
func (m *Manager) Resume(name string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestResume})
	return sErr
}

// Restart submits a restart request carrying snapshotMode.
func (m *Manager) Restart(name, snapshotMode string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestRestart, SnapshotMode: snapshotMode})
	return sErr
}

// SetOffset submits an offset-override request; only valid while the
// connector is Paused (enforced by the lifecycle machine's transition
// table).
func (m *Manager) SetOffset(name string, offset []byte) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestSetOffset, Offset: offset})
	return sErr
}

// ReloadObjmap submits a rule-store reload request.
func (m *Manager) ReloadObjmap(name string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	_, sErr := slot.conn.Lifecycle().Submit(lifecycle.Request{Kind: lifecycle.RequestReloadObjmap})
	return sErr
}

// Remove cancels the named connector's run context and deregisters its
// slot. Call after Stop has had a chance to drain gracefully, or
// directly to force a hard stop.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[name]
	if !ok {
		return fmt.Errorf("manager: connector %q not found", name)
	}
	slot.cancel()
	delete(m.slots, name)
	return nil
}

func (m *Manager) lookup(name string) (*Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.slots[name]
	if !ok {
		return nil, fmt.Errorf("manager: connector %q not found", name)
	}
	return slot, nil
}

// ConnectorState is one connector's reported state for get_state().
type ConnectorState struct {
	Name  string
	State lifecycle.State
	Err   error
}

// GetState implements the admin surface's get_state() operation
// (spec.md §6): a snapshot of every registered connector's lifecycle
// state, taken under each slot's own lock.
func (m *Manager) GetState() []ConnectorState {
	m.mu.RLock()
	names := make([]string, 0, len(m.slots))
	slots := make([]*Slot, 0, len(m.slots))
	for name, slot := range m.slots {
		names = append(names, name)
		slots = append(slots, slot)
	}
	m.mu.RUnlock()

	out := make([]ConnectorState, 0, len(slots))
	for i, slot := range slots {
		name, state, _, err := slot.snapshot()
		if name == "" {
			name = names[i]
		}
		out = append(out, ConnectorState{Name: name, State: state, Err: err})
	}
	return out
}

// ConnectorStats is one connector's reported statistics for get_stats().
type ConnectorStats struct {
	Name  string
	Stats lifecycle.Stats
}

// GetStats implements the admin surface's get_stats() operation.
func (m *Manager) GetStats() []ConnectorStats {
	m.mu.RLock()
	slots := make([]*Slot, 0, len(m.slots))
	for _, slot := range m.slots {
		slots = append(slots, slot)
	}
	m.mu.RUnlock()

	out := make([]ConnectorStats, 0, len(slots))
	for _, slot := range slots {
		name, _, stats, _ := slot.snapshot()
		out = append(out, ConnectorStats{Name: name, Stats: stats})
	}
	return out
}

// ResetStats implements the admin surface's reset_stats(name) operation.
func (m *Manager) ResetStats(name string) error {
	slot, err := m.lookup(name)
	if err != nil {
		return err
	}
	slot.conn.Lifecycle().ResetStats()
	return nil
}

// Names returns every currently registered connector name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.slots))
	for name := range m.slots {
		names = append(names, name)
	}
	return names
}
