package connector

import (
	"strings"
	"time"

	"github.com/cdcbridge/synchdb/pkg/pipeline"
	"github.com/cdcbridge/synchdb/pkg/pipeline/cdc"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"go.uber.org/zap"
)

// SinkMirror fans an applied DML record out to the configured optional
// fanout-sink peers (Kafka/ClickHouse/MQTT/NATS/gRPC/HTTP/debug, per
// pkg/pipeline/peer/*), after the batch that produced it has committed.
// It is an audit/monitoring mirror, not part of the apply/offset path:
// spec.md §3's batch-atomicity invariant only binds the destination
// write and the offset advance, so Mirror is only ever called with
// records that already committed, and a publish failure is warned, not
// propagated (mirroring more events than a downstream consumer can keep
// up with is an operational concern for that sink, not a reason to stall
// or roll back the bridge).
type SinkMirror struct {
	peers  []pipeline.Peer
	logger *zap.Logger
}

// NewSinkMirror returns a SinkMirror publishing to peers. A nil or empty
// peers slice is valid and makes every Mirror call a no-op, so callers
// can always construct one and pass it to New unconditionally.
func NewSinkMirror(peers []pipeline.Peer, logger *zap.Logger) *SinkMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SinkMirror{peers: peers, logger: logger}
}

// Mirror converts dml into the fanout layer's cdc.Event envelope and
// publishes it to every configured peer. Per-peer failures are logged
// and otherwise ignored.
func (s *SinkMirror) Mirror(connectorName, connectorKind string, dml *event.Dml) {
	if s == nil || len(s.peers) == 0 {
		return
	}
	ev := dmlToCDCEvent(connectorName, connectorKind, dml)
	for _, p := range s.peers {
		conn := p.Connector()
		if conn == nil {
			s.logger.Warn("sinkmirror: peer has no registered connector", zap.String("peer", p.Name))
			continue
		}
		if err := conn.Pub(ev); err != nil {
			s.logger.Warn("sinkmirror: publish failed", zap.String("peer", p.Name), zap.Error(err))
		}
	}
}

// dmlToCDCEvent maps a neutral event.Dml (already converted and applied
// to the destination) onto the fanout layer's Debezium-shaped cdc.Event,
// so every registered pipeline.Connector implementation can consume it
// exactly as it would a genuine Debezium change event.
func dmlToCDCEvent(connectorName, connectorKind string, dml *event.Dml) cdc.Event {
	schemaName, tableName := splitDestID(dml.DestID)

	source := cdc.NewSourceBuilder(connectorKind, connectorName).
		WithSchema(schemaName).
		WithTable(tableName).
		WithTimestamp(time.Now().UnixMilli()).
		Build()

	return cdc.NewEventBuilder().
		WithSource(source).
		WithOperation(cdc.Operation(string(rune(dml.Op)))).
		WithBefore(columnsToMap(dml.Before)).
		WithAfter(columnsToMap(dml.After)).
		WithTimestamp(time.Now().UnixMilli()).
		Build()
}

func splitDestID(destID string) (schema, table string) {
	if i := strings.LastIndexByte(destID, '.'); i >= 0 {
		return destID[:i], destID[i+1:]
	}
	return "", destID
}

func columnsToMap(cols []event.ColumnValue) map[string]any {
	if len(cols) == 0 {
		return nil
	}
	m := make(map[string]any, len(cols))
	for _, c := range cols {
		m[c.Name] = c.Value
	}
	return m
}
