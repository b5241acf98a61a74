// Package connector wires the rule store, schema cache, parser,
// converter, applier, offset manager, and lifecycle machine together
// into one per-source worker loop, per spec.md §5: a single goroutine
// running a cooperative loop of await-events, parse, convert, apply,
// commit-batch, update-stats, check-mailbox. Grounded on the teacher's
// pkg/pipeline.Manager.Init retry-with-backoff loop, generalised from
// "connect a peer" to "run a connector to completion or shutdown".
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/cdcbridge/synchdb/pkg/metrics"
	"github.com/cdcbridge/synchdb/pkg/synchdb/apply"
	"github.com/cdcbridge/synchdb/pkg/synchdb/codec"
	"github.com/cdcbridge/synchdb/pkg/synchdb/convert"
	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/lifecycle"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/schemacache"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RawEvent is one undecoded change event pulled from the source
// channel, plus the batch-boundary metadata Debezium's runner API
// prepends (spec.md §6: "B-<batchid>"/"K-<success>;<errmsg>" markers).
// OLR sources populate only Payload; Debezium sources may also set
// BatchMarker.
type RawEvent struct {
	Payload     []byte
	BatchMarker string // "" for an ordinary event
}

// Source is the event-channel abstraction a Connector polls. Receive
// blocks until an event is available, ctx is done, or the 2-second
// per-poll timeout (spec.md §5) elapses with no event, in which case ok
// is false and err is nil ("empty poll", distinct from a real error).
type Source interface {
	Receive(ctx context.Context) (ev RawEvent, ok bool, err error)
	Close() error
}

// Parser decodes one raw event into a neutral record. Both
// parser/debezium and parser/olr satisfy this shape through a small
// adapter in their own packages; Connector depends only on the
// interface so tests can substitute a fake.
type Parser interface {
	Parse(ctx context.Context, raw []byte) (ddl *event.Ddl, dml *event.Dml, tx *event.TxBoundary, err error)
}

// ErrorStrategy selects what the worker does when a per-event error
// occurs, per spec.md §7.
type ErrorStrategy int

const (
	// StrategySkip continues the batch, counting the event as bad.
	StrategySkip ErrorStrategy = iota
	// StrategyExit tears the worker down (optionally with
	// restart-backoff, handled by the caller/supervisor).
	StrategyExit
	// StrategyRetry behaves like StrategySkip at the per-event level;
	// the supervisor (manager package, via RetryRun) re-spawns the whole
	// worker with exponential backoff if the worker exits with an error.
	StrategyRetry
)

// Config configures one Connector instance.
type Config struct {
	Name            string
	Kind            rules.SourceKind
	UseDB           bool // identifier disambiguation flag, spec.md §4.A
	Mode            convert.Mode
	ErrorStrategy   ErrorStrategy
	LogEventOnError bool
	NaptimeMs       time.Duration
	MaxBatchSize    int
}

// Connector runs one configured source to completion. It owns no state
// shared with other connectors (spec.md §5's "strictly per-connector"
// rule for the rule store and schema cache).
type Connector struct {
	cfg Config

	source  Source
	parser  Parser
	rules   *rules.Store
	cache   *schemacache.Cache
	offsets apply.OffsetManager

	lifecycle  *lifecycle.Machine
	evaluator  codec.TransformEvaluator
	newSession func(ctx context.Context) (apply.DestinationSession, error)
	catalog    apply.CatalogSync
	mirror     *SinkMirror

	logger *zap.Logger
}

// New returns a Connector wired from its collaborators. newSession opens
// one DestinationSession per batch (the applier's per-batch
// transaction, spec.md §5). mirror may be nil, in which case applied DML
// is never fanned out to the optional sink layer (pkg/pipeline/peer/*).
func New(cfg Config, source Source, parser Parser, ruleStore *rules.Store, cache *schemacache.Cache, offsets apply.OffsetManager, catalog apply.CatalogSync, evaluator codec.TransformEvaluator, newSession func(ctx context.Context) (apply.DestinationSession, error), mirror *SinkMirror, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		cfg:        cfg,
		source:     source,
		parser:     parser,
		rules:      ruleStore,
		cache:      cache,
		offsets:    offsets,
		lifecycle:  lifecycle.New(),
		evaluator:  evaluator,
		newSession: newSession,
		catalog:    catalog,
		mirror:     mirror,
		logger:     logger,
	}
}

// Lifecycle exposes the connector's state machine to the manager/admin
// surface.
func (c *Connector) Lifecycle() *lifecycle.Machine { return c.lifecycle }

// Run drives the worker loop until ctx is cancelled or a StrategyExit
// error tears it down. It implements spec.md §5's suspension points: the
// source's own 2-second poll timeout, and a naptime sleep between empty
// polls.
func (c *Connector) Run(ctx context.Context) error {
	if err := c.lifecycle.Transition(lifecycle.StateInitializing); err != nil {
		return err
	}
	if err := c.lifecycle.Transition(lifecycle.StateSyncing); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return c.shutdown(ctx)
		default:
		}

		if req := c.lifecycle.Drain(); req != nil {
			if err := c.handleRequest(ctx, req); err != nil {
				c.logger.Warn("connector: request handling failed", zap.String("connector", c.cfg.Name), zap.Error(err))
			}
			if req.Kind == lifecycle.RequestStop {
				return nil
			}
		}

		if c.lifecycle.State() == lifecycle.StatePaused {
			time.Sleep(c.naptime())
			continue
		}

		batch, err := c.receiveBatch(ctx)
		if err != nil {
			return fmt.Errorf("connector %s: receive batch: %w", c.cfg.Name, err)
		}
		if len(batch) == 0 {
			time.Sleep(c.naptime())
			continue
		}

		if err := c.processBatch(ctx, batch); err != nil {
			if c.cfg.ErrorStrategy == StrategyExit {
				return fmt.Errorf("connector %s: %w", c.cfg.Name, err)
			}
			c.logger.Error("connector: batch failed, continuing per error strategy", zap.String("connector", c.cfg.Name), zap.Error(err))
			// processBatch may have aborted mid-phase (Parsing/Converting/
			// Executing); every one of those states can transition back to
			// Syncing, so recover here rather than failing the next batch's
			// Transition(StateParsing) from an unexpected state.
			if c.lifecycle.State() != lifecycle.StateSyncing {
				if rErr := c.lifecycle.Transition(lifecycle.StateSyncing); rErr != nil {
					return fmt.Errorf("connector %s: recover after batch failure: %w", c.cfg.Name, rErr)
				}
			}
		}
	}
}

func (c *Connector) naptime() time.Duration {
	if c.cfg.NaptimeMs > 0 {
		return c.cfg.NaptimeMs
	}
	return 500 * time.Millisecond
}

// receiveBatch polls the source until MaxBatchSize events are collected,
// the 2-second per-poll timeout elapses with no event, or ctx is done.
func (c *Connector) receiveBatch(ctx context.Context) ([]RawEvent, error) {
	max := c.cfg.MaxBatchSize
	if max <= 0 {
		max = 100
	}
	var batch []RawEvent
	for len(batch) < max {
		pollCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ev, ok, err := c.source.Receive(pollCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		batch = append(batch, ev)
	}
	return batch, nil
}

// parsedEvent is one batch member after the parse phase: exactly one of
// ddl/dml is non-nil, or both are nil for a transaction-boundary marker
// that carries no convert/apply work.
type parsedEvent struct {
	raw RawEvent
	ddl *event.Ddl
	dml *event.Dml
}

// processBatch implements the per-batch cycle of spec.md §4.H/§5: a
// batch-wide parse phase, then a batch-wide convert+apply phase inside
// one destination transaction, then commit and offset advance — an
// all-or-nothing commit. The three lifecycle phases (Parsing, Converting,
// Executing) are batch-level states, matching the valid-transition table
// in pkg/synchdb/lifecycle; per-event errors are counted and skipped (or
// abort the batch under StrategyExit) without moving the state machine.
func (c *Connector) processBatch(ctx context.Context, batch []RawEvent) error {
	if err := c.lifecycle.Transition(lifecycle.StateParsing); err != nil {
		return err
	}

	stats := lifecycle.Stats{}
	parsed := make([]parsedEvent, 0, len(batch))
	for _, raw := range batch {
		stats.TotalEventCount++
		if raw.BatchMarker != "" {
			continue
		}
		ddl, dml, tx, err := c.parser.Parse(ctx, raw.Payload)
		if err != nil {
			if recErr := c.recordBadEvent(raw, err); recErr != nil {
				return recErr
			}
			stats.BadEventCount++
			continue
		}
		if tx != nil {
			continue
		}
		parsed = append(parsed, parsedEvent{raw: raw, ddl: ddl, dml: dml})
	}

	if err := c.lifecycle.Transition(lifecycle.StateConverting); err != nil {
		return err
	}

	sess, err := c.newSession(ctx)
	if err != nil {
		return fmt.Errorf("open destination session: %w", err)
	}
	applier := apply.New(sess, c.catalog)
	stopTimer := metrics.TimeApply(c.cfg.Name, string(c.cfg.Kind))
	defer stopTimer()

	committed := false
	defer func() {
		if !committed {
			_ = sess.Rollback(ctx)
		}
	}()

	var mirrorQueue []*event.Dml
	for _, pe := range parsed {
		if err := c.applyOne(ctx, pe, applier, &stats); err != nil {
			if recErr := c.recordBadEvent(pe.raw, err); recErr != nil {
				return recErr
			}
			stats.BadEventCount++
			continue
		}
		if pe.dml != nil {
			mirrorQueue = append(mirrorQueue, pe.dml)
		}
	}

	if err := c.lifecycle.Transition(lifecycle.StateExecuting); err != nil {
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	committed = true

	// Mirroring happens only after commit: the fanout sinks must never
	// observe a change that the batch-atomicity invariant (spec.md §3)
	// could still roll back.
	for _, dml := range mirrorQueue {
		c.mirror.Mirror(c.cfg.Name, string(c.cfg.Kind), dml)
	}

	if err := c.offsets.Advance(ctx, true); err != nil {
		c.logger.Error("connector: offset advance failed (non-fatal, will re-deliver)", zap.String("connector", c.cfg.Name), zap.Error(err))
	}

	metrics.ObserveBatch(c.cfg.Name, string(c.cfg.Kind), metrics.BatchStats{
		DDLCount:      stats.DDLCount,
		InsertCount:   stats.InsertCount,
		UpdateCount:   stats.UpdateCount,
		DeleteCount:   stats.DeleteCount,
		BadEventCount: stats.BadEventCount,
	})
	c.lifecycle.UpdateStats(stats)
	return c.lifecycle.Transition(lifecycle.StateSyncing)
}

// recordBadEvent logs a per-event failure and, under StrategyExit, turns
// it into a fatal batch error instead of a skip.
func (c *Connector) recordBadEvent(raw RawEvent, err error) error {
	if c.cfg.LogEventOnError {
		c.logger.Warn("connector: bad event", zap.String("connector", c.cfg.Name), zap.ByteString("raw", raw.Payload), zap.Error(err))
	} else {
		c.logger.Warn("connector: bad event", zap.String("connector", c.cfg.Name), zap.Error(err))
	}
	if c.cfg.ErrorStrategy == StrategyExit {
		return err
	}
	return nil
}

func (c *Connector) applyOne(ctx context.Context, pe parsedEvent, applier *apply.Applier, stats *lifecycle.Stats) error {
	switch {
	case pe.ddl != nil:
		if _, err := convertAndApplyDDL(ctx, pe.ddl, c, applier); err != nil {
			return err
		}
		stats.DDLCount++
	case pe.dml != nil:
		if err := convertAndApplyDML(ctx, pe.dml, c, applier); err != nil {
			return err
		}
		stats.DMLCount++
		switch pe.dml.Op {
		case event.OpCreate, event.OpRead:
			stats.InsertCount++
		case event.OpUpdate:
			stats.UpdateCount++
		case event.OpDelete:
			stats.DeleteCount++
		}
	}
	return nil
}

func (c *Connector) handleRequest(ctx context.Context, req *lifecycle.Request) error {
	switch req.Kind {
	case lifecycle.RequestPause:
		return c.lifecycle.Transition(lifecycle.StatePaused)
	case lifecycle.RequestResume:
		return c.lifecycle.Transition(lifecycle.StateSyncing)
	case lifecycle.RequestStop:
		return c.shutdown(ctx)
	case lifecycle.RequestRestart:
		if err := c.lifecycle.Transition(lifecycle.StateRestarting); err != nil {
			return err
		}
		return c.lifecycle.Transition(lifecycle.StateSyncing)
	case lifecycle.RequestSetOffset:
		if err := c.lifecycle.Transition(lifecycle.StateOffsetUpdate); err != nil {
			return err
		}
		return c.lifecycle.Transition(lifecycle.StatePaused)
	case lifecycle.RequestMemDump:
		if err := c.lifecycle.Transition(lifecycle.StateMemDump); err != nil {
			return err
		}
		return c.lifecycle.Resume()
	case lifecycle.RequestReloadObjmap:
		if err := c.lifecycle.Transition(lifecycle.StateReloadObjmap); err != nil {
			return err
		}
		return c.lifecycle.Resume()
	default:
		return fmt.Errorf("connector: unrecognised request kind %d", req.Kind)
	}
}

// shutdown implements spec.md §5's orderly teardown: break the loop,
// flush stats, force an offset flush, close the source. Outstanding
// transactions have already been rolled back by processBatch's defer.
func (c *Connector) shutdown(ctx context.Context) error {
	if err := c.offsets.Advance(ctx, true); err != nil {
		c.logger.Error("connector: final offset flush failed", zap.String("connector", c.cfg.Name), zap.Error(err))
	}
	if err := c.source.Close(); err != nil {
		c.logger.Error("connector: source close failed", zap.String("connector", c.cfg.Name), zap.Error(err))
	}
	return c.lifecycle.Transition(lifecycle.StateStopped)
}

// RetryRun runs fn (typically a Connector.Run bound to ctx) with
// exponential backoff between attempts, matching the teacher's
// Manager.Init retry loop generalised from "connect once, retry a fixed
// number of times" to "keep the connector alive across transient
// failures" (spec.md §7's `retry` error strategy, driven by the manager
// package rather than the connector itself).
func RetryRun(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(fn, b)
}
