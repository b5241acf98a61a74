// Package olrsource adapts an OpenLogReplicator redo-stream connection
// (pkg/synchdb/parser/olr.Client) into a pkg/synchdb/connector.Source
// for the oracle-olr connector kind (spec.md §4.F). Client.ReadChangeFrame
// blocks on its own connection with no context support, so Source runs it
// in a background goroutine and fans frames into a buffered channel that
// Receive polls against the per-call timeout.
package olrsource

import (
	"context"
	"fmt"
	"net"

	"github.com/cdcbridge/synchdb/pkg/synchdb/connector"
	"github.com/cdcbridge/synchdb/pkg/synchdb/parser/olr"
	"github.com/cdcbridge/synchdb/pkg/synchdb/parser/olr/olrpb"
)

// Source polls a single OpenLogReplicator connection for change frames.
type Source struct {
	conn   net.Conn
	client *olr.Client

	frames chan []byte
	errs   chan error
	done   chan struct{}
}

// New dials addr, performs the START/CONTINUE handshake for database at
// (scn, cScn) in mode, and starts the background frame reader.
func New(addr, database string, mode olr.StartMode, scn, cScn uint64) (*Source, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("olrsource: dial %s: %w", addr, err)
	}

	client := olr.NewClient(conn)
	if _, err := client.Start(database, mode, scn, cScn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("olrsource: start replication: %w", err)
	}

	s := &Source{
		conn:   conn,
		client: client,
		frames: make(chan []byte, 256),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Source) readLoop() {
	for {
		resp, err := s.client.ReadChangeFrame()
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		if resp.Code != olrpb.ResPayload {
			continue // control message (e.g. a Replicate notification), not a change event
		}
		select {
		case s.frames <- resp.Payload:
		case <-s.done:
			return
		}
	}
}

// Receive returns the next decoded change frame, or ok=false on an
// empty poll (ctx done with nothing buffered).
func (s *Source) Receive(ctx context.Context) (connector.RawEvent, bool, error) {
	select {
	case payload := <-s.frames:
		return connector.RawEvent{Payload: payload}, true, nil
	case err := <-s.errs:
		return connector.RawEvent{}, false, err
	case <-ctx.Done():
		return connector.RawEvent{}, false, nil
	}
}

// Confirm acks a processed (scn, cScn, cIdx) triple to the OLR daemon so
// it may release the corresponding redo buffer. Nothing in this
// repository calls it: apply.OLROffsets records and flushes offsets
// without confirming them to the daemon.
func (s *Source) Confirm(scn, cScn, cIdx uint64) error {
	return s.client.Confirm(scn, cScn, cIdx)
}

// Close stops the background reader and closes the connection.
func (s *Source) Close() error {
	close(s.done)
	return s.conn.Close()
}
