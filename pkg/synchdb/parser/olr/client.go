package olr

import (
	"fmt"

	"github.com/cdcbridge/synchdb/pkg/synchdb/parser/olr/olrpb"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// netConn is the minimal connection surface Client needs, satisfied by
// net.Conn; narrowed here so tests can substitute an in-memory pipe
// without standing up a real TCP listener.
type netConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}

// StartMode selects between OpenLogReplicator's START (fresh replication,
// explicit starting SCN) and CONTINUE (resume from a previously persisted
// offset, +1 past the last confirmed position) request codes.
type StartMode int

const (
	StartModeInitial StartMode = iota
	StartModeContinue
)

// Client implements the OLR wire handshake of spec.md §4.F: START or
// CONTINUE a replication stream, wait for one control RedoResponse, and
// later CONFIRM processed SCNs so the server can release its redo buffer.
// Grounded on original_source's olr_client.c (olr_client_start_replication,
// olr_client_confirm_scn), reimplemented over the hand-written olrpb wire
// types instead of protobuf-c.
type Client struct {
	conn netConn
}

// NewClient wraps an already-connected transport (a TCP connection to the
// OpenLogReplicator daemon in production, an in-memory pipe in tests).
func NewClient(conn netConn) *Client {
	return &Client{conn: conn}
}

// Start sends a START or CONTINUE RedoRequest for database and blocks for
// exactly one framed RedoResponse, per spec.md §4.F's startup protocol.
// CONTINUE mode resumes one past the persisted (scn, cScn) pair, matching
// seed scenario S4.
func (c *Client) Start(database string, mode StartMode, scn, cScn uint64) (olrpb.ResponseCode, error) {
	req := &olrpb.RedoRequest{
		DatabaseName: database,
		TmValCase:    olrpb.TmValCaseSCN,
	}
	switch mode {
	case StartModeInitial:
		req.Code = olrpb.RequestCodeStart
		req.Scn = scn
		req.CScn = cScn
	case StartModeContinue:
		req.Code = olrpb.RequestCodeContinue
		req.Scn = scn + 1
		req.CScn = cScn + 1
	default:
		return 0, fmt.Errorf("olr: unknown start mode %d", mode)
	}

	if err := c.send(req); err != nil {
		return 0, err
	}

	raw, err := readOneFrame(c.conn.Read)
	if err != nil {
		return 0, err
	}
	resp, err := olrpb.UnmarshalRedoResponse(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: decode redo response: %v", synchdberr.ErrTransportError, err)
	}

	switch resp.Code {
	case olrpb.ResFailedStart, olrpb.ResInvalidDatabase, olrpb.ResInvalidCommand:
		return resp.Code, fmt.Errorf("%w: olr rejected start request: %s", synchdberr.ErrTransportError, resp.Code)
	default:
		return resp.Code, nil
	}
}

// Confirm acks a processed (scn, cScn, cIdx) triple so the server may
// release the corresponding redo buffer. No response is expected.
func (c *Client) Confirm(scn, cScn, cIdx uint64) error {
	req := &olrpb.RedoRequest{
		Code:      olrpb.RequestCodeConfirm,
		TmValCase: olrpb.TmValCaseSCN,
		Scn:       scn,
		CScn:      cScn,
		CIdx:      cIdx,
	}
	return c.send(req)
}

func (c *Client) send(req *olrpb.RedoRequest) error {
	framed := EncodeFrame(req.Marshal())
	for written := 0; written < len(framed); {
		n, err := c.conn.Write(framed[written:])
		if err != nil {
			return fmt.Errorf("%w: write redo request: %v", synchdberr.ErrTransportError, err)
		}
		written += n
	}
	return nil
}

// ReadChangeFrame blocks for exactly one framed message on the event
// stream (the same connection, once replication is underway) and decodes
// it as a RedoResponse: code ResPayload carries raw JSON change-event
// bytes, any other code is a control message (e.g. a later Replicate
// notification).
func (c *Client) ReadChangeFrame() (*olrpb.RedoResponse, error) {
	raw, err := readOneFrame(c.conn.Read)
	if err != nil {
		return nil, err
	}
	resp, err := olrpb.UnmarshalRedoResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode redo response: %v", synchdberr.ErrTransportError, err)
	}
	return resp, nil
}
