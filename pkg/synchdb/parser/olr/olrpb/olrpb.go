// Package olrpb holds the wire types exchanged with an OpenLogReplicator
// server: RedoRequest (client -> server) and RedoResponse (server ->
// client). No .proto source ships with OpenLogReplicator's public
// protocol description, so there is nothing for protoc to generate from;
// these types are hand-written against protobuf's wire format directly
// using google.golang.org/protobuf/encoding/protowire, the same low-level
// approach the teacher's pkg/pipeline/peer/grpc takes for its own
// hand-modeled framing rather than a full generated-message round trip.
package olrpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// RequestCode mirrors OpenLogReplicator's RequestCode enum.
type RequestCode int32

const (
	RequestCodeStart    RequestCode = 0
	RequestCodeContinue RequestCode = 1
	RequestCodeConfirm  RequestCode = 2
)

// TmValCase selects which oneof branch of RedoRequest's "tm_val" field is
// populated; OpenLogReplicator's schema allows an SCN or a timestamp, this
// bridge only ever sends the SCN form.
type TmValCase int32

const (
	TmValCaseNone TmValCase = 0
	TmValCaseSCN  TmValCase = 1
)

// Field numbers match OpenLogReplicator's published RedoRequest message
// shape (code, database_name, scn, c_scn, c_idx).
const (
	reqFieldCode     = 1
	reqFieldDatabase = 2
	reqFieldSCN      = 3
	reqFieldCScn     = 4
	reqFieldCIdx     = 5
)

// RedoRequest is the client -> server control message: START a new
// replication stream, CONTINUE one from a persisted offset, or CONFIRM
// (ack) a processed SCN.
type RedoRequest struct {
	Code         RequestCode
	DatabaseName string
	TmValCase    TmValCase
	Scn          uint64
	CScn         uint64
	CIdx         uint64
}

// Marshal encodes r using protobuf's wire format (varint/length-delimited
// fields), matching what an OpenLogReplicator server decodes with its own
// protobuf-c bindings.
func (r *RedoRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, reqFieldCode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Code))

	if r.DatabaseName != "" {
		b = protowire.AppendTag(b, reqFieldDatabase, protowire.BytesType)
		b = protowire.AppendString(b, r.DatabaseName)
	}

	if r.TmValCase == TmValCaseSCN {
		b = protowire.AppendTag(b, reqFieldSCN, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Scn)
	}

	b = protowire.AppendTag(b, reqFieldCScn, protowire.VarintType)
	b = protowire.AppendVarint(b, r.CScn)

	b = protowire.AppendTag(b, reqFieldCIdx, protowire.VarintType)
	b = protowire.AppendVarint(b, r.CIdx)

	return b
}

// UnmarshalRedoRequest decodes data produced by Marshal (used by tests
// exercising a fake OLR server and by the client's own resume-logic
// tests).
func UnmarshalRedoRequest(data []byte) (*RedoRequest, error) {
	r := &RedoRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("olrpb: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case reqFieldCode:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed code field: %w", protowire.ParseError(n))
			}
			r.Code = RequestCode(v)
			data = data[n:]
		case reqFieldDatabase:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed database_name field: %w", protowire.ParseError(n))
			}
			r.DatabaseName = v
			data = data[n:]
		case reqFieldSCN:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed scn field: %w", protowire.ParseError(n))
			}
			r.Scn = v
			r.TmValCase = TmValCaseSCN
			data = data[n:]
		case reqFieldCScn:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed c_scn field: %w", protowire.ParseError(n))
			}
			r.CScn = v
			data = data[n:]
		case reqFieldCIdx:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed c_idx field: %w", protowire.ParseError(n))
			}
			r.CIdx = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

// ResponseCode mirrors OpenLogReplicator's RedoResponse.code enum
// (spec.md §4.F).
type ResponseCode int32

const (
	ResReady           ResponseCode = 0
	ResFailedStart     ResponseCode = 1
	ResStarting        ResponseCode = 2
	ResAlreadyStarted  ResponseCode = 3
	ResReplicate       ResponseCode = 4
	ResPayload         ResponseCode = 5
	ResInvalidDatabase ResponseCode = 6
	ResInvalidCommand  ResponseCode = 7
)

func (c ResponseCode) String() string {
	switch c {
	case ResReady:
		return "Ready"
	case ResFailedStart:
		return "FailedStart"
	case ResStarting:
		return "Starting"
	case ResAlreadyStarted:
		return "AlreadyStarted"
	case ResReplicate:
		return "Replicate"
	case ResPayload:
		return "Payload"
	case ResInvalidDatabase:
		return "InvalidDatabase"
	case ResInvalidCommand:
		return "InvalidCommand"
	default:
		return fmt.Sprintf("ResponseCode(%d)", int32(c))
	}
}

const (
	respFieldCode    = 1
	respFieldPayload = 2
)

// RedoResponse is the server -> client control message. Payload carries
// raw JSON change-event bytes only when Code == ResPayload; it is empty
// for the other (purely control) codes.
type RedoResponse struct {
	Code    ResponseCode
	Payload []byte
}

// Marshal encodes r, used by tests that play the server side of the
// handshake.
func (r *RedoResponse) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, respFieldCode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Code))
	if len(r.Payload) > 0 {
		b = protowire.AppendTag(b, respFieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Payload)
	}
	return b
}

// UnmarshalRedoResponse decodes a RedoResponse frame payload.
func UnmarshalRedoResponse(data []byte) (*RedoResponse, error) {
	r := &RedoResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("olrpb: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case respFieldCode:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed code field: %w", protowire.ParseError(n))
			}
			r.Code = ResponseCode(v)
			data = data[n:]
		case respFieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed payload field: %w", protowire.ParseError(n))
			}
			r.Payload = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("olrpb: malformed unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}
