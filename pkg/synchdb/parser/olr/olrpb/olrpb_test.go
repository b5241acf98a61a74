package olrpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedoRequestRoundTrip(t *testing.T) {
	req := &RedoRequest{
		Code:         RequestCodeContinue,
		DatabaseName: "ORCLPDB1",
		TmValCase:    TmValCaseSCN,
		Scn:          1001,
		CScn:         991,
		CIdx:         0,
	}
	data := req.Marshal()
	got, err := UnmarshalRedoRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.Code, got.Code)
	assert.Equal(t, req.DatabaseName, got.DatabaseName)
	assert.Equal(t, req.Scn, got.Scn)
	assert.Equal(t, req.CScn, got.CScn)
}

func TestRedoResponseRoundTripControl(t *testing.T) {
	resp := &RedoResponse{Code: ResStarting}
	got, err := UnmarshalRedoResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, ResStarting, got.Code)
	assert.Empty(t, got.Payload)
}

func TestRedoResponseRoundTripPayload(t *testing.T) {
	resp := &RedoResponse{Code: ResPayload, Payload: []byte(`{"payload":{"op":"c"}}`)}
	got, err := UnmarshalRedoResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, ResPayload, got.Code)
	assert.Equal(t, resp.Payload, got.Payload)
}

func TestResponseCodeString(t *testing.T) {
	assert.Equal(t, "Ready", ResReady.String())
	assert.Equal(t, "InvalidCommand", ResInvalidCommand.String())
}
