package olr

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/cdcbridge/synchdb/pkg/synchdb/parser/olr/olrpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer plays the OLR side of an in-memory pipe: reads one framed
// RedoRequest and writes back a canned framed RedoResponse.
func fakeServer(t *testing.T, conn net.Conn, resp *olrpb.RedoResponse) *olrpb.RedoRequest {
	t.Helper()
	var hdr [4]byte
	_, err := io.ReadFull(conn, hdr[:])
	require.NoError(t, err)
	size := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16 | int(hdr[3])<<24
	payload := make([]byte, size)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)

	req, err := olrpb.UnmarshalRedoRequest(payload)
	require.NoError(t, err)

	_, err = conn.Write(EncodeFrame(resp.Marshal()))
	require.NoError(t, err)

	return req
}

func TestClientStartContinueResumesPastPersistedOffset(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan *olrpb.RedoRequest, 1)
	go func() {
		done <- fakeServer(t, serverConn, &olrpb.RedoResponse{Code: olrpb.ResReplicate})
	}()

	c := NewClient(clientConn)
	code, err := c.Start("ORCLPDB1", StartModeContinue, 1000, 990)
	require.NoError(t, err)
	assert.Equal(t, olrpb.ResReplicate, code)

	select {
	case req := <-done:
		assert.Equal(t, olrpb.RequestCodeContinue, req.Code)
		assert.Equal(t, uint64(1001), req.Scn)
		assert.Equal(t, uint64(991), req.CScn)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to observe request")
	}
}

func TestClientStartRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go fakeServer(t, serverConn, &olrpb.RedoResponse{Code: olrpb.ResInvalidDatabase})

	c := NewClient(clientConn)
	_, err := c.Start("NOPE", StartModeInitial, 0, 0)
	assert.Error(t, err)
}
