package pipeline

import (
	"testing"

	"github.com/cdcbridge/synchdb/pkg/pipeline/cdc"
	_ "github.com/cdcbridge/synchdb/pkg/pipeline/peer/debug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAddPeerAndPub(t *testing.T) {
	m := NewManager()

	peer, err := m.AddPeer(ConnectorDebug, "console")
	require.NoError(t, err)
	assert.Equal(t, "console", peer.Name)

	require.NoError(t, peer.Connector().Connect(nil))
	require.NoError(t, peer.Connector().Pub(cdc.Event{}))
	assert.Equal(t, ConnectorTypePub, peer.Connector().Type())
}

func TestManagerAddPeerUnknownConnector(t *testing.T) {
	m := NewManager()
	_, err := m.AddPeer("does-not-exist", "x")
	require.Error(t, err)
}

func TestManagerGetPeer(t *testing.T) {
	m := NewManager()
	_, err := m.AddPeer(ConnectorDebug, "console")
	require.NoError(t, err)

	got, err := m.GetPeer("console")
	require.NoError(t, err)
	assert.Equal(t, ConnectorDebug, got.ConnectorName)

	_, err = m.GetPeer("missing")
	require.Error(t, err)
}

func TestManagerInitFromConfig(t *testing.T) {
	m := NewManager()
	cfg := &Config{
		Peers: []PeerConfig{
			{Name: "console", ConnectorName: ConnectorDebug},
		},
	}
	require.NoError(t, m.Init(cfg))
	assert.Len(t, m.Peers(), 1)
}
