package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, start StartFunc) *Server {
	mgr := manager.New(0, nil)
	return New(mgr, filepath.Join(t.TempDir(), "objmap.yaml"), start)
}

func TestGetStateEmpty(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var got []manager.ConnectorState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got)
}

func TestStartWithoutFuncReturnsNotImplemented(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/connectors/mysql1/start", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStartDelegatesToStartFunc(t *testing.T) {
	var gotName string
	s := newTestServer(t, func(ctx context.Context, name, snapshotMode string) error {
		gotName = name
		return nil
	})
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/connectors/mysql1/start", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "mysql1", gotName)
}

func TestUnknownConnectorVerbIs404(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/connectors/mysql1/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopUnknownConnectorIsConflict(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/connectors/mysql1/stop", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddAndDelObjmap(t *testing.T) {
	s := newTestServer(t, nil)

	body, err := json.Marshal(objmapRequest{ID: "shop.customers", Kind: "table", NewName: "clients"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/objmap/add", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	names, err := s.objmap.LoadNameRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 1)

	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/objmap/del", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	names, err = s.objmap.LoadNameRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
