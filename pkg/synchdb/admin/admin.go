// Package admin exposes pkg/synchdb/manager.Manager's operations over
// HTTP, implementing spec.md §6's admin surface as a small control
// plane a running "pgo synchdb run" daemon listens on and the "pgo
// synchdb <verb>" CLI subcommands call into. No third-party RPC
// framework in the example corpus fits an internal control plane this
// thin (grpc is reserved for the data-plane fanout sink in
// pkg/pipeline/peer/grpc); net/http plus encoding/json is the stdlib
// fallback, justified in DESIGN.md.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cdcbridge/synchdb/pkg/synchdb/manager"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/cdcbridge/synchdb/pkg/synchdb/rules/filerules"
)

// Server wraps a Manager and an objmap FileSource behind an HTTP mux.
type Server struct {
	mgr    *manager.Manager
	objmap *filerules.FileSource
	start  StartFunc
	mux    *http.ServeMux
	srv    *http.Server
}

// StartFunc constructs and registers the named connector with the
// Manager, per spec.md §6's start(name[, snapshot_mode]) operation. The
// daemon supplies this: building a connector needs per-kind source/
// parser/destination wiring the admin plane itself has no business
// doing.
type StartFunc func(ctx context.Context, name, snapshotMode string) error

// New builds a Server bound to mgr and the objmap file at objmapPath.
// start handles the start() verb; pass nil to reject all start requests
// (e.g. a read-only admin client).
func New(mgr *manager.Manager, objmapPath string, start StartFunc) *Server {
	s := &Server{mgr: mgr, objmap: filerules.NewFileSource(objmapPath), start: start, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ListenAndServe starts the HTTP admin server on addr; it blocks until
// ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	errc := make(chan error, 1)
	go func() { errc <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.srv.Shutdown(context.Background())
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/connectors/", s.handleConnectorVerb)
	s.mux.HandleFunc("/state", s.handleGetState)
	s.mux.HandleFunc("/stats", s.handleGetStats)
	s.mux.HandleFunc("/objmap/add", s.handleAddObjmap)
	s.mux.HandleFunc("/objmap/del", s.handleDelObjmap)
}

// connectorRequest carries the name and any verb-specific payload for
// a single-connector admin operation. Offset is only meaningful for
// set_offset; SnapshotMode only for start and restart.
type connectorRequest struct {
	Name         string `json:"name"`
	SnapshotMode string `json:"snapshotMode,omitempty"`
	Offset       []byte `json:"offset,omitempty"`
}

// handleConnectorVerb dispatches POST /connectors/<name>/<verb> to the
// matching Manager method, or to the injected StartFunc for "start".
func (s *Server) handleConnectorVerb(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name, verb, ok := splitConnectorPath(r.URL.Path)
	if !ok {
		http.Error(w, "expected /connectors/<name>/<verb>", http.StatusBadRequest)
		return
	}

	var body connectorRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
			return
		}
	}

	var err error
	switch verb {
	case "start":
		if s.start == nil {
			http.Error(w, "start not supported by this admin server", http.StatusNotImplemented)
			return
		}
		err = s.start(r.Context(), name, body.SnapshotMode)
	case "stop":
		err = s.mgr.Stop(name)
	case "pause":
		err = s.mgr.Pause(name)
	case "resume":
		err = s.mgr.Resume(name)
	case "restart":
		err = s.mgr.Restart(name, body.SnapshotMode)
	case "set_offset":
		err = s.mgr.SetOffset(name, body.Offset)
	case "reload_objmap":
		err = s.mgr.ReloadObjmap(name)
	case "reset_stats":
		err = s.mgr.ResetStats(name)
	case "remove":
		err = s.mgr.Remove(name)
	default:
		http.Error(w, fmt.Sprintf("unknown verb %q", verb), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.GetState())
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.GetStats())
}

// objmapRequest is the body of /objmap/add and /objmap/del: a rename
// rule for a table or column id, per spec.md §6's add_objmap/del_objmap
// operations.
type objmapRequest struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"` // "table" or "column"
	NewName string `json:"newName,omitempty"`
}

func (s *Server) handleAddObjmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req objmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.objmap.AddNameRule(req.ID, objectKind(req.Kind), req.NewName); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelObjmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req objmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.objmap.DelNameRule(req.ID, objectKind(req.Kind)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func objectKind(s string) rules.ObjectKind {
	if s == "column" {
		return rules.ObjectColumn
	}
	return rules.ObjectTable
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func splitConnectorPath(path string) (name, verb string, ok bool) {
	const prefix = "/connectors/"
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], rest[:i] != "" && rest[i+1:] != ""
		}
	}
	return "", "", false
}
