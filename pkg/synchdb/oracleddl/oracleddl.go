// Package oracleddl models the external Oracle DDL grammar parser as an
// injected capability, exactly as spec.md §9's Design Notes describe
// ("External parser (Oracle DDL)"): the core never links a native Oracle
// SQL grammar, it depends on this package's Parser interface and a
// caller-supplied implementation. Production implementations (loading a
// shared library or calling out to a JVM-hosted grammar) are out of
// scope per spec.md §1; this package ships only the interface, the
// shared AST shape, and a canned test double.
package oracleddl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// Kind classifies the parsed statement, mirroring event.DdlKind so
// pkg/synchdb/parser/olr can translate AST to event.Ddl without a second
// enum conversion table.
type Kind = event.DdlKind

// Column is one column definition inside a CREATE or ADD COLUMN AST node.
type Column struct {
	Name       string
	RemoteType string
	Length     int
	Scale      int
	Optional   bool
}

// AST is the walked result of one parsed Oracle DDL statement, reduced to
// exactly the fields pkg/synchdb/parser/olr needs to build an event.Ddl:
// column definitions for CREATE, the added/dropped/altered column set for
// ALTER, and the table identity for DROP.
type AST struct {
	Kind           Kind
	Schema         string
	Table          string
	Columns        []Column
	PrimaryKey     []string
	AlterSubkind   event.AlterSubkind
	ConstraintName string
}

// Parser is the injected capability. Callers (pkg/synchdb/parser/olr)
// hand it already-normalised, whitelist-filtered SQL text (see that
// package's ddl.go) — Parser implementations are not responsible for
// stripping Oracle's internal SYS_BIN$ suffixes or truncating storage
// clauses.
type Parser interface {
	Parse(sql string) (*AST, error)
}

// StubParser is the only Parser implementation this repository ships: a
// map of pre-registered SQL text to its AST, for tests and for
// environments with no native Oracle grammar available. Register installs
// the canned result for an exact (whitespace-trimmed) SQL string.
type StubParser struct {
	mu    sync.RWMutex
	cases map[string]*AST
}

// NewStubParser returns an empty StubParser; callers populate it with
// Register before use.
func NewStubParser() *StubParser {
	return &StubParser{cases: make(map[string]*AST)}
}

// Register installs ast as the canned result for sql (matched after
// trimming surrounding whitespace, case-sensitive otherwise — Oracle
// identifiers in the whitelist-filtered text are already upper-cased by
// the source).
func (s *StubParser) Register(sql string, ast *AST) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[strings.TrimSpace(sql)] = ast
}

// Parse looks up sql among the registered cases. An unregistered
// statement is reported as ErrUnsupportedDdl, matching the whitelist
// semantics a production parser would enforce by rejecting grammar it
// doesn't recognise.
func (s *StubParser) Parse(sql string) (*AST, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ast, ok := s.cases[strings.TrimSpace(sql)]; ok {
		return ast, nil
	}
	return nil, fmt.Errorf("%w: no stub registered for %q", synchdberr.ErrUnsupportedDdl, sql)
}
