package oracleddl

import (
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubParserRegisteredCase(t *testing.T) {
	p := NewStubParser()
	p.Register(`DROP TABLE HR.EMP`, &AST{
		Kind:   event.DdlDrop,
		Schema: "HR",
		Table:  "EMP",
	})

	ast, err := p.Parse("  DROP TABLE HR.EMP  ")
	require.NoError(t, err)
	assert.Equal(t, event.DdlDrop, ast.Kind)
	assert.Equal(t, "EMP", ast.Table)
}

func TestStubParserUnregisteredErrors(t *testing.T) {
	p := NewStubParser()
	_, err := p.Parse("DROP TABLE HR.NOPE")
	assert.Error(t, err)
}
