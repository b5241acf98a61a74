package filerules

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileLoadsEmpty(t *testing.T) {
	f := NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"))
	types, err := f.LoadTypeRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestAddAndReloadNameRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objmap.yaml")
	f := NewFileSource(path)

	require.NoError(t, f.AddNameRule("shop.customers", rules.ObjectTable, "clients"))

	names, err := f.LoadNameRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clients", names[rules.NameKey{ID: "shop.customers", Kind: rules.ObjectTable}])

	store := rules.New()
	_, err = store.Reload(context.Background(), f)
	require.NoError(t, err)
	name, ok := store.ResolveName("shop.customers", rules.ObjectTable)
	require.True(t, ok)
	assert.Equal(t, "clients", name)
}

func TestDelNameRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objmap.yaml")
	f := NewFileSource(path)
	require.NoError(t, f.AddNameRule("shop.customers", rules.ObjectTable, "clients"))
	require.NoError(t, f.DelNameRule("shop.customers", rules.ObjectTable))

	names, err := f.LoadNameRules(context.Background())
	require.NoError(t, err)
	_, ok := names[rules.NameKey{ID: "shop.customers", Kind: rules.ObjectTable}]
	assert.False(t, ok)
}

func TestReloadDetectsRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objmap.yaml")
	f := NewFileSource(path)
	require.NoError(t, f.AddNameRule("shop.customers", rules.ObjectTable, "clients"))

	store := rules.New()
	_, err := store.Reload(context.Background(), f)
	require.NoError(t, err)

	require.NoError(t, f.AddNameRule("shop.customers", rules.ObjectTable, "accounts"))
	migrations, err := store.Reload(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, rules.MigrationRenameTable, migrations[0].Kind)
	assert.Equal(t, "accounts", migrations[0].NewName)
}
