package ident

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	db, schema, table, err := Split("Orders", true)
	require.NoError(t, err)
	assert.Equal(t, "", db)
	assert.Equal(t, "", schema)
	assert.Equal(t, "orders", table)

	db, schema, table, err = Split("Shop.Orders", true)
	require.NoError(t, err)
	assert.Equal(t, "shop", db)
	assert.Equal(t, "", schema)
	assert.Equal(t, "orders", table)

	_, schema, table, err = Split("dbo.t", false)
	require.NoError(t, err)
	assert.Equal(t, "dbo", schema)
	assert.Equal(t, "t", table)

	db, schema, table, err = Split("hr.public.emp", true)
	require.NoError(t, err)
	assert.Equal(t, "hr", db)
	assert.Equal(t, "public", schema)
	assert.Equal(t, "emp", table)

	_, _, _, err = Split("a.b.c.d", true)
	assert.Error(t, err)
}

func TestEscapeQuote(t *testing.T) {
	assert.Equal(t, "''", EscapeQuote("'", true))
	assert.Equal(t, "it''s", EscapeQuote("it's", false))
	assert.Equal(t, "'it''s'", EscapeQuote("it's", true))
}

func TestRemovePrecision(t *testing.T) {
	stripped, changed := RemovePrecision("varchar(255)")
	assert.True(t, changed)
	assert.Equal(t, "varchar", stripped)

	stripped, changed = RemovePrecision("int")
	assert.False(t, changed)
	assert.Equal(t, "int", stripped)

	stripped, changed = RemovePrecision("decimal(10,2)")
	assert.True(t, changed)
	assert.Equal(t, "decimal", stripped)
}

func TestReverseBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ReverseBytes(b)
	assert.Equal(t, []byte{4, 3, 2, 1}, b)
}

func TestDecodeBigEndianSigned(t *testing.T) {
	assert.Equal(t, big.NewInt(0), DecodeBigEndianSigned(nil))
	assert.Equal(t, big.NewInt(1), DecodeBigEndianSigned([]byte{0x01}))
	assert.Equal(t, big.NewInt(-1), DecodeBigEndianSigned([]byte{0xFF}))
	assert.Equal(t, big.NewInt(255), DecodeBigEndianSigned([]byte{0x00, 0xFF}))
	assert.Equal(t, big.NewInt(-256), DecodeBigEndianSigned([]byte{0xFF, 0x00}))
}

func TestBytesToBinaryStringAndTrim(t *testing.T) {
	s := BytesToBinaryString([]byte{0x05})
	assert.Equal(t, "00000101", s)
	assert.Equal(t, "101", TrimLeadingZeros(s))
	assert.Equal(t, "0", TrimLeadingZeros("0000"))
}

func TestPadLeft(t *testing.T) {
	assert.Equal(t, "00101", PadLeft("101", 5, '0'))
	assert.Equal(t, "101", PadLeft("101", 2, '0'))
}

func TestFoldLower(t *testing.T) {
	assert.Equal(t, "abc_déf", FoldLower("ABC_déf"))
}
