// Package ident holds the identifier and byte/bit helpers shared by the
// rule store, codec, and converter: case folding, dotted-id splitting,
// quote escaping, and the big-endian integer decode used for numeric and
// bit-string columns. Every function here is pure and side-effect-free.
package ident

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// FoldLower lowercases s using an ASCII-only fold, matching the source
// system's isalnum-on-unsigned-char identifier handling: bytes outside
// 'A'-'Z' pass through unchanged. strings.ToLower is deliberately not used
// here — see DESIGN.md's Open Question decision on identifier matching.
func FoldLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// Split divides a dotted identifier into up to three parts. Zero dots
// yields a bare table name. One dot is disambiguated by useDB: when true
// the pair is (db, table); when false it is (schema, table). Two dots
// always yields (db, schema, table). More than two dots fails with
// ErrMalformedIdentifier.
func Split(id string, useDB bool) (db, schema, table string, err error) {
	parts := strings.Split(id, ".")
	switch len(parts) {
	case 1:
		return "", "", FoldLower(parts[0]), nil
	case 2:
		if useDB {
			return FoldLower(parts[0]), "", FoldLower(parts[1]), nil
		}
		return "", FoldLower(parts[0]), FoldLower(parts[1]), nil
	case 3:
		return FoldLower(parts[0]), FoldLower(parts[1]), FoldLower(parts[2]), nil
	default:
		return "", "", "", fmt.Errorf("%w: %q has %d dots", synchdberr.ErrMalformedIdentifier, id, len(parts)-1)
	}
}

// EscapeQuote doubles any embedded single quote in s and, when wrap is
// true, wraps the result in a pair of single quotes.
func EscapeQuote(s string, wrap bool) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	if wrap {
		return "'" + escaped + "'"
	}
	return escaped
}

// RemovePrecision strips a single balanced parenthesised suffix from a
// type token, e.g. "varchar(255)" -> "varchar". changed reports whether
// anything was stripped.
func RemovePrecision(token string) (stripped string, changed bool) {
	open := strings.IndexByte(token, '(')
	if open < 0 {
		return token, false
	}
	close := strings.LastIndexByte(token, ')')
	if close < open {
		return token, false
	}
	return token[:open], true
}

// ReverseBytes reverses b in place.
func ReverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// DecodeBigEndianSigned interprets b as a big-endian two's-complement
// signed integer, preserving sign via top-bit extension. An empty slice
// decodes to zero.
func DecodeBigEndianSigned(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		// Negative: subtract 2^(8*len(b)).
		mod := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
		n.Sub(n, mod)
	}
	return n
}

// BytesToBinaryString renders b as a string of '0'/'1' characters, most
// significant bit first, eight characters per byte.
func BytesToBinaryString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 8)
	for _, by := range b {
		for bit := 7; bit >= 0; bit-- {
			if by&(1<<uint(bit)) != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}

// TrimLeadingZeros removes leading '0' characters from a binary string,
// leaving at least one character.
func TrimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// PadLeft left-pads s with pad bytes until it reaches width; s is
// returned unchanged if already at or beyond width.
func PadLeft(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	buf := make([]byte, width)
	n := width - len(s)
	for i := 0; i < n; i++ {
		buf[i] = pad
	}
	copy(buf[n:], s)
	return string(buf)
}
