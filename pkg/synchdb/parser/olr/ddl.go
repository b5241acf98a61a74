package olr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// sysBinSuffix strips Oracle's internal "AS SYS_BIN$…" rename-before-drop
// suffix, which DROP TABLE statements carry in redo but which no
// destination parser understands.
var sysBinSuffix = regexp.MustCompile(`(?i)\s+AS\s+SYS_BIN\$.*$`)

// whitelistStmt matches the three DDL shapes spec.md §4.F allows through;
// anything else is UnsupportedDdl.
var whitelistStmt = regexp.MustCompile(`(?i)^\s*(CREATE|ALTER|DROP)\s+TABLE\s+`)

// NormalizeDDL implements spec.md §4.F's DDL normalisation step: strip the
// SYS_BIN$ suffix, truncate a CREATE TABLE's storage clause after its
// closing column-list paren, and reject anything outside the CREATE/
// ALTER/DROP TABLE whitelist.
func NormalizeDDL(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)
	trimmed = sysBinSuffix.ReplaceAllString(trimmed, "")
	trimmed = strings.TrimSpace(trimmed)

	if !whitelistStmt.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q not in CREATE/ALTER/DROP TABLE whitelist", synchdberr.ErrUnsupportedDdl, sql)
	}

	if strings.HasPrefix(strings.ToUpper(trimmed), "CREATE") {
		trimmed = truncateStorageClause(trimmed)
	}

	return trimmed, nil
}

// truncateStorageClause drops everything after a CREATE TABLE statement's
// closing column-list parenthesis (Oracle's TABLESPACE/STORAGE/LOGGING
// clauses), which no destination DDL dialect needs or understands.
func truncateStorageClause(sql string) string {
	depth := 0
	open := false
	for i, r := range sql {
		switch r {
		case '(':
			depth++
			open = true
		case ')':
			depth--
			if open && depth == 0 {
				return strings.TrimSpace(sql[:i+1]) + ";"
			}
		}
	}
	return sql
}
