// Package sqlbundle exposes the embedded store DDL bundles for the persistence adapters.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	sqldocs "mitonet/docs/schema/sql"
)

// Tables lists the tables created by every bundle, in creation order.
var Tables = []string{
	"data_sources",
	"proteins",
	"protein_aliases",
	"interactions",
	"processing_checkpoints",
}

// SQLite returns the SQLite DDL.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL.
func Postgres() string {
	return sqldocs.Postgres
}

// For returns the DDL bundle for the named dialect.
func For(dialect string) (string, error) {
	switch dialect {
	case "sqlite":
		return SQLite(), nil
	case "postgres":
		return Postgres(), nil
	default:
		return "", fmt.Errorf("no ddl bundle for dialect %q", dialect)
	}
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
