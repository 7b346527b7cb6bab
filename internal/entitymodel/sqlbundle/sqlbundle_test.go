package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	if len(stmts) == 0 {
		t.Fatal("expected sqlite DDL to produce statements")
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- header\nCREATE TABLE a (x INT);\n\nCREATE TABLE b (y INT)")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE TABLE b (y INT)" {
		t.Fatalf("unexpected tail statement %q", stmts[1])
	}
}

func TestBundlesDeclareEveryTable(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		ddl, err := For(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		for _, table := range Tables {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				t.Fatalf("%s bundle missing table %s", dialect, table)
			}
		}
	}
	if _, err := For("oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestPostgresBundleUsesNativeTypes(t *testing.T) {
	ddl := Postgres()
	for _, want := range []string{"BIGSERIAL", "JSONB", "TIMESTAMPTZ"} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("expected postgres DDL to contain %s", want)
		}
	}
	if strings.Contains(ddl, "AUTOINCREMENT") {
		t.Fatal("postgres DDL must not use sqlite AUTOINCREMENT")
	}
}
