package gormsqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildDSNIncludesPerConnectionPragmas(t *testing.T) {
	reader := buildDSN("./db.sqlite", true)
	writer := buildDSN("./db.sqlite", false)

	checks := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=trusted_schema(OFF)",
	}
	for _, c := range checks {
		if !strings.Contains(reader, c) {
			t.Fatalf("reader dsn missing %q: %s", c, reader)
		}
		if !strings.Contains(writer, c) {
			t.Fatalf("writer dsn missing %q: %s", c, writer)
		}
	}

	if !strings.Contains(reader, "_pragma=query_only(1)") {
		t.Fatalf("reader dsn missing query_only(1): %s", reader)
	}
	if !strings.Contains(writer, "_pragma=query_only(0)") {
		t.Fatalf("writer dsn missing query_only(0): %s", writer)
	}
	if !strings.HasPrefix(writer, "file:./db.sqlite?") {
		t.Fatalf("unexpected writer dsn: %s", writer)
	}
}

func TestReaderRejectsWrites(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	err = db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)").Error
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	err = db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO notes (body) VALUES ('x')").Error
	})
	if err == nil {
		t.Fatal("expected reader to reject insert")
	}

	var count int64
	err = db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Table("notes").Count(&count).Error
	})
	if err != nil || count != 0 {
		t.Fatalf("count = %d, err = %v", count, err)
	}
}
