package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// TestInitDBCreatesFinalSchema verifies InitDB creates the record, watermark
// and key-value tables with the expected columns.
func TestInitDBCreatesFinalSchema(t *testing.T) {
	dbConn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	if err := InitDB(dbConn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	// Migrations are idempotent.
	if err := InitDB(dbConn); err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}

	for _, table := range []string{"collections", "records", "kv"} {
		var name string
		if err := dbConn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}

	rows, err := dbConn.Query("PRAGMA table_info(records)")
	if err != nil {
		t.Fatalf("pragmas: %v", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var colName, ctype string
		var notnull, pk int
		var dfltVal interface{}
		if err := rows.Scan(&cid, &colName, &ctype, &notnull, &dfltVal, &pk); err != nil {
			t.Fatalf("scan col: %v", err)
		}
		cols[colName] = true
	}
	for _, c := range []string{"collection", "id", "data_updated_at", "body"} {
		if !cols[c] {
			t.Fatalf("expected column %s in records, got %v", c, cols)
		}
	}
}
