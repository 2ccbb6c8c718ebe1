// Package factdb is the persisted cross-function fact store. It holds three
// append-only tables keyed by stable identities:
//
//	caller_info:  "parameter K of this callee is bounded by parameter J",
//	              written at call sites, read back when the callee is
//	              analyzed.
//	call_implies: the same relation derived from the callee's own body
//	              (bulk copies into a parameter), applied at call sites.
//	data_info:    known array-length limiter variables by normalized
//	              identity ("(struct S)->member", "static n", "global n").
//
// Duplicate inserts are tolerated as redundant facts; an in-process cache
// suppresses the repeats. There is no update-in-place and no rollback: the
// keys (function+parameter+unit, the normalized identity strings) are the
// contract incremental reruns depend on.
package factdb

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// KindArrayLen tags data_info rows that mark a variable as an array-length
// limiter. Size-fact kinds occupy 1..5; this lives outside that range.
const KindArrayLen = 8

const schema = `
CREATE TABLE IF NOT EXISTS caller_info (
	function  TEXT NOT NULL,
	static    INTEGER NOT NULL DEFAULT 0,
	type      INTEGER NOT NULL,
	parameter INTEGER NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS call_implies (
	function  TEXT NOT NULL,
	static    INTEGER NOT NULL DEFAULT 0,
	type      INTEGER NOT NULL,
	parameter INTEGER NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS data_info (
	data  TEXT NOT NULL,
	type  INTEGER NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS caller_info_fn ON caller_info(function);
CREATE INDEX IF NOT EXISTS call_implies_fn ON call_implies(function);
CREATE INDEX IF NOT EXISTS data_info_data ON data_info(data, type);
`

// Row is one caller_info or call_implies entry.
type Row struct {
	Function  string
	Static    bool
	Type      int
	Parameter int
	Key       string
	Value     string
}

// DB wraps the SQLite store. Safe for concurrent use.
type DB struct {
	sql  *sql.DB
	mu   sync.Mutex
	seen map[string]struct{}
}

// Open opens (or creates) the store at the given path. ":memory:" gives a
// process-private store.
func Open(path string) (*DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open fact store %s: %w", path, err)
	}
	// modernc sqlite is happiest with a single writer connection
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init fact store schema: %w", err)
	}
	return &DB{sql: sqlDB, seen: make(map[string]struct{})}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// dedupe returns false when this exact insert was already issued by this
// process.
func (d *DB) dedupe(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertCallerInfo persists a call-site summary for a callee.
func (d *DB) InsertCallerInfo(fn string, static bool, typ, param int, key, value string) error {
	k := fmt.Sprintf("ci|%s|%v|%d|%d|%s|%s", fn, static, typ, param, key, value)
	if !d.dedupe(k) {
		return nil
	}
	_, err := d.sql.Exec(
		"INSERT INTO caller_info (function, static, type, parameter, key, value) VALUES (?, ?, ?, ?, ?, ?)",
		fn, boolInt(static), typ, param, key, value)
	if err != nil {
		return fmt.Errorf("insert caller_info: %w", err)
	}
	return nil
}

// SelectCallerInfo returns summaries recorded for a function, stable order.
func (d *DB) SelectCallerInfo(fn string) ([]Row, error) {
	return d.selectRows("caller_info", fn)
}

// InsertCallImplies persists a body-derived parameter bound for a function.
func (d *DB) InsertCallImplies(fn string, static bool, typ, param int, key, value string) error {
	k := fmt.Sprintf("im|%s|%v|%d|%d|%s|%s", fn, static, typ, param, key, value)
	if !d.dedupe(k) {
		return nil
	}
	_, err := d.sql.Exec(
		"INSERT INTO call_implies (function, static, type, parameter, key, value) VALUES (?, ?, ?, ?, ?, ?)",
		fn, boolInt(static), typ, param, key, value)
	if err != nil {
		return fmt.Errorf("insert call_implies: %w", err)
	}
	return nil
}

// SelectCallImplies returns body-derived bounds for a function.
func (d *DB) SelectCallImplies(fn string) ([]Row, error) {
	return d.selectRows("call_implies", fn)
}

func (d *DB) selectRows(table, fn string) ([]Row, error) {
	if strings.ContainsAny(table, " ;") {
		return nil, fmt.Errorf("bad table name %q", table)
	}
	rows, err := d.sql.Query(
		"SELECT function, static, type, parameter, key, value FROM "+table+" WHERE function = ? ORDER BY rowid", fn)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var static int
		if err := rows.Scan(&r.Function, &static, &r.Type, &r.Parameter, &r.Key, &r.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r.Static = static != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertDataInfo persists a limiter/size identity fact. value names the
// array the limiter is tied to; empty means it limits everything.
func (d *DB) InsertDataInfo(data string, typ int, value string) error {
	k := fmt.Sprintf("di|%s|%d|%s", data, typ, value)
	if !d.dedupe(k) {
		return nil
	}
	_, err := d.sql.Exec(
		"INSERT INTO data_info (data, type, value) VALUES (?, ?, ?)", data, typ, value)
	if err != nil {
		return fmt.Errorf("insert data_info: %w", err)
	}
	return nil
}

// IsKnownLimit reports whether the named variable identity is recorded as an
// array-length limiter for the given array identity. Rows stored with an
// empty array identity limit everything.
func (d *DB) IsKnownLimit(data, arrayIdentity string) (bool, error) {
	rows, err := d.sql.Query(
		"SELECT value FROM data_info WHERE type = ? AND data = ?", KindArrayLen, data)
	if err != nil {
		return false, fmt.Errorf("query data_info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return false, fmt.Errorf("scan data_info: %w", err)
		}
		if value == "" || arrayIdentity == "" || value == arrayIdentity {
			return true, nil
		}
	}
	return false, rows.Err()
}
