// SPDX-License-Identifier: ice License 1.0

// Package query is the reference store.Store backend: a single SQLite
// database holding an events table and a secondary event_tags index table
// kept in sync via triggers (see DDL.sql), following the teacher's
// prepared-statement-cache / custom struct mapper technique.
package query

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/subzero-relay/subzero/store"
)

type (
	// SQLiteStore is the reference implementation of store.Store.
	SQLiteStore struct {
		*sqlx.DB

		target      string
		stmtCacheMx *sync.RWMutex
		stmtCache   map[string]*sqlx.NamedStmt
	}
)

var (
	//go:embed DDL.sql
	ddl string

	_ store.Store = (*SQLiteStore)(nil)
)

// New returns a store backed by the SQLite database at target ("" or
// ":memory:" opens a private in-memory database). Call Init before use.
func New(target string) *SQLiteStore {
	if target == "" {
		target = ":memory:"
	}

	return &SQLiteStore{
		target:      target,
		stmtCacheMx: new(sync.RWMutex),
		stmtCache:   make(map[string]*sqlx.NamedStmt),
	}
}

func (db *SQLiteStore) Init(context.Context) error {
	db.DB = sqlx.MustConnect("sqlite3", db.target)
	db.Mapper = reflectx.NewMapperFunc("subzero", func(in string) (out string) {
		n := strings.ToLower(in)
		switch n {
		case "createdat":
			out = "created_at"
		case "systemcreatedat":
			out = "system_created_at"
		case "referenceid":
			out = "reference_id"
		default:
			out = n
		}

		return out
	})

	for _, statement := range strings.Split(ddl, "--------") {
		db.MustExec(statement)
	}

	return nil
}

func (db *SQLiteStore) exec(ctx context.Context, sql string, arg any) (rowsAffected int64, err error) {
	hash := hashSQL(sql)

	stmt, err := db.prepare(ctx, sql, hash)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to prepare exec sql: `%v`", sql)
	}

	result, err := stmt.ExecContext(ctx, arg)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to exec prepared sql: `%v`", sql)
	}
	if rowsAffected, err = result.RowsAffected(); err != nil {
		return 0, errors.Wrapf(err, "failed to process rows affected for exec prepared sql: `%v`", sql)
	}

	return rowsAffected, nil
}

func (db *SQLiteStore) prepare(ctx context.Context, sql, hash string) (stmt *sqlx.NamedStmt, err error) {
	db.stmtCacheMx.RLock()
	stmt, found := db.stmtCache[hash]
	db.stmtCacheMx.RUnlock()
	if found {
		return stmt, nil
	}

	db.stmtCacheMx.Lock()
	defer db.stmtCacheMx.Unlock()
	stmt, found = db.stmtCache[hash]
	if found {
		return stmt, nil
	}

	stmt, err = db.PrepareNamedContext(ctx, sql)
	if err == nil {
		db.stmtCache[hash] = stmt
	}

	return stmt, err
}

func hashSQL(sql string) (hash string) {
	sum := sha256.Sum256([]byte(sql))

	return string(sum[:])
}
