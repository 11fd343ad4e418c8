package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS documents (
    collection VARCHAR(64)  NOT NULL,
    id         VARCHAR(191) NOT NULL,
    body       JSON         NOT NULL,
    updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQL stores documents as JSON rows in a single InnoDB table. Transactions
// take row locks with SELECT ... FOR UPDATE, so concurrent redemptions of the
// same review token queue behind each other.
type MySQL struct {
	db *sql.DB
}

// NewMySQL ensures the documents table exists.
func NewMySQL(ctx context.Context, db *sql.DB) (*MySQL, error) {
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		return nil, unavailable("create documents table", err)
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func mysqlGet(ctx context.Context, q querier, collection, id string, lock bool) (document, error) {
	query := "SELECT body FROM documents WHERE collection=? AND id=?"
	if lock {
		query += " FOR UPDATE"
	}
	var body []byte
	if err := q.QueryRowContext(ctx, query, collection, id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(collection, id)
		}
		return nil, unavailable("select document", err)
	}
	var d document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func mysqlPut(ctx context.Context, q querier, collection string, d document) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES (?,?,?) ON DUPLICATE KEY UPDATE body=VALUES(body)",
		collection, d["id"], body)
	if err != nil {
		return unavailable("upsert document", err)
	}
	return nil
}

func mysqlMerge(ctx context.Context, q querier, collection, id string, fields map[string]any, lock bool) error {
	d, err := mysqlGet(ctx, q, collection, id, lock)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		d = document{"id": id}
	}
	mergeInto(d, fields)
	return mysqlPut(ctx, q, collection, d)
}

func (s *MySQL) Get(ctx context.Context, collection, id string, out any) error {
	d, err := mysqlGet(ctx, s.db, collection, id, false)
	if err != nil {
		return err
	}
	return fromDocument(d, out)
}

func (s *MySQL) List(ctx context.Context, collection string, filter Filter, out any) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE collection=? ORDER BY updated_at, id", collection)
	if err != nil {
		return unavailable("list documents", err)
	}
	defer rows.Close()

	docs := []document{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return err
		}
		var d document
		if err := json.Unmarshal(body, &d); err != nil {
			return err
		}
		if matches(d, filter) {
			docs = append(docs, d)
		}
	}
	if err := rows.Err(); err != nil {
		return unavailable("list documents", err)
	}
	return fromDocuments(docs, out)
}

func (s *MySQL) Put(ctx context.Context, collection, id string, doc any) error {
	d, err := toDocument(id, doc)
	if err != nil {
		return err
	}
	return mysqlPut(ctx, s.db, collection, d)
}

// Merge reads and rewrites the row inside its own transaction so concurrent
// merges on one document do not lose fields.
func (s *MySQL) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Merge(ctx, collection, id, fields)
	})
}

func (s *MySQL) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection=? AND id=?", collection, id)
	if err != nil {
		return unavailable("delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(collection, id)
	}
	return nil
}

// RunTransaction wraps fn in a REPEATABLE READ transaction.
func (s *MySQL) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return unavailable("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(ctx, ordered(&mysqlTx{tx: sqlTx})); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return unavailable("commit transaction", err)
	}
	committed = true
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) Get(ctx context.Context, collection, id string, out any) error {
	d, err := mysqlGet(ctx, t.tx, collection, id, true)
	if err != nil {
		return err
	}
	return fromDocument(d, out)
}

func (t *mysqlTx) Put(ctx context.Context, collection, id string, doc any) error {
	d, err := toDocument(id, doc)
	if err != nil {
		return err
	}
	return mysqlPut(ctx, t.tx, collection, d)
}

func (t *mysqlTx) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return mysqlMerge(ctx, t.tx, collection, id, fields, true)
}
