package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	logx "missionctl/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const defaultSQLiteFile = "missionctl.db"

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	closed atomic.Bool
}

// sqlitePath resolves cfg.Path: a path without extension is a directory.
func sqlitePath(raw string) string {
	p := strings.TrimSpace(raw)
	if filepath.Ext(p) == "" {
		return filepath.Join(p, defaultSQLiteFile)
	}
	return p
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := sqlitePath(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sqlite dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return errors.Wrap(err, "migrate")
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) check(collection string) error {
	if s == nil || s.db == nil || s.closed.Load() {
		return ErrClosed
	}
	return checkCollection(collection)
}

func (s *sqliteStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", collection)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, errors.Wrapf(err, "scan %s", collection)
		}
		out = append(out, Document{ID: id, Body: json.RawMessage(body)})
	}
	return out, errors.Wrapf(rows.Err(), "list %s", collection)
}

func (s *sqliteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := s.check(collection); err != nil {
		return Document{}, err
	}
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s/%s", collection, id)
	}
	return Document{ID: id, Body: json.RawMessage(body)}, nil
}

func (s *sqliteStore) Put(ctx context.Context, collection string, doc Document) error {
	if err := s.check(collection); err != nil {
		return err
	}
	obj, err := normalize(doc)
	if err != nil {
		return err
	}
	enc, err := encode(obj)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, id, body, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(collection, id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		collection, enc.ID, string(enc.Body), time.Now().UnixMilli(),
	)
	return errors.Wrapf(err, "put %s/%s", collection, enc.ID)
}

func (s *sqliteStore) Patch(ctx context.Context, collection, id string, fields map[string]any) (Document, error) {
	if err := s.check(collection); err != nil {
		return Document{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, errors.Wrap(err, "begin patch")
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "patch %s/%s", collection, id)
	}

	obj, err := normalize(Document{ID: id, Body: json.RawMessage(body)})
	if err != nil {
		return Document{}, err
	}
	doc, err := encode(merge(obj, fields))
	if err != nil {
		return Document{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(doc.Body), time.Now().UnixMilli(), collection, id,
	); err != nil {
		return Document{}, errors.Wrapf(err, "patch %s/%s", collection, id)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, errors.Wrap(err, "commit patch")
	}
	return doc, nil
}

func (s *sqliteStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.check(collection); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", collection, id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
