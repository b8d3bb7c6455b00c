package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pricewatch/internal/tracking"
)

// DefaultSQLitePath is used when storage.sqlite.path is empty.
const DefaultSQLitePath = "data/pricewatch.db"

const (
	sqliteCreateSQL = `CREATE TABLE IF NOT EXISTS tracked_items (
        id                  TEXT PRIMARY KEY,
        position            INTEGER NOT NULL,
        url                 TEXT NOT NULL,
        title               TEXT NOT NULL DEFAULT '',
        tracking_type       TEXT NOT NULL,
        desired_value       TEXT NOT NULL,
        desired_price       TEXT NOT NULL,
        initial_price       TEXT NOT NULL,
        current_price       TEXT NOT NULL,
        last_notified_price TEXT,
        last_checked        TEXT NOT NULL
    );`

	sqliteListSQL = `SELECT id, position, url, title, tracking_type, desired_value, desired_price,
        initial_price, current_price, last_notified_price, last_checked
    FROM tracked_items ORDER BY position;`

	sqliteInsertSQL = `INSERT INTO tracked_items (id, position, url, title, tracking_type, desired_value,
        desired_price, initial_price, current_price, last_notified_price, last_checked)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
)

// SQLiteStore is the single-file relational option for small installs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteCreateSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tracked_items: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]tracking.Item, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, sqliteListSQL)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []tracking.Item{}
	for rows.Next() {
		var (
			r       itemRow
			checked string
		)
		if err := rows.Scan(&r.ID, &r.Position, &r.URL, &r.Title, &r.Mode, &r.DesiredValue,
			&r.DesiredPrice, &r.InitialPrice, &r.CurrentPrice, &r.LastNotifiedPrice, &checked); err != nil {
			return nil, err
		}
		if r.LastChecked, err = time.Parse(time.RFC3339Nano, checked); err != nil {
			return nil, fmt.Errorf("item %s: parse last_checked: %w", r.ID, err)
		}
		it, err := r.item()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, items []tracking.Item) (err error) {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, deleteItemsSQL); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, sqliteInsertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		r := toRow(i, it)
		if _, err = stmt.ExecContext(ctx, r.ID, r.Position, r.URL, r.Title, r.Mode, r.DesiredValue,
			r.DesiredPrice, r.InitialPrice, r.CurrentPrice, r.LastNotifiedPrice,
			r.LastChecked.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert item %s: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
