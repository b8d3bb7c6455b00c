package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pricewatch/internal/tracking"
)

const (
	createItemsTableSQL = `CREATE TABLE IF NOT EXISTS tracked_items (
        id                  TEXT PRIMARY KEY,
        position            INTEGER NOT NULL,
        url                 TEXT NOT NULL,
        title               TEXT NOT NULL DEFAULT '',
        tracking_type       TEXT NOT NULL,
        desired_value       NUMERIC NOT NULL,
        desired_price       NUMERIC NOT NULL,
        initial_price       NUMERIC NOT NULL,
        current_price       NUMERIC NOT NULL,
        last_notified_price NUMERIC,
        last_checked        TIMESTAMPTZ NOT NULL
    );`

	listItemsSQL = `SELECT
        id,
        position,
        url,
        title,
        tracking_type,
        desired_value::text,
        desired_price::text,
        initial_price::text,
        current_price::text,
        last_notified_price::text,
        last_checked
    FROM tracked_items
    ORDER BY position;`

	deleteItemsSQL = `DELETE FROM tracked_items;`

	insertItemSQL = `INSERT INTO tracked_items (
        id,
        position,
        url,
        title,
        tracking_type,
        desired_value,
        desired_price,
        initial_price,
        current_price,
        last_notified_price,
        last_checked
    ) VALUES (
        $1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore keeps one row per item. Save replaces every row in one
// transaction so readers never see a half-written collection.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a store.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger.With().Str("component", "store_postgres").Logger()}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the items table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createItemsTableSQL); err != nil {
		return fmt.Errorf("create tracked_items: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]tracking.Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []tracking.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Save replaces every row inside one transaction, keeping slice order in position.
func (s *PostgresStore) Save(ctx context.Context, items []tracking.Item) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteItemsSQL); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range items {
			r := toRow(i, it)
			var lastNotified any
			if r.LastNotifiedPrice.Valid {
				lastNotified = r.LastNotifiedPrice.String
			}
			batch.Queue(insertItemSQL,
				r.ID,
				r.Position,
				r.URL,
				r.Title,
				r.Mode,
				r.DesiredValue,
				r.DesiredPrice,
				r.InitialPrice,
				r.CurrentPrice,
				lastNotified,
				r.LastChecked,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		return nil
	})
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

func scanItem(rows pgx.Rows) (tracking.Item, error) {
	var r itemRow
	if err := rows.Scan(
		&r.ID,
		&r.Position,
		&r.URL,
		&r.Title,
		&r.Mode,
		&r.DesiredValue,
		&r.DesiredPrice,
		&r.InitialPrice,
		&r.CurrentPrice,
		&r.LastNotifiedPrice,
		&r.LastChecked,
	); err != nil {
		return tracking.Item{}, err
	}
	return r.item()
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
