package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-org/casework-system/internal/metrics"
)

// PostgresStore is a PostgreSQL implementation of Store.
//
// Expected table:
//
//	CREATE TABLE resource_locks (
//	    resource_type TEXT        NOT NULL,
//	    resource_id   TEXT        NOT NULL,
//	    holder_id     TEXT        NOT NULL,
//	    acquired_at   TIMESTAMPTZ NOT NULL,
//	    expires_at    TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (resource_type, resource_id)
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed lock store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Acquire implements Store.Acquire. It uses a single
// INSERT ... ON CONFLICT DO UPDATE guarded by a WHERE clause so the
// grant-or-renew decision is one atomic statement: the update applies
// only when the stored row has expired or already belongs to the
// caller, and a renewal keeps the original acquired_at.
func (s *PostgresStore) Acquire(ctx context.Context, key ResourceKey, holderID string, ttl time.Duration) (*Record, bool, error) {
	query := `
		INSERT INTO resource_locks (resource_type, resource_id, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, NOW(), NOW() + $4 * INTERVAL '1 millisecond')
		ON CONFLICT (resource_type, resource_id) DO UPDATE
		SET holder_id  = EXCLUDED.holder_id,
		    expires_at = EXCLUDED.expires_at,
		    acquired_at = CASE
		        WHEN resource_locks.holder_id = EXCLUDED.holder_id
		             AND resource_locks.expires_at > NOW()
		        THEN resource_locks.acquired_at
		        ELSE EXCLUDED.acquired_at
		    END
		WHERE resource_locks.expires_at <= NOW()
		   OR resource_locks.holder_id = EXCLUDED.holder_id
		RETURNING holder_id, acquired_at, expires_at
	`

	start := time.Now()
	rec := &Record{Key: key}
	err := s.db.QueryRow(ctx, query, string(key.Type), key.ID, holderID, ttl.Milliseconds()).
		Scan(&rec.HolderID, &rec.AcquiredAt, &rec.ExpiresAt)
	metrics.RecordStoreQuery("acquire", time.Since(start).Seconds())
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// No row returned: another holder's unexpired record blocked the
	// write. Read it back so the caller can report who holds the lock.
	// The read is advisory only; the atomic decision already happened.
	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The blocking record was released between the two statements.
		// Safe to treat as denied; the caller's next attempt will win.
		return nil, false, nil
	}
	return existing, false, nil
}

// Release implements Store.Release.
func (s *PostgresStore) Release(ctx context.Context, key ResourceKey, holderID string) error {
	query := `
		DELETE FROM resource_locks
		WHERE resource_type = $1 AND resource_id = $2
		  AND holder_id = $3 AND expires_at > NOW()
	`

	start := time.Now()
	result, err := s.db.Exec(ctx, query, string(key.Type), key.ID, holderID)
	metrics.RecordStoreQuery("release", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotHeld
	}
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, key ResourceKey) (*Record, error) {
	query := `
		SELECT holder_id, acquired_at, expires_at
		FROM resource_locks
		WHERE resource_type = $1 AND resource_id = $2
	`

	start := time.Now()
	rec := &Record{Key: key}
	err := s.db.QueryRow(ctx, query, string(key.Type), key.ID).
		Scan(&rec.HolderID, &rec.AcquiredAt, &rec.ExpiresAt)
	metrics.RecordStoreQuery("get", time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return rec, nil
}

// Purge implements Store.Purge.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	start := time.Now()
	result, err := s.db.Exec(ctx, "DELETE FROM resource_locks WHERE expires_at <= NOW()")
	metrics.RecordStoreQuery("purge", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	return result.RowsAffected(), nil
}
