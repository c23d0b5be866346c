package renderqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS queue_messages (
    job_id TEXT PRIMARY KEY,
    priority INTEGER NOT NULL DEFAULT 0,
    enqueued_at INTEGER NOT NULL,
    visible_at INTEGER NOT NULL,
    lease_token TEXT,
    lease_owner TEXT,
    lease_expires_at INTEGER,
    deliveries INTEGER NOT NULL DEFAULT 0,
    dead INTEGER NOT NULL DEFAULT 0,
    dead_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(dead, visible_at, priority);
`

// SQLite is a Broker backed by a table in its own database file. Times are
// stored as Unix milliseconds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the queue database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, queueErr("open", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, queueErr("open", fmt.Errorf("apply pragma %q: %w", pragma, err))
		}
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, queueErr("open", fmt.Errorf("create schema: %w", err))
	}
	return &SQLite{db: db}, nil
}

func (q *SQLite) Enqueue(ctx context.Context, msg Message) error {
	now := time.Now()
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = now
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO queue_messages (job_id, priority, enqueued_at, visible_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             priority = excluded.priority,
             enqueued_at = excluded.enqueued_at,
             visible_at = excluded.visible_at,
             lease_token = NULL, lease_owner = NULL, lease_expires_at = NULL,
             dead = 0, dead_reason = NULL
         WHERE queue_messages.dead = 1`,
		msg.JobID, msg.Priority, msg.EnqueuedAt.UnixMilli(), now.UnixMilli(),
	)
	return queueErr("enqueue", err)
}

func (q *SQLite) Lease(ctx context.Context, consumer string, leaseFor time.Duration) (*Lease, error) {
	now := time.Now()
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, queueErr("lease", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		lease      Lease
		enqueuedAt int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT job_id, priority, enqueued_at, deliveries FROM queue_messages
         WHERE dead = 0 AND visible_at <= ?
           AND (lease_token IS NULL OR lease_expires_at <= ?)
         ORDER BY priority DESC, enqueued_at, job_id
         LIMIT 1`,
		now.UnixMilli(), now.UnixMilli(),
	).Scan(&lease.JobID, &lease.Priority, &enqueuedAt, &lease.Deliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queueErr("lease", err)
	}

	lease.Token = newToken()
	lease.Consumer = consumer
	lease.ExpiresAt = now.Add(leaseFor)
	lease.EnqueuedAt = time.UnixMilli(enqueuedAt)
	lease.Deliveries++
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_messages SET lease_token = ?, lease_owner = ?, lease_expires_at = ?, deliveries = ?
         WHERE job_id = ?`,
		lease.Token, consumer, lease.ExpiresAt.UnixMilli(), lease.Deliveries, lease.JobID,
	); err != nil {
		return nil, queueErr("lease", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, queueErr("lease", err)
	}
	return &lease, nil
}

// withLease runs query with the lease's job id and token appended to args and
// maps "no row" to ErrLeaseLost.
func (q *SQLite) withLease(ctx context.Context, op string, lease *Lease, query string, args ...any) error {
	if lease == nil {
		return ErrLeaseLost
	}
	args = append(args, lease.JobID, lease.Token)
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return queueErr(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return queueErr(op, err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *SQLite) Extend(ctx context.Context, lease *Lease, leaseFor time.Duration) error {
	expires := time.Now().Add(leaseFor)
	if err := q.withLease(ctx, "extend", lease,
		`UPDATE queue_messages SET lease_expires_at = ? WHERE job_id = ? AND lease_token = ? AND dead = 0`,
		expires.UnixMilli(),
	); err != nil {
		return err
	}
	lease.ExpiresAt = expires
	return nil
}

func (q *SQLite) Ack(ctx context.Context, lease *Lease) error {
	return q.withLease(ctx, "ack", lease,
		`DELETE FROM queue_messages WHERE job_id = ? AND lease_token = ?`)
}

func (q *SQLite) Nack(ctx context.Context, lease *Lease, delay time.Duration) error {
	return q.withLease(ctx, "nack", lease,
		`UPDATE queue_messages SET lease_token = NULL, lease_owner = NULL, lease_expires_at = NULL, visible_at = ?
         WHERE job_id = ? AND lease_token = ?`,
		time.Now().Add(delay).UnixMilli(),
	)
}

func (q *SQLite) DeadLetter(ctx context.Context, lease *Lease, reason string) error {
	return q.withLease(ctx, "dead-letter", lease,
		`UPDATE queue_messages SET dead = 1, dead_reason = ?, lease_token = NULL, lease_owner = NULL, lease_expires_at = NULL
         WHERE job_id = ? AND lease_token = ?`,
		reason,
	)
}

func (q *SQLite) Has(ctx context.Context, jobID string) (bool, error) {
	var count int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_messages WHERE job_id = ? AND dead = 0`, jobID,
	).Scan(&count); err != nil {
		return false, queueErr("has", err)
	}
	return count > 0, nil
}

func (q *SQLite) Stats(ctx context.Context) (Stats, error) {
	now := time.Now().UnixMilli()
	stats := Stats{Backend: "sqlite"}
	err := q.db.QueryRowContext(ctx,
		`SELECT
            COALESCE(SUM(CASE WHEN dead = 0 AND visible_at <= ? AND (lease_token IS NULL OR lease_expires_at <= ?) THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN dead = 0 AND visible_at > ? AND lease_token IS NULL THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN dead = 0 AND lease_token IS NOT NULL AND lease_expires_at > ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN dead = 1 THEN 1 ELSE 0 END), 0)
         FROM queue_messages`,
		now, now, now, now,
	).Scan(&stats.Ready, &stats.Delayed, &stats.Leased, &stats.DeadLetters)
	if err != nil {
		return Stats{}, queueErr("stats", err)
	}
	return stats, nil
}

func (q *SQLite) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}
