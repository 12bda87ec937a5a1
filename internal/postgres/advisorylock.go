package postgres

import "context"

// LockKey is a single, process-wide enumeration of Postgres advisory lock
// keys. Grounded on original_source's
// crates/distributed-lock/src/locks/postgres_lock.rs LockKey enum — kept as
// one place to avoid two callers colliding on the same integer by accident.
type LockKey int64

const (
	LockKeyAdvanceSubscriptions LockKey = 1000
	LockKeyFinalizeInvoices     LockKey = 1001
	LockKeyRetryPayments        LockKey = 1002
	LockKeyCleanupCheckouts     LockKey = 1003
	LockKeyRefreshFX            LockKey = 1004
	LockKeyDispatchOutbox       LockKey = 2000
)

// QueueLockKey derives a stable advisory-lock key from a PGMQ queue name.
// Nothing in this module calls it: the dispatcher takes the single
// LockKeyDispatchOutbox lock for every queue.
func QueueLockKey(queue string) LockKey {
	var h int64 = 5000
	for _, c := range queue {
		h = h*131 + int64(c)
	}
	if h < 0 {
		h = -h
	}
	return LockKey(5000 + h%100000)
}

// WithAdvisoryLock runs fn only while holding a session-level Postgres
// advisory lock for key, on a single dedicated connection (advisory locks
// are connection-scoped: acquiring on one pooled connection and releasing
// on another would silently no-op). Returns (false, nil) without running fn
// if another session already holds the lock — the caller's cue to skip this
// tick rather than block. If the process crashes mid-hold, Postgres frees
// the lock when the connection closes, giving the scheduler's "single-firing
// cron" property (spec §5) without any heartbeat/lease bookkeeping.
func (db *DB) WithAdvisoryLock(ctx context.Context, key LockKey, fn func(ctx context.Context) error) (ran bool, err error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock($1)", int64(key)).Scan(&acquired); err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", int64(key))
	}()

	return true, fn(ctx)
}
