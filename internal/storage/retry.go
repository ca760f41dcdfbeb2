package storage

import (
	"math/rand"
	"strings"
	"time"
)

// Transient SQLite errors under WAL concurrency. busy_timeout covers most
// SQLITE_BUSY cases at the connection level; the rest get application-level
// retries with backoff.
const (
	sqliteMaxRetries = 3
	sqliteBaseDelay  = 50 * time.Millisecond
	sqliteMaxDelay   = 500 * time.Millisecond
)

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retrySQLite executes fn, retrying transient contention errors with
// exponential backoff and jitter. Non-transient errors return immediately.
func retrySQLite(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= sqliteMaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < sqliteMaxRetries {
			delay := sqliteBaseDelay << uint(attempt)
			if delay > sqliteMaxDelay {
				delay = sqliteMaxDelay
			}
			time.Sleep(delay + time.Duration(rand.Int63n(int64(sqliteBaseDelay))))
		}
	}
	return lastErr
}
