// Package eventstore is the sole writer of durable session history (§4.1).
// It keeps the append-only event log, the linearized parent chain,
// denormalized session counters, and a full-text index, all behind one
// modernc.org/sqlite-backed Store.
package eventstore

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/xonecas/tronrun/internal/runtimeerr"
)

const (
	busyMaxRetries    = 10
	busyBackoffStepMs = 50
	busyMaxBackoff    = time.Second
)

// Store is the event store. One Store per process; Open runs migrations.
type Store struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open creates or opens the event store database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, "open event store")
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, fmt.Sprintf("pragma %q", pragma))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, runtimeerr.Wrap(runtimeerr.KindStorage, err, "create schema")
	}

	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sessionLock returns the process-wide mutex serializing appends to
// sessionID, creating one on first use (§4.1 "Concurrency model").
func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// withBusyRetry runs fn, retrying on SQLITE_BUSY with a linear backoff
// capped at busyMaxBackoff.
func withBusyRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyMaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) || attempt == busyMaxRetries {
			return err
		}
		backoff := time.Duration((attempt+1)*busyBackoffStepMs) * time.Millisecond
		if backoff > busyMaxBackoff {
			backoff = busyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// rollback rolls tx back, logging (never swallowing silently) on failure.
func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Warn().Err(err).Msg("eventstore: rollback failed")
	}
}
