// Package audit is an optional observability sink recording object
// lifecycle events into Postgres, one table per bucket — a direct
// generalization of the teacher's getOrCreateBucketDB/sanitizeDBName/
// handlePutRequest/handleDeleteRequest table-per-bucket pattern
// (SPEC_FULL.md §4.12). It is independent of the at-least-once mirror
// queue (internal/mirror): a write failure here is logged and dropped,
// never surfaced to the client.
package audit

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Sink writes per-bucket audit rows. A nil *Sink (returned by Open for
// an empty dsn) makes every method a no-op, matching the teacher's
// DISABLE_DATABASE switch.
type Sink struct {
	db  *sql.DB
	log *logrus.Logger

	tablesMu sync.Mutex
	tables   map[string]bool
}

// Open connects to dsn and returns a Sink. Pass "" to get a disabled
// sink (AUDIT_DATABASE_URL unset / DISABLE_AUDIT_DB=true).
func Open(dsn string, log *logrus.Logger) (*Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return &Sink{db: db, log: log, tables: make(map[string]bool)}, nil
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func tableName(bucket string) string {
	return "bucket_" + nonAlnum.ReplaceAllString(bucket, "_")
}

func (s *Sink) ensureTable(bucket string) error {
	if s == nil {
		return nil
	}

	s.tablesMu.Lock()
	defer s.tablesMu.Unlock()
	table := tableName(bucket)
	if s.tables[table] {
		return nil
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			path TEXT UNIQUE NOT NULL,
			size BIGINT NOT NULL,
			content_type TEXT NOT NULL,
			is_backed_up BOOLEAN DEFAULT FALSE,
			last_modified TIMESTAMP NOT NULL,
			deleted BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`, table))
	if err != nil {
		return fmt.Errorf("audit: create table %s: %w", table, err)
	}
	s.tables[table] = true
	return nil
}

// RecordPut upserts a row for a successful PutObject/CopyObject/
// CompleteMultipartUpload.
func (s *Sink) RecordPut(bucket, key string, size int64, contentType string, backedUp bool) {
	if s == nil {
		return
	}
	if err := s.ensureTable(bucket); err != nil {
		s.log.WithError(err).Warn("audit: failed to prepare table")
		return
	}

	table := tableName(bucket)
	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO %s (path, size, content_type, is_backed_up, last_modified, deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (path) DO UPDATE SET
			size = $2, content_type = $3, is_backed_up = $4, last_modified = $5, deleted = FALSE
	`, table), key, size, contentType, backedUp, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("audit: failed to record put")
	}
}

// RecordDelete marks a row deleted for a successful DeleteObject.
func (s *Sink) RecordDelete(bucket, key string) {
	if s == nil {
		return
	}
	if err := s.ensureTable(bucket); err != nil {
		s.log.WithError(err).Warn("audit: failed to prepare table")
		return
	}

	table := tableName(bucket)
	_, err := s.db.Exec(fmt.Sprintf(`
		UPDATE %s SET deleted = TRUE, last_modified = $1 WHERE path = $2
	`, table), time.Now().UTC(), key)
	if err != nil {
		s.log.WithError(err).Warn("audit: failed to record delete")
	}
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
