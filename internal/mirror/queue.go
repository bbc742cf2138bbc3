package mirror

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/starburst997/herald/internal/metrics"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
)

// Queue is the durable per-bucket FIFO backing store. A single SQLite
// database holds every bucket's tasks, partitioned by the bucket column
// — simpler to operate than one file per bucket while preserving FIFO
// order per (bucket, replica_name) via the autoincrement id.
type Queue struct {
	db *sql.DB
}

// Open creates (or reopens) the SQLite-backed queue at path. path=":memory:"
// is valid for tests.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mirror: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mirror_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bucket TEXT NOT NULL,
			replica_name TEXT NOT NULL,
			nonce TEXT NOT NULL,
			command TEXT NOT NULL,
			payload BLOB NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			enqueued_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("mirror: create table: %w", err)
	}

	return &Queue{db: db}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

var _ resolver.MirrorEnqueuer = (*Queue)(nil)

// Enqueue implements spec §4.8's enqueue contract: one row per replica,
// appended atomically, with the "locked-storages" depth gauge
// incremented for observability.
func (q *Queue) Enqueue(bucketName string, op resolver.Operation, req *resolver.Request, primary *registry.Bucket, replica registry.ReplicaConfig) error {
	payload, err := encodeRequest(req)
	if err != nil {
		return fmt.Errorf("mirror: encode request: %w", err)
	}

	_, err = q.db.Exec(
		`INSERT INTO mirror_tasks (bucket, replica_name, nonce, command, payload, retry_count, enqueued_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		bucketName, replica.Name, uuid.NewString(), string(op), payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mirror: insert task: %w", err)
	}

	metrics.MirrorQueueDepth.WithLabelValues(bucketName, replica.Name).Inc()
	return nil
}

// Next returns the oldest pending task for bucketName, or nil if the
// queue is empty.
func (q *Queue) Next(bucketName string) (*MirrorTask, error) {
	row := q.db.QueryRow(
		`SELECT id, bucket, replica_name, nonce, command, payload, retry_count, enqueued_at FROM mirror_tasks WHERE bucket = ? ORDER BY id ASC LIMIT 1`,
		bucketName,
	)

	var (
		id, retryCount     int64
		bucket, replica    string
		nonce, command     string
		payload            []byte
		enqueuedAtRaw      string
	)
	if err := row.Scan(&id, &bucket, &replica, &nonce, &command, &payload, &retryCount, &enqueuedAtRaw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: scan task: %w", err)
	}

	req, err := decodeRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("mirror: decode task payload: %w", err)
	}
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, enqueuedAtRaw)

	return &MirrorTask{
		ID:          id,
		Bucket:      bucket,
		ReplicaName: replica,
		Nonce:       nonce,
		Command:     resolver.Operation(command),
		Request:     req,
		RetryCount:  int(retryCount),
		EnqueuedAt:  enqueuedAt,
	}, nil
}

// Ack removes a successfully (or poison-) completed task and decrements
// the queue-depth gauge.
func (q *Queue) Ack(task *MirrorTask) error {
	_, err := q.db.Exec(`DELETE FROM mirror_tasks WHERE id = ?`, task.ID)
	if err != nil {
		return fmt.Errorf("mirror: delete task: %w", err)
	}
	metrics.MirrorQueueDepth.WithLabelValues(task.Bucket, task.ReplicaName).Dec()
	return nil
}

// Requeue bumps retry_count in place, preserving the task's FIFO
// position (spec §4.8 "requeue with retryCount++").
func (q *Queue) Requeue(task *MirrorTask) error {
	_, err := q.db.Exec(`UPDATE mirror_tasks SET retry_count = retry_count + 1 WHERE id = ?`, task.ID)
	if err != nil {
		return fmt.Errorf("mirror: requeue task: %w", err)
	}
	return nil
}

// Depth reports the current backlog for a (bucket, replica) pair.
func (q *Queue) Depth(bucketName, replicaName string) (int, error) {
	row := q.db.QueryRow(`SELECT COUNT(*) FROM mirror_tasks WHERE bucket = ? AND replica_name = ?`, bucketName, replicaName)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
