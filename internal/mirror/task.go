// Package mirror implements Herald's at-least-once mirror task queue
// (spec §4.8): a durable, per-primary-bucket FIFO of MirrorTasks,
// persisted to SQLite via modernc.org/sqlite (pure Go, no cgo — chosen
// over the teacher's lib/pq since the queue is local durable state, not
// the shared audit ledger internal/audit already covers with Postgres).
// One worker goroutine per primary bucket with replicas drains its FIFO,
// GET-from-primary/PUT-to-replica for object writes, re-signed re-dispatch
// for delete/copy/bucket operations.
package mirror

import (
	"encoding/json"
	"time"

	"github.com/starburst997/herald/internal/resolver"
)

// MirrorTask is one durable unit of replication work (spec §3
// MirrorTask, §4.8 enqueue contract).
type MirrorTask struct {
	ID          int64
	Bucket      string
	ReplicaName string
	Nonce       string
	Command     resolver.Operation
	Request     *resolver.Request
	RetryCount  int
	EnqueuedAt  time.Time
}

// encodeRequest serializes resolver.Request as JSON, the on-disk shape of
// the task's payload column, matching spec §4.8's "originalRequest
// (bytes)" field.
func encodeRequest(req *resolver.Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (*resolver.Request, error) {
	var req resolver.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

const (
	// maxRetries bounds the transient-failure requeue count before a
	// task is poisoned (spec §4.8 "up to a cap with exponential backoff").
	maxRetries = 8
)
