package mirror

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/resolver"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func testBucket() *registry.Bucket {
	return &registry.Bucket{
		BucketName: "b",
		Type:       registry.S3BucketConfig,
		S3:         &registry.S3Config{Endpoint: "https://example.com", Bucket: "b"},
		Replicas: []registry.ReplicaConfig{
			{Type: registry.ReplicaS3Config, Name: "r1", S3: &registry.S3Config{Endpoint: "https://replica.example.com", Bucket: "b"}},
		},
	}
}

func TestEnqueueAndNextIsFIFO(t *testing.T) {
	q := testQueue(t)
	bucket := testBucket()

	req1 := &resolver.Request{Method: "PUT", URL: &reqmeta.RequestMeta{Bucket: "b", ObjectKey: "one"}, Header: http.Header{}}
	req2 := &resolver.Request{Method: "PUT", URL: &reqmeta.RequestMeta{Bucket: "b", ObjectKey: "two"}, Header: http.Header{}}

	if err := q.Enqueue("b", resolver.OpPutObject, req1, bucket, bucket.Replicas[0]); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := q.Enqueue("b", resolver.OpPutObject, req2, bucket, bucket.Replicas[0]); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}

	first, err := q.Next("b")
	if err != nil || first == nil {
		t.Fatalf("Next: %v, %v", first, err)
	}
	if first.Request.URL.ObjectKey != "one" {
		t.Fatalf("expected FIFO order, got %q first", first.Request.URL.ObjectKey)
	}

	if err := q.Ack(first); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	second, err := q.Next("b")
	if err != nil || second == nil {
		t.Fatalf("Next after ack: %v, %v", second, err)
	}
	if second.Request.URL.ObjectKey != "two" {
		t.Fatalf("expected second task, got %q", second.Request.URL.ObjectKey)
	}
}

func TestRequeuePreservesPosition(t *testing.T) {
	q := testQueue(t)
	bucket := testBucket()
	req := &resolver.Request{Method: "PUT", URL: &reqmeta.RequestMeta{Bucket: "b", ObjectKey: "x"}, Header: http.Header{}}

	if err := q.Enqueue("b", resolver.OpPutObject, req, bucket, bucket.Replicas[0]); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, err := q.Next("b")
	if err != nil || task == nil {
		t.Fatalf("Next: %v, %v", task, err)
	}
	if err := q.Requeue(task); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	again, err := q.Next("b")
	if err != nil || again == nil {
		t.Fatalf("Next after requeue: %v, %v", again, err)
	}
	if again.ID != task.ID {
		t.Fatalf("requeue should preserve the same row, got different id")
	}
	if again.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", again.RetryCount)
	}
}

type fakeDispatcher struct {
	fail bool
	resp *resolver.Response
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, op resolver.Operation, req *resolver.Request, bucket *registry.Bucket) (*resolver.Response, error) {
	if f.fail {
		return nil, &fakePoisonErr{}
	}
	return f.resp, nil
}

type fakePoisonErr struct{}

func (e *fakePoisonErr) Error() string { return "boom" }

func TestProcessTaskDeleteObjectDispatchesToReplica(t *testing.T) {
	q := testQueue(t)
	bucket := testBucket()
	req := &resolver.Request{Method: "DELETE", URL: &reqmeta.RequestMeta{Bucket: "b", ObjectKey: "x"}, Header: http.Header{}}

	dispatched := &fakeDispatcher{resp: &resolver.Response{Status: 204}}
	w := &Worker{
		Queue:       q,
		Dispatchers: &Dispatchers{S3: dispatched, Swift: dispatched},
		Primary:     bucket,
		Log:         logrus.New(),
	}

	task := &MirrorTask{Bucket: "b", ReplicaName: "r1", Command: resolver.OpDeleteObject, Request: req, EnqueuedAt: time.Now()}
	if err := w.processTask(context.Background(), task); err != nil {
		t.Fatalf("processTask: %v", err)
	}
}
