package mirror

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/metrics"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
	"github.com/starburst997/herald/internal/sentryreport"
)

const (
	pollInterval  = 500 * time.Millisecond
	backoffBase   = 1 * time.Second
	backoffCap    = 30 * time.Second
)

// Dispatchers bundles the two protocol-specific resolvers a worker may
// need to address, keyed by protocol (a primary and its replicas can
// speak either).
type Dispatchers struct {
	S3    resolver.Dispatcher
	Swift resolver.Dispatcher
}

func (d *Dispatchers) forBucket(b *registry.Bucket) resolver.Dispatcher {
	if b.Type == registry.S3BucketConfig {
		return d.S3
	}
	return d.Swift
}

// Worker drains one primary bucket's mirror FIFO.
type Worker struct {
	Queue       *Queue
	Dispatchers *Dispatchers
	Primary     *registry.Bucket
	Log         *logrus.Logger
}

// StartWorkers spawns one Worker goroutine per registry bucket that has
// replicas (spec §4.8 "workers spawned at boot, one consumer per primary
// bucket"), returning immediately; each worker stops when ctx is
// cancelled.
func StartWorkers(ctx context.Context, reg *registry.Registry, queue *Queue, dispatchers *Dispatchers, log *logrus.Logger) {
	for _, bucket := range reg.All() {
		if !bucket.HasReplicas() {
			continue
		}
		w := &Worker{Queue: queue, Dispatchers: dispatchers, Primary: bucket, Log: log}
		go w.run(ctx)
	}
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			task, err := w.Queue.Next(w.Primary.BucketName)
			if err != nil {
				w.Log.WithError(err).WithField("bucket", w.Primary.BucketName).Error("mirror: failed to read next task")
				sentryreport.Report(err, map[string]any{"bucket": w.Primary.BucketName})
				break
			}
			if task == nil {
				break
			}

			if err := w.processTask(ctx, task); err != nil {
				w.handleFailure(task, err)
				break // re-poll at the next tick rather than busy-loop on a stuck head-of-line task
			}

			if err := w.Queue.Ack(task); err != nil {
				w.Log.WithError(err).Error("mirror: failed to ack completed task")
			}
			metrics.MirrorTasksTotal.WithLabelValues(task.Bucket, task.ReplicaName, "success").Inc()

			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (w *Worker) handleFailure(task *MirrorTask, err error) {
	if isPoison(err) {
		w.Log.WithError(err).WithFields(logrus.Fields{"bucket": task.Bucket, "replica": task.ReplicaName}).Warn("mirror: poisoning task")
		if ackErr := w.Queue.Ack(task); ackErr != nil {
			w.Log.WithError(ackErr).Error("mirror: failed to ack poisoned task")
		}
		metrics.MirrorTasksTotal.WithLabelValues(task.Bucket, task.ReplicaName, "poisoned").Inc()
		return
	}

	if task.RetryCount >= maxRetries {
		w.Log.WithFields(logrus.Fields{"bucket": task.Bucket, "replica": task.ReplicaName, "retries": task.RetryCount}).
			Error("mirror: task exceeded max retries, poisoning")
		if ackErr := w.Queue.Ack(task); ackErr != nil {
			w.Log.WithError(ackErr).Error("mirror: failed to ack exhausted task")
		}
		metrics.MirrorTasksTotal.WithLabelValues(task.Bucket, task.ReplicaName, "poisoned").Inc()
		return
	}

	if rqErr := w.Queue.Requeue(task); rqErr != nil {
		w.Log.WithError(rqErr).Error("mirror: failed to requeue task")
	}
	metrics.MirrorTasksTotal.WithLabelValues(task.Bucket, task.ReplicaName, "requeued").Inc()
	time.Sleep(backoffDelay(task.RetryCount))
}

// isPoison reports whether err is a 4xx-shaped canonical error, which
// per spec §4.8 is logged and dropped rather than retried.
func isPoison(err error) bool {
	var he *herr.Error
	if errors.As(err, &he) {
		return he.Status >= 400 && he.Status < 500
	}
	return false
}

func backoffDelay(retryCount int) time.Duration {
	d := backoffBase * time.Duration(1<<uint(retryCount))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

// processTask implements the per-command worker contract of spec §4.8.
func (w *Worker) processTask(ctx context.Context, task *MirrorTask) error {
	rc, ok := findReplica(w.Primary, task.ReplicaName)
	if !ok {
		return herr.New("InternalError", 500, "replica "+task.ReplicaName+" no longer configured")
	}
	replicaBucket := registry.ReplicaAsBucket(w.Primary.BucketName, rc)
	replicaDispatch := w.Dispatchers.forBucket(replicaBucket)

	switch task.Command {
	case resolver.OpPutObject, resolver.OpCompleteMultipartUpload:
		return w.replicateObjectBody(ctx, task, replicaBucket, replicaDispatch)
	case resolver.OpDeleteObject, resolver.OpCopyObject, resolver.OpCreateBucket, resolver.OpDeleteBucket, resolver.OpDeleteObjects:
		_, err := replicaDispatch.Dispatch(ctx, task.Command, task.Request, replicaBucket)
		return err
	default:
		return herr.New("InternalError", 500, "mirror: unsupported task command "+string(task.Command))
	}
}

// replicateObjectBody implements the GET-from-primary/PUT-to-replica
// flow shared by putObject and completeMultipartUpload (spec §4.8: "the
// SLO is visible as a single object once assembly completes").
func (w *Worker) replicateObjectBody(ctx context.Context, task *MirrorTask, replicaBucket *registry.Bucket, replicaDispatch resolver.Dispatcher) error {
	primaryDispatch := w.Dispatchers.forBucket(w.Primary)

	getReq := &resolver.Request{
		Method: "GET",
		URL:    task.Request.URL,
		RawURL: task.Request.RawURL,
		Header: make(map[string][]string),
	}
	getResp, err := primaryDispatch.Dispatch(ctx, resolver.OpGetObject, getReq, w.Primary)
	if err != nil {
		return err
	}

	putHeader := make(map[string][]string)
	for _, h := range []string{"Content-Type", "Content-Length", "Accept-Ranges"} {
		if v := getResp.Header.Get(h); v != "" {
			putHeader[h] = []string{v}
		}
	}

	putReq := &resolver.Request{
		Method: "PUT",
		URL:    task.Request.URL,
		RawURL: task.Request.RawURL,
		Header: putHeader,
		Body:   getResp.Body,
	}
	_, err = replicaDispatch.Dispatch(ctx, resolver.OpPutObject, putReq, replicaBucket)
	return err
}

func findReplica(bucket *registry.Bucket, name string) (registry.ReplicaConfig, bool) {
	for _, rc := range bucket.Replicas {
		if rc.Name == name {
			return rc, true
		}
	}
	return registry.ReplicaConfig{}, false
}
