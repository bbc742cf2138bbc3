package resolver

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/registry"
)

// Router implements spec §4.7's replica failover on top of whichever
// per-protocol Dispatcher the bucket's primary (or, for a replica
// re-entry, the replica itself) speaks: primary attempt first, then on
// failure of a non-mutating op iterate replicas in declaration order via
// their own protocol's Dispatcher, first success wins. On primary success
// for a mutating op, enqueue one MirrorTask per replica (§4.8) before
// returning.
type Router struct {
	S3    Dispatcher
	Swift Dispatcher
	Queue MirrorEnqueuer
	Log   *logrus.Logger
}

func (r *Router) dispatcherFor(b *registry.Bucket) Dispatcher {
	switch b.Type {
	case registry.S3BucketConfig:
		return r.S3
	case registry.SwiftBucketConfig:
		return r.Swift
	default:
		return nil
	}
}

// Route dispatches req against bucket's primary, failing over to
// replicas (read-preferring: mutations are never retried inline against
// a replica, only via the mirror queue) and enqueuing mirror tasks on
// primary mutating success.
func (r *Router) Route(ctx context.Context, op Operation, req *Request, bucket *registry.Bucket) (*Response, error) {
	primary := r.dispatcherFor(bucket)
	resp, err := primary.Dispatch(ctx, op, req, bucket)
	if err == nil {
		if IsMutating(op) && !bucket.IsReplica {
			r.enqueueMirrors(op, req, bucket)
		}
		return resp, nil
	}

	if bucket.IsReplica || !bucket.HasReplicas() || IsMutating(op) {
		return nil, err
	}

	var lastErr = err
	for _, rc := range bucket.Replicas {
		replicaBucket := registry.ReplicaAsBucket(bucket.BucketName, rc)
		d := r.dispatcherFor(replicaBucket)
		if d == nil {
			continue
		}
		resp, rerr := d.Dispatch(ctx, op, req, replicaBucket)
		if rerr == nil {
			return resp, nil
		}
		lastErr = rerr
	}
	return nil, lastErr
}

func (r *Router) enqueueMirrors(op Operation, req *Request, primary *registry.Bucket) {
	for _, rc := range primary.Replicas {
		if err := r.Queue.Enqueue(primary.BucketName, op, req, primary, rc); err != nil {
			r.Log.WithError(err).WithFields(logrus.Fields{
				"bucket":  primary.BucketName,
				"replica": rc.Name,
				"op":      string(op),
			}).Warn("resolver: failed to enqueue mirror task")
		}
	}
}
