// Package s3resolver implements the pass-through S3 backend dispatcher
// of spec §4.5: a state-free table keyed on (method, objectKey?,
// queryParams) that forwards every operation to the bucket's configured
// S3-speaking backend via internal/forwarder, applying
// internal/ratelimit pacing and internal/audit bookkeeping on success.
// It is grounded on the teacher's handleProxyRequest switch, generalized
// from a single hardcoded backend to per-bucket registry.S3Config.
package s3resolver

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/audit"
	"github.com/starburst997/herald/internal/forwarder"
	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/ratelimit"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
)

// Resolver forwards S3 operations to a bucket's S3 backend.
type Resolver struct {
	Forwarder *forwarder.Forwarder
	Limiters  *ratelimit.Limiters
	Audit     *audit.Sink
	Log       *logrus.Logger

	// Timeout bounds one Dispatch's whole outbound call, all retry
	// attempts and backoff delays included (spec §4.4).
	Timeout time.Duration
}

var _ resolver.Dispatcher = (*Resolver)(nil)

// Dispatch implements resolver.Dispatcher for S3 backends.
func (s *Resolver) Dispatch(ctx context.Context, op resolver.Operation, req *resolver.Request, bucket *registry.Bucket) (*resolver.Response, error) {
	cfg := bucket.S3
	if cfg == nil {
		return nil, herr.Wrap(herr.ErrInternalError, herr.New("InternalError", 500, "bucket has no S3 backend bound"))
	}

	if err := s.Limiters.Wait(ctx, "s3:"+cfg.Endpoint, cfg.MaxRequestsPerSecond); err != nil {
		return nil, err
	}

	originalURL, err := url.Parse(req.RawURL)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInvalidRequest, err)
	}

	maxAttempts := forwarder.MaxAttemptsFor(bucket.HasReplicas(), bucket.IsReplica)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	httpResp, err := s.Forwarder.ForwardS3(ctx, req.Method, req.URL.URLFormat, originalURL, req.URL.ObjectKey, req.Header, req.Body, cfg, maxAttempts)
	if err != nil {
		return nil, err
	}

	body, err := forwarder.DrainAndClose(httpResp)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, mapS3Status(op, httpResp.StatusCode)
	}

	s.recordAudit(op, bucket.BucketName, req.URL.ObjectKey, httpResp)

	return &resolver.Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

func (s *Resolver) recordAudit(op resolver.Operation, bucket, key string, resp *http.Response) {
	switch op {
	case resolver.OpPutObject, resolver.OpCopyObject, resolver.OpCompleteMultipartUpload:
		size := resp.ContentLength
		s.Audit.RecordPut(bucket, key, size, resp.Header.Get("Content-Type"), false)
	case resolver.OpDeleteObject:
		s.Audit.RecordDelete(bucket, key)
	}
}

// mapS3Status wraps an unexpected upstream status as a canonical herr
// so the front door renders consistent XML regardless of which backend
// produced the failure (spec §4.5 success criteria table; everything
// outside it is treated as the backend's own error passed through as
// closely as the canonical taxonomy allows).
func mapS3Status(op resolver.Operation, status int) error {
	switch status {
	case http.StatusNotFound:
		if op == resolver.OpGetObject || op == resolver.OpHeadObject {
			return herr.ErrNoSuchKey
		}
		return herr.ErrNoSuchBucket
	case http.StatusConflict:
		return herr.ErrBucketAlreadyExists
	case http.StatusForbidden:
		return herr.ErrAccessDenied
	case http.StatusRequestTimeout:
		return herr.ErrRequestTimeout
	case http.StatusMethodNotAllowed:
		return herr.ErrMethodNotAllowed
	case http.StatusNotImplemented:
		return herr.ErrNotImplemented
	default:
		return herr.ErrInternalError
	}
}
