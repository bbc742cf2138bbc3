package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/metrics"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/resolver"
	"github.com/starburst997/herald/internal/sentryreport"
	"github.com/starburst997/herald/internal/sigv4"
)

// handleS3 is the single entry point for every S3/Swift-surface request:
// parse, authenticate, classify, dispatch, render. Grounded on the
// teacher's handleProxyRequest, generalized from a single hardcoded
// upstream to bucket-by-bucket SigV4 verification and op classification.
func (s *Server) handleS3(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := newRequestID()
	hostID := requestID

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	meta, err := reqmeta.ExtractRequestInfo(r)
	if err != nil {
		herr.WriteXML(w, err, requestID, hostID)
		return
	}

	if meta.Bucket == "" {
		s.handleListBuckets(w, r, requestID, hostID)
		return
	}

	bucket, ok := s.Registry.Lookup(meta.Bucket)
	if !ok {
		herr.WriteXML(w, herr.ErrNoSuchBucket, requestID, hostID)
		return
	}

	creds := sigv4.Credentials{
		AccessKeyID:     bucket.ClientCredentials.AccessKeyID,
		SecretAccessKey: bucket.ClientCredentials.SecretAccessKey,
	}
	if err := sigv4.VerifyV4Signature(r, creds, s.Registry.TrustProxy(), s.Registry); err != nil {
		s.Log.WithError(err).WithField("bucket", meta.Bucket).Warn("httpserver: signature verification failed")
		herr.WriteXML(w, herr.ErrAccessDenied, requestID, hostID)
		return
	}

	op := resolver.Classify(meta)
	if op == resolver.OpPutObject && resolver.IsCopyObject(r) {
		op = resolver.OpCopyObject
	}

	req, err := resolver.CaptureRequest(r, meta)
	if err != nil {
		herr.WriteXML(w, herr.Wrap(herr.ErrInternalError, err), requestID, hostID)
		return
	}

	resp, err := s.Router.Route(r.Context(), op, req, bucket)
	if err != nil {
		status := http.StatusInternalServerError
		if herr.As5xx(err) {
			s.Log.WithError(err).WithField("bucket", meta.Bucket).WithField("op", op).Error("httpserver: dispatch failed")
			sentryreport.Report(err, map[string]any{"bucket": meta.Bucket, "op": string(op), "request_id": requestID})
		}
		var he *herr.Error
		if errors.As(err, &he) {
			status = he.Status
		}
		observeRequestDuration(op, bucket, start, status)
		herr.WriteXML(w, err, requestID, hostID)
		return
	}

	observeRequestDuration(op, bucket, start, resp.Status)
	writeResponse(w, resp, requestID)
}

func observeRequestDuration(op resolver.Operation, bucket *registry.Bucket, start time.Time, status int) {
	protocol := "s3"
	if bucket.Type == registry.SwiftBucketConfig {
		protocol = "swift"
	}
	metrics.RequestDuration.WithLabelValues(string(op), protocol, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// handleListBuckets answers a bucket-less GET directly from the static
// boot-time registry (spec §4.5 — no backend ever enumerates Herald's
// full bucket set).
func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request, requestID, hostID string) {
	if r.Method != http.MethodGet {
		herr.WriteXML(w, herr.ErrMethodNotAllowed, requestID, hostID)
		return
	}

	body := listAllMyBucketsResultXML(s.Registry.All())
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeResponse(w http.ResponseWriter, resp *resolver.Response, requestID string) {
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	h.Set("x-amz-request-id", requestID)
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.hasSwiftBackends && !s.keystoneHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("keystone: no token acquired since boot\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
