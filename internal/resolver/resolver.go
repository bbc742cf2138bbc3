// Package resolver defines the shared request/response shape and
// operation classification used by both internal/s3resolver and
// internal/swiftresolver (spec §4.5, §4.6), plus the top-level dispatch
// that ties replica failover (§4.7) and mirror enqueue (§4.8) together
// across both backend protocols — failover must be able to re-enter
// either resolver depending on a replica's own protocol, so this glue
// cannot live inside either resolver package without an import cycle.
package resolver

import (
	"context"
	"io"
	"net/http"

	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/registry"
)

// Operation is one of the dispatch targets spec §4.5's table names.
type Operation string

const (
	OpListBuckets             Operation = "listBuckets"
	OpCreateBucket            Operation = "createBucket"
	OpDeleteBucket            Operation = "deleteBucket"
	OpHeadBucket              Operation = "headBucket"
	OpRouteQueryParamedRequest Operation = "routeQueryParamedRequest"
	OpListObjects             Operation = "listObjects"
	OpGetObject               Operation = "getObject"
	OpPutObject               Operation = "putObject"
	OpDeleteObject            Operation = "deleteObject"
	OpHeadObject              Operation = "headObject"
	OpCopyObject              Operation = "copyObject"
	OpCreateMultipartUpload   Operation = "createMultipartUpload"
	OpCompleteMultipartUpload Operation = "completeMultipartUpload"
	OpAbortMultipartUpload    Operation = "abortMultipartUpload"
	OpListMultipartUploads    Operation = "listMultipartUploads"
	OpListParts               Operation = "listParts"
	OpUploadPart              Operation = "uploadPart"
	OpDeleteObjects           Operation = "deleteObjects"
)

// mutating lists the operations that, on success, must enqueue a mirror
// task per replica (spec §4.5, §4.8).
var mutating = map[Operation]bool{
	OpPutObject:               true,
	OpDeleteObject:            true,
	OpCopyObject:              true,
	OpCreateBucket:            true,
	OpDeleteBucket:            true,
	OpCompleteMultipartUpload: true,
	OpDeleteObjects:           true,
}

// IsMutating reports whether op's success should enqueue mirror tasks.
func IsMutating(op Operation) bool { return mutating[op] }

// pseudoQueryMarkers are the non-exhaustive S3 subresource query keys
// spec §4.6.2 calls out as pseudo-endpoints.
var pseudoQueryMarkers = []string{
	"acl", "versioning", "lifecycle", "cors", "replication", "object-lock",
	"logging", "website", "accelerate", "payment", "tagging", "policy",
	"encryption", "policyStatus", "publicAccessBlock", "notification",
	"requestPayment",
}

// Classify implements spec §4.5's dispatch table.
func Classify(meta *reqmeta.RequestMeta) Operation {
	q := meta.QueryParams
	hasKey := meta.ObjectKey != ""

	for _, marker := range pseudoQueryMarkers {
		if _, ok := q[marker]; ok {
			return OpRouteQueryParamedRequest
		}
	}

	switch meta.Method {
	case reqmeta.MethodGet:
		if hasKey {
			if _, ok := q["uploadId"]; ok {
				return OpListParts
			}
			return OpGetObject
		}
		if _, ok := q["list-type"]; ok {
			return OpListObjects
		}
		if _, ok := q["uploads"]; ok {
			return OpListMultipartUploads
		}
		if meta.Bucket == "" {
			return OpListBuckets
		}
		return OpListObjects
	case reqmeta.MethodPost:
		if _, ok := q["delete"]; ok {
			return OpDeleteObjects
		}
		if hasKey {
			if _, ok := q["uploads"]; ok {
				return OpCreateMultipartUpload
			}
			if _, ok := q["uploadId"]; ok {
				return OpCompleteMultipartUpload
			}
		}
		return OpRouteQueryParamedRequest
	case reqmeta.MethodPut:
		if hasKey {
			if _, ok := q["partNumber"]; ok {
				if _, ok := q["uploadId"]; ok {
					return OpUploadPart
				}
			}
			return OpPutObject
		}
		return OpCreateBucket
	case reqmeta.MethodDelete:
		if hasKey {
			if _, ok := q["uploadId"]; ok {
				return OpAbortMultipartUpload
			}
			return OpDeleteObject
		}
		return OpDeleteBucket
	case reqmeta.MethodHead:
		if hasKey {
			return OpHeadObject
		}
		return OpHeadBucket
	}
	return OpRouteQueryParamedRequest
}

// IsCopyObject reports whether a PUT carries the copy-source header,
// overriding the putObject classification above (spec §4.5 dispatch
// table row "PUT | yes | x-amz-copy-source header | copyObject").
func IsCopyObject(r *http.Request) bool {
	return r.Header.Get("X-Amz-Copy-Source") != ""
}

// Response is the normalized result a resolver hands back to the front
// door, independent of which backend protocol produced it.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Request is the subset of an inbound *http.Request a resolver needs,
// captured once so it can be replayed against replicas and reconstructed
// from a persisted MirrorTask (spec §4.8 "reconstruct the Request from
// the serialized bytes").
type Request struct {
	Method  string
	URL     *reqmeta.RequestMeta
	RawURL  string
	Header  http.Header
	Body    []byte
}

// CaptureRequest buffers r's whole body in memory (no size limit is
// applied) so it can be retried against multiple backends.
func CaptureRequest(r *http.Request, meta *reqmeta.RequestMeta) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	return &Request{
		Method: r.Method,
		URL:    meta,
		RawURL: r.URL.String(),
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}

// Dispatcher is implemented by internal/s3resolver.Resolver and
// internal/swiftresolver.Resolver; Router.dispatcherFor (dispatch.go)
// switches on a bucket's protocol to pick one.
type Dispatcher interface {
	Dispatch(ctx context.Context, op Operation, req *Request, bucket *registry.Bucket) (*Response, error)
}

// MirrorEnqueuer is implemented by internal/mirror.Queue.
type MirrorEnqueuer interface {
	Enqueue(bucketName string, op Operation, req *Request, primary *registry.Bucket, replica registry.ReplicaConfig) error
}
