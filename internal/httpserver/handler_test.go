package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/starburst997/herald/internal/config"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
	"github.com/starburst997/herald/internal/sigv4"
)

type fakeDispatcher struct {
	resp *resolver.Response
	err  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, op resolver.Operation, req *resolver.Request, bucket *registry.Bucket) (*resolver.Response, error) {
	return f.resp, f.err
}

type fakeQueue struct{}

func (fakeQueue) Enqueue(bucketName string, op resolver.Operation, req *resolver.Request, primary *registry.Bucket, replica registry.ReplicaConfig) error {
	return nil
}

func testServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	fc := &config.FileConfig{
		Backends: map[string]config.BackendDef{
			"b1": {Protocol: "s3"},
		},
		Buckets: map[string]config.BucketDef{
			"my-bucket": {
				Backend:               "b1",
				ClientAccessKeyID:     "AKIDEXAMPLE",
				ClientSecretAccessKey: "secretkey",
				Endpoint:              "https://example.com",
				Bucket:                "my-bucket",
			},
		},
	}
	reg, err := registry.Build(fc)
	if err != nil {
		t.Fatalf("registry.Build: %v", err)
	}

	router := &resolver.Router{
		S3:    &fakeDispatcher{resp: &resolver.Response{Status: 200, Header: http.Header{}, Body: []byte("ok")}},
		Swift: &fakeDispatcher{resp: &resolver.Response{Status: 200, Header: http.Header{}, Body: []byte("ok")}},
		Queue: fakeQueue{},
		Log:   logrus.New(),
	}

	log, _ := test.NewNullLogger()
	s := New(":0", reg, router, nil, log)
	return s, reg
}

func signedRequest(t *testing.T, method, rawURL string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, rawURL, nil)
	creds := sigv4.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secretkey"}
	sigv4.SignRequestV4(req, creds, "us-east-1", "s3", body)
	return req
}

func TestHandleHealthzNoSwiftBackends(t *testing.T) {
	s, _ := testServer(t)
	w := httptest.NewRecorder()
	s.handleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleS3UnknownBucket(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://s3.example.com/does-not-exist", nil)
	w := httptest.NewRecorder()
	s.handleS3(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleS3RejectsBadSignature(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://s3.example.com/my-bucket/key.txt", nil)
	w := httptest.NewRecorder()
	s.handleS3(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleS3DispatchesSignedRequest(t *testing.T) {
	s, _ := testServer(t)
	req := signedRequest(t, http.MethodGet, "http://s3.example.com/my-bucket/key.txt", nil)
	w := httptest.NewRecorder()
	s.handleS3(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleListBuckets(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://s3.example.com/", nil)
	w := httptest.NewRecorder()
	s.handleS3(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !contains(w.Body.String(), "my-bucket") {
		t.Fatalf("body missing bucket name: %s", w.Body.String())
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
