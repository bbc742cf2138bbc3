package swiftresolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/keystone"
	"github.com/starburst997/herald/internal/ratelimit"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/resolver"
)

func testResolver(t *testing.T, backend *httptest.Server) (*Resolver, *registry.Bucket) {
	t.Helper()

	keystoneServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject-Token", "tok-123")
		resp := map[string]interface{}{
			"token": map[string]interface{}{
				"catalog": []map[string]interface{}{
					{
						"type": "object-store",
						"endpoints": []map[string]interface{}{
							{"interface": "public", "region": "RegionOne", "url": backend.URL},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(keystoneServer.Close)

	cfg := &registry.SwiftConfig{
		AuthURL:   keystoneServer.URL,
		Region:    "RegionOne",
		Container: "mycontainer",
		Credentials: registry.SwiftCredentials{
			Username: "u", Password: "p", ProjectName: "proj", UserDomainName: "Default", ProjectDomainName: "Default",
		},
	}
	bucket := &registry.Bucket{BucketName: "mybucket", Type: registry.SwiftBucketConfig, Swift: cfg}

	log := logrus.New()
	log.SetOutput(nopWriter{})

	r := &Resolver{
		Client:   backend.Client(),
		Keystone: keystone.New(backend.Client()),
		Limiters: ratelimit.New(),
		Audit:    nil,
		Log:      log,
		Timeout:  5 * time.Second,
	}
	return r, bucket
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatchGetObjectMapsHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// keystone auth hits a different server in this test setup.
			return
		}
		w.Header().Set("Etag", "abc123")
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", "5")
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Object-Meta-Foo", "bar")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer backend.Close()

	r, bucket := testResolver(t, backend)

	req := &resolver.Request{
		Method: http.MethodGet,
		URL:    &reqmeta.RequestMeta{Bucket: "mybucket", ObjectKey: "a.txt", QueryParams: map[string][]string{}},
		Header: http.Header{},
	}

	resp, err := r.Dispatch(context.Background(), resolver.OpGetObject, req, bucket)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	if resp.Header.Get("ETag") != `"abc123"` {
		t.Fatalf("ETag = %q", resp.Header.Get("ETag"))
	}
	if resp.Header.Get("X-Amz-Meta-Foo") != "bar" {
		t.Fatalf("X-Amz-Meta-Foo = %q", resp.Header.Get("X-Amz-Meta-Foo"))
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestDispatchGetObjectNotFound(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer backend.Close()

	r, bucket := testResolver(t, backend)
	req := &resolver.Request{
		Method: http.MethodGet,
		URL:    &reqmeta.RequestMeta{Bucket: "mybucket", ObjectKey: "missing.txt", QueryParams: map[string][]string{}},
		Header: http.Header{},
	}

	_, err := r.Dispatch(context.Background(), resolver.OpGetObject, req, bucket)
	if err == nil {
		t.Fatal("expected error for 404")
	}
}
