package forwarder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/registry"
)

func TestRewriteTargetURLVirtualHosted(t *testing.T) {
	original, _ := url.Parse("https://my-bucket.s3.example.com/key.txt?versionId=1")
	cfg := &registry.S3Config{Endpoint: "https://s3.upstream.com", Bucket: "upstream-bucket"}

	got, err := rewriteTargetURL(original, reqmeta.VirtualHosted, cfg, "key.txt")
	if err != nil {
		t.Fatalf("rewriteTargetURL: %v", err)
	}
	if got.Host != "upstream-bucket.s3.upstream.com" {
		t.Errorf("Host = %q", got.Host)
	}
	if got.Path != "/key.txt" {
		t.Errorf("Path = %q", got.Path)
	}
	if got.RawQuery != "versionId=1" {
		t.Errorf("RawQuery = %q", got.RawQuery)
	}
}

func TestRewriteTargetURLPathStyle(t *testing.T) {
	original, _ := url.Parse("https://s3.example.com/my-bucket/a/b.txt")
	cfg := &registry.S3Config{Endpoint: "https://s3.upstream.com", Bucket: "upstream-bucket", ForcePathStyle: true}

	got, err := rewriteTargetURL(original, reqmeta.Path, cfg, "a/b.txt")
	if err != nil {
		t.Fatalf("rewriteTargetURL: %v", err)
	}
	if got.Path != "/upstream-bucket/a/b.txt" {
		t.Errorf("Path = %q", got.Path)
	}
}

func TestRewriteTargetURLNoObjectKeyIsBucketRoot(t *testing.T) {
	original, _ := url.Parse("https://s3.example.com/my-bucket")
	cfg := &registry.S3Config{Endpoint: "https://s3.upstream.com", Bucket: "upstream-bucket", ForcePathStyle: true}

	got, err := rewriteTargetURL(original, reqmeta.Path, cfg, "")
	if err != nil {
		t.Fatalf("rewriteTargetURL: %v", err)
	}
	if got.Path != "/upstream-bucket" {
		t.Errorf("Path = %q", got.Path)
	}
}

func TestMaxAttemptsFor(t *testing.T) {
	if got := MaxAttemptsFor(false, false); got != defaultMaxAttempts {
		t.Errorf("no replicas: got %d, want %d", got, defaultMaxAttempts)
	}
	if got := MaxAttemptsFor(true, false); got != 1 {
		t.Errorf("has replicas: got %d, want 1", got)
	}
	if got := MaxAttemptsFor(false, true); got != 1 {
		t.Errorf("is replica: got %d, want 1", got)
	}
}

func TestRetryWithExponentialBackoffSucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	resp, err := RetryWithExponentialBackoff(context.Background(), 3, func(ctx context.Context, attempt int) (*http.Response, error) {
		calls++
		if attempt == 1 {
			return &http.Response{StatusCode: 503, Body: http.NoBody}, nil
		}
		return &http.Response{StatusCode: 200, Body: http.NoBody}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryWithExponentialBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithExponentialBackoff(context.Background(), 2, func(ctx context.Context, attempt int) (*http.Response, error) {
		calls++
		return &http.Response{StatusCode: 503, Body: http.NoBody}, nil
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestForwardS3RewritesAndSigns(t *testing.T) {
	var gotHost, gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	f := New(5 * time.Second)

	original, _ := url.Parse("https://s3.example.com/my-bucket/key.txt")
	cfg := &registry.S3Config{
		Endpoint: backend.URL,
		Bucket:   "my-bucket",
		Region:   "us-east-1",
		Credentials: registry.Credentials{
			AccessKeyID: "AKID", SecretAccessKey: "SECRET",
		},
		ForcePathStyle: true,
	}

	resp, err := f.ForwardS3(context.Background(), http.MethodGet, reqmeta.Path, original, "key.txt", http.Header{}, nil, cfg, 1)
	if err != nil {
		t.Fatalf("ForwardS3: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotHost == "" {
		t.Fatal("expected backend to observe a Host header")
	}
	if gotAuth == "" {
		t.Fatal("expected request to be re-signed with an Authorization header")
	}
}
