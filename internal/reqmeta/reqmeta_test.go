package reqmeta

import (
	"net/http/httptest"
	"testing"
)

func TestExtractRequestInfo(t *testing.T) {
	cases := []struct {
		name       string
		host       string
		path       string
		wantFormat URLFormat
		wantBucket string
		wantKey    string
	}{
		{"path style root", "s3.example.com", "/", Path, "", ""},
		{"path style bucket only", "s3.example.com", "/my-bucket", Path, "my-bucket", ""},
		{"path style bucket+key", "s3.example.com", "/my-bucket/a/b.txt", Path, "my-bucket", "a/b.txt"},
		{"virtual hosted amazonaws", "my-bucket.s3.us-east-1.amazonaws.com", "/key.txt", VirtualHosted, "my-bucket", "key.txt"},
		{"virtual hosted generic com", "my-bucket.s3.example.com", "/key.txt", VirtualHosted, "my-bucket", "key.txt"},
		{"bare s3 host is path style", "s3.amazonaws.com", "/my-bucket/key.txt", Path, "my-bucket", "key.txt"},
		{"ip literal is path style", "127.0.0.1", "/my-bucket", Path, "my-bucket", ""},
		{"localhost is path style", "localhost", "/my-bucket", Path, "my-bucket", ""},
		{"host with port strips port", "s3.example.com:9000", "/my-bucket", Path, "my-bucket", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://"+tc.host+tc.path, nil)
			req.Host = tc.host

			meta, err := ExtractRequestInfo(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta.URLFormat != tc.wantFormat {
				t.Errorf("format = %v, want %v", meta.URLFormat, tc.wantFormat)
			}
			if meta.Bucket != tc.wantBucket {
				t.Errorf("bucket = %q, want %q", meta.Bucket, tc.wantBucket)
			}
			if meta.ObjectKey != tc.wantKey {
				t.Errorf("key = %q, want %q", meta.ObjectKey, tc.wantKey)
			}
		})
	}
}

func TestExtractRequestInfoRejectsUnknownMethod(t *testing.T) {
	req := httptest.NewRequest("PATCH", "http://s3.example.com/bucket", nil)
	req.Host = "s3.example.com"
	if _, err := ExtractRequestInfo(req); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}

func TestExtractRequestInfoMissingHost(t *testing.T) {
	req := httptest.NewRequest("GET", "http://s3.example.com/bucket", nil)
	req.Host = ""
	if _, err := ExtractRequestInfo(req); err == nil {
		t.Fatal("expected error for missing host")
	}
}
