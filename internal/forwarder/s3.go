package forwarder

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starburst997/herald/internal/reqmeta"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/sigv4"
)

// Forwarder is the shared outbound dispatcher used by both the S3
// resolver (primary + replica fan-out) and the mirror workers.
type Forwarder struct {
	Client *http.Client
}

// New builds a Forwarder with a freshly constructed DNS-caching client.
func New(timeout time.Duration) *Forwarder {
	return &Forwarder{Client: NewClient(timeout)}
}

// rewriteTargetURL rebuilds the outbound URL against cfg's endpoint,
// preserving the original request's path-vs-virtual style (spec §4.4).
func rewriteTargetURL(original *url.URL, format reqmeta.URLFormat, cfg *registry.S3Config, objectKey string) (*url.URL, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	target := *endpoint
	target.RawQuery = original.RawQuery

	useVirtual := format == reqmeta.VirtualHosted && !cfg.ForcePathStyle

	if useVirtual {
		target.Host = cfg.Bucket + "." + endpoint.Host
		if objectKey != "" {
			target.Path = "/" + objectKey
		} else {
			target.Path = "/"
		}
		return &target, nil
	}

	if objectKey != "" {
		target.Path = "/" + cfg.Bucket + "/" + objectKey
	} else {
		target.Path = "/" + cfg.Bucket
	}
	return &target, nil
}

// ForwardS3 implements forwardS3RequestToS3WithTimeouts (spec §4.4): it
// rewrites the target URL to cfg's endpoint, re-signs with cfg's own
// credentials (never forwarding the client's original signature), and
// retries with exponential backoff.
func (f *Forwarder) ForwardS3(ctx context.Context, method string, format reqmeta.URLFormat, originalURL *url.URL, objectKey string, header http.Header, body []byte, cfg *registry.S3Config, maxAttempts int) (*http.Response, error) {
	target, err := rewriteTargetURL(originalURL, format, cfg, objectKey)
	if err != nil {
		return nil, err
	}

	return RetryWithExponentialBackoff(ctx, maxAttempts, func(ctx context.Context, attempt int) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Host = target.Host
		copyForwardableHeaders(req.Header, header)

		sigv4.SignRequestV4(req, sigv4.Credentials{
			AccessKeyID:     cfg.Credentials.AccessKeyID,
			SecretAccessKey: cfg.Credentials.SecretAccessKey,
		}, cfg.Region, "s3", body)

		return f.Client.Do(req)
	})
}

// copyForwardableHeaders copies the Content-* and X-Amz-* headers a
// client sent, exactly as the teacher's handleProxyRequest does; the
// Authorization header is deliberately never copied since the backend
// will be re-signed with its own credentials.
func copyForwardableHeaders(dst, src http.Header) {
	for k, v := range src {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "content-") || strings.HasPrefix(lk, "x-amz-") {
			dst[k] = v
		}
	}
}

// DrainAndClose reads resp.Body fully and closes it, returning the bytes.
// Used by callers (mirror workers, bulk-delete) that need the whole body.
func DrainAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
