// Package reqmeta classifies an inbound request's URL style and derives
// the bucket/object key it addresses (spec §4.2). It generalizes the
// teacher's extractBucketAndKey (a suffix-matching heuristic keyed off a
// single configured PROXY_DOMAIN) into the full virtual-hosted-vs-path
// classification table spec.md §4.2 specifies.
package reqmeta

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/starburst997/herald/internal/herr"
)

// URLFormat distinguishes virtual-hosted-style from path-style S3 URLs.
type URLFormat string

const (
	VirtualHosted URLFormat = "VirtualHosted"
	Path          URLFormat = "Path"
)

// Method is the set of HTTP methods Herald's S3 surface recognizes.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPut    Method = http.MethodPut
	MethodPost   Method = http.MethodPost
	MethodDelete Method = http.MethodDelete
	MethodHead   Method = http.MethodHead
)

var validMethods = map[string]Method{
	http.MethodGet:    MethodGet,
	http.MethodPut:    MethodPut,
	http.MethodPost:   MethodPost,
	http.MethodDelete: MethodDelete,
	http.MethodHead:   MethodHead,
}

// RequestMeta is the derived shape of an inbound request (spec §3).
type RequestMeta struct {
	Bucket      string // empty string means "no bucket" (null)
	ObjectKey   string // empty string means "no object key" (null)
	URLFormat   URLFormat
	Method      Method
	QueryParams map[string][]string
}

// virtualHostedHostRe matches {bucket}.s3.{region}.amazonaws.com and the
// generic {bucket}.s3.{anything}.com shape, excluding a literal "s3"
// first label (which would mean the un-bucketed s3.amazonaws.com host
// itself, i.e. path-style).
var virtualHostedHostRe = regexp.MustCompile(`^([^.]+)\.s3(?:[.-][^.]+)*\.com$`)

// ExtractRequestInfo derives RequestMeta from an inbound request,
// applying the path-vs-virtual classification rule of spec §4.2.
func ExtractRequestInfo(r *http.Request) (*RequestMeta, error) {
	host := r.Host
	if host == "" {
		return nil, herr.New("InvalidRequest", http.StatusBadRequest, "Invalid request: "+r.URL.String())
	}

	method, ok := validMethods[r.Method]
	if !ok {
		return nil, herr.ErrInvalidRequest
	}

	format := classifyHost(stripPort(host))

	meta := &RequestMeta{
		Method:      method,
		URLFormat:   format,
		QueryParams: map[string][]string(r.URL.Query()),
	}

	path := strings.TrimPrefix(r.URL.Path, "/")

	switch format {
	case VirtualHosted:
		meta.Bucket = firstLabel(stripPort(host))
		if path != "" {
			meta.ObjectKey = path
		}
	case Path:
		if path == "" {
			break
		}
		parts := strings.SplitN(path, "/", 2)
		meta.Bucket = parts[0]
		if len(parts) == 2 && parts[1] != "" {
			meta.ObjectKey = parts[1]
		}
	}

	return meta, nil
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i != -1 {
		// Only strip if what follows looks like a port (all digits);
		// guards against bare IPv6 literals without brackets, which
		// this gateway does not expect to see as a Host header.
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			return host[:i]
		}
	}
	return host
}

func firstLabel(host string) string {
	if i := strings.Index(host, "."); i != -1 {
		return host[:i]
	}
	return host
}

func isIPLiteral(host string) bool {
	// Crude but sufficient IPv4 check. IPv6 literals are not recognized
	// here; a bracketed IPv6 host never matches virtualHostedHostRe, so
	// classifyHost still returns Path for it.
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// classifyHost implements spec §4.2's urlFormat rule.
func classifyHost(host string) URLFormat {
	if host == "localhost" || isIPLiteral(host) {
		return Path
	}

	m := virtualHostedHostRe.FindStringSubmatch(host)
	if m == nil {
		return Path
	}
	if m[1] == "s3" {
		return Path
	}
	return VirtualHosted
}
