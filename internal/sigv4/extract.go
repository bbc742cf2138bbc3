package sigv4

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starburst997/herald/internal/herr"
)

var headerSigRe = regexp.MustCompile(
	`^AWS4-(HMAC-SHA256) Credential=([^/,]+)/(\d{8})/([^/]+)/([^/]+)/aws4_request,\s*SignedHeaders=([^,]+),\s*Signature=([0-9a-fA-F]+)$`,
)

func firstQuery(query map[string][]string, key string) string {
	if v, ok := query[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// ExtractSignature parses either the Authorization header or the
// presigned query parameters of req into a Descriptor (spec §4.1).
func ExtractSignature(req *http.Request) (*Descriptor, error) {
	auth := req.Header.Get("Authorization")
	query := req.URL.Query()

	if auth != "" {
		return extractHeaderSignature(auth, req.Header.Get("X-Amz-Date"), req.Header.Get("Date"))
	}
	if sig := query.Get("X-Amz-Signature"); sig != "" {
		return extractPresignSignature(query)
	}
	return nil, herr.ErrAuthHeaderEmpty
}

// extractHeaderSignature parses the Authorization header and resolves
// the request's timestamp, treating a missing X-Amz-Date/Date pair as
// "now" (spec §4.1 edge case).
func extractHeaderSignature(headerAuth, xAmzDate, dateHeader string) (*Descriptor, error) {
	m := headerSigRe.FindStringSubmatch(strings.TrimSpace(headerAuth))
	if m == nil {
		if strings.HasPrefix(headerAuth, "AWS4-") {
			return nil, herr.ErrInvalidSignTag
		}
		return nil, herr.ErrMissingSignTag
	}

	desc := &Descriptor{
		Source:      SourceHeader,
		Algorithm:   m[1],
		AccessKeyID: m[2],
		DateStamp:   m[3],
		Region:      m[4],
		Service:     m[5],
		Signature:   strings.ToLower(m[7]),
	}
	desc.CredentialScope = strings.Join([]string{desc.DateStamp, desc.Region, desc.Service, "aws4_request"}, "/")

	for _, h := range strings.Split(m[6], ";") {
		desc.SignedHeaders = append(desc.SignedHeaders, strings.ToLower(strings.TrimSpace(h)))
	}
	sort.Strings(desc.SignedHeaders)

	switch {
	case xAmzDate != "":
		t, err := ParseAmzDate(xAmzDate)
		if err != nil {
			return nil, herr.ErrInvalidSignTag
		}
		desc.Date = t
		desc.RawDate = xAmzDate
	case dateHeader != "":
		if t, err := time.Parse(time.RFC1123, dateHeader); err == nil {
			desc.Date = t.UTC()
		} else {
			desc.Date = time.Now().UTC()
		}
		desc.RawDate = FormatAmzDate(desc.Date)
	default:
		desc.Date = time.Now().UTC()
		desc.RawDate = FormatAmzDate(desc.Date)
	}

	return desc, nil
}

func extractPresignSignature(query map[string][]string) (*Descriptor, error) {
	algorithm := firstQuery(query, "X-Amz-Algorithm")
	credential := firstQuery(query, "X-Amz-Credential")
	signedHeaders := firstQuery(query, "X-Amz-SignedHeaders")
	signature := firstQuery(query, "X-Amz-Signature")
	expires := firstQuery(query, "X-Amz-Expires")
	amzDate := firstQuery(query, "X-Amz-Date")

	if algorithm == "" || credential == "" || signedHeaders == "" || signature == "" {
		return nil, herr.ErrMissingSignTag
	}

	parts := strings.Split(credential, "/")
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return nil, herr.ErrInvalidSignTag
	}

	desc := &Descriptor{
		Source:          SourcePresign,
		Algorithm:       strings.TrimPrefix(algorithm, "AWS4-"),
		AccessKeyID:      parts[0],
		DateStamp:       parts[1],
		Region:          parts[2],
		Service:         parts[3],
		Signature:       strings.ToLower(signature),
		CredentialScope: strings.Join(parts[1:], "/"),
	}

	for _, h := range strings.Split(signedHeaders, ";") {
		desc.SignedHeaders = append(desc.SignedHeaders, strings.ToLower(strings.TrimSpace(h)))
	}
	sort.Strings(desc.SignedHeaders)

	if amzDate == "" {
		return nil, herr.ErrMissingSignTag
	}
	t, err := ParseAmzDate(amzDate)
	if err != nil {
		return nil, herr.ErrInvalidSignTag
	}
	desc.Date = t
	desc.RawDate = amzDate

	if expires != "" {
		secs, err := strconv.Atoi(expires)
		if err != nil || secs < 0 {
			return nil, herr.ErrInvalidSignTag
		}
		desc.ExpiresIn = time.Duration(secs) * time.Second
	}

	return desc, nil
}
