package sigv4

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// outboundSignedHeaders mirrors the teacher's createSignedHeaders: every
// request Herald forwards signs host, content-type, and all x-amz-*
// headers.
func outboundSignedHeaders(req *http.Request) []string {
	set := map[string]struct{}{"host": {}}
	for k := range req.Header {
		lk := strings.ToLower(k)
		if lk == "content-type" || strings.HasPrefix(lk, "x-amz-") {
			set[lk] = struct{}{}
		}
	}
	headers := make([]string, 0, len(set))
	for h := range set {
		headers = append(headers, h)
	}
	sort.Strings(headers)
	return headers
}

// SignRequestV4 signs req with creds using the standard header-based
// form, generalizing the teacher's signRequestV4WithBucket — re-signing
// is used by the outbound forwarder (spec §4.4), which must never
// forward the client's original signature.
func SignRequestV4(req *http.Request, creds Credentials, region, service string, body []byte) {
	now := time.Now().UTC()
	dateStamp := FormatDateStamp(now)
	amzDate := FormatAmzDate(now)

	req.Header.Set("X-Amz-Date", amzDate)

	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	effectiveHost := req.Host
	if effectiveHost == "" {
		effectiveHost = req.URL.Host
	}

	signedHeaders := outboundSignedHeaders(req)
	headersBlock := canonicalHeaders(req, effectiveHost, signedHeaders)
	signedHeadersStr := signedHeadersJoined(signedHeaders)
	queryString := canonicalQueryString(req.URL.Query(), "")

	canReq := canonicalRequest(req.Method, req.URL.Path, queryString, headersBlock, signedHeadersStr, payloadHash)
	credentialScope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")
	sts := stringToSign("AWS4-HMAC-SHA256", amzDate, credentialScope, canReq)

	signingKey := getSigningKey(creds.SecretAccessKey, dateStamp, region, service)
	signature := fmt.Sprintf("%x", hmacSHA256(signingKey, []byte(sts)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		creds.AccessKeyID, credentialScope, signedHeadersStr, signature,
	))
}

// GeneratePresignedURL builds a presigned SigV4 URL for req, used by
// clients (and by this module's tests) to exercise the presign path
// (spec §8 scenario d).
func GeneratePresignedURL(req *http.Request, creds Credentials, region, service string, expiresIn time.Duration) string {
	now := time.Now().UTC()
	dateStamp := FormatDateStamp(now)
	amzDate := FormatAmzDate(now)
	credentialScope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")

	q := req.URL.Query()
	q.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	q.Set("X-Amz-Credential", creds.AccessKeyID+"/"+credentialScope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", strconv.Itoa(int(expiresIn.Seconds())))
	q.Set("X-Amz-SignedHeaders", "host")
	req.URL.RawQuery = q.Encode()

	effectiveHost := req.Host
	if effectiveHost == "" {
		effectiveHost = req.URL.Host
	}

	headersBlock := canonicalHeaders(req, effectiveHost, []string{"host"})
	queryString := canonicalQueryString(req.URL.Query(), "X-Amz-Signature")
	canReq := canonicalRequest(req.Method, req.URL.Path, queryString, headersBlock, "host", "UNSIGNED-PAYLOAD")
	sts := stringToSign("AWS4-HMAC-SHA256", amzDate, credentialScope, canReq)

	signingKey := getSigningKey(creds.SecretAccessKey, dateStamp, region, service)
	signature := fmt.Sprintf("%x", hmacSHA256(signingKey, []byte(sts)))

	q2, _ := url.ParseQuery(req.URL.RawQuery)
	q2.Set("X-Amz-Signature", signature)
	req.URL.RawQuery = q2.Encode()

	return req.URL.String()
}
