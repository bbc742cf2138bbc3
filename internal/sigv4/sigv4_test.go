package sigv4

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testCreds() Credentials {
	return Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"}
}

func TestSignAndVerifyHeaderRoundTrip(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "http://bucket.s3.example.com/object.txt", nil)
	req.Host = "bucket.s3.example.com"

	SignRequestV4(req, testCreds(), "us-east-1", "s3", nil)

	if err := VerifyV4Signature(req, testCreds(), false, nil); err != nil {
		t.Fatalf("expected verify to succeed, got %v", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "http://bucket.s3.example.com/object.txt", nil)
	req.Host = "bucket.s3.example.com"
	SignRequestV4(req, testCreds(), "us-east-1", "s3", nil)

	wrong := Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "not-the-right-secret"}
	if err := VerifyV4Signature(req, wrong, false, nil); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestPresignRoundTripWithinExpiry(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "http://bucket.s3.example.com/object.txt", nil)
	req.Host = "bucket.s3.example.com"

	url := GeneratePresignedURL(req, testCreds(), "us-east-1", "s3", 60*time.Second)
	signed := httptest.NewRequest(http.MethodPut, url, nil)
	signed.Host = "bucket.s3.example.com"

	if err := VerifyV4Signature(signed, testCreds(), false, nil); err != nil {
		t.Fatalf("expected presigned verify to succeed, got %v", err)
	}
}

func TestPresignExpired(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "http://bucket.s3.example.com/object.txt", nil)
	req.Host = "bucket.s3.example.com"

	url := GeneratePresignedURL(req, testCreds(), "us-east-1", "s3", 60*time.Second)
	signed := httptest.NewRequest(http.MethodPut, url, nil)
	signed.Host = "bucket.s3.example.com"

	q := signed.URL.Query()
	past := time.Now().UTC().Add(-20 * time.Minute)
	q.Set("X-Amz-Date", FormatAmzDate(past))
	signed.URL.RawQuery = q.Encode()

	err := VerifyV4Signature(signed, testCreds(), false, nil)
	if err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestExtractSignatureMissingAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://bucket.s3.example.com/", nil)
	if _, err := ExtractSignature(req); err == nil {
		t.Fatal("expected ErrAuthHeaderEmpty")
	}
}

// A client that signs with the dotted X-Amz-Date literal
// ("2006-01-02T15:04:05Z") uses that exact string in its own
// string-to-sign, even though Herald always emits the compact form on
// requests it signs itself. Verification must carry the literal wire
// value through, not re-derive it from the parsed time.
func TestVerifyAcceptsDottedAmzDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "http://bucket.s3.example.com/object.txt", nil)
	req.Host = "bucket.s3.example.com"

	now := time.Now().UTC()
	dottedDate := now.Format("2006-01-02T15:04:05Z")
	dateStamp := FormatDateStamp(now)
	creds := testCreds()

	req.Header.Set("X-Amz-Date", dottedDate)
	payloadHash := fmt.Sprintf("%x", sha256.Sum256(nil))
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	signedHeaders := outboundSignedHeaders(req)
	headersBlock := canonicalHeaders(req, req.Host, signedHeaders)
	signedHeadersStr := signedHeadersJoined(signedHeaders)
	queryString := canonicalQueryString(req.URL.Query(), "")

	canReq := canonicalRequest(req.Method, req.URL.Path, queryString, headersBlock, signedHeadersStr, payloadHash)
	credentialScope := strings.Join([]string{dateStamp, "us-east-1", "s3", "aws4_request"}, "/")
	sts := stringToSign("AWS4-HMAC-SHA256", dottedDate, credentialScope, canReq)

	signingKey := getSigningKey(creds.SecretAccessKey, dateStamp, "us-east-1", "s3")
	signature := fmt.Sprintf("%x", hmacSHA256(signingKey, []byte(sts)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		creds.AccessKeyID, credentialScope, signedHeadersStr, signature,
	))

	if err := VerifyV4Signature(req, creds, false, nil); err != nil {
		t.Fatalf("expected verify to accept dotted X-Amz-Date, got %v", err)
	}
}
