package sigv4

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/starburst997/herald/internal/herr"
)

// clockSkewAllowance is added to a presign's declared Expires window
// before it is considered expired (spec §4.1).
const clockSkewAllowance = 15 * time.Minute

// TrustedCIDRChecker reports whether ip is inside a configured trusted
// proxy CIDR. Implemented by *registry.Registry.
type TrustedCIDRChecker interface {
	TrustedCIDRContains(ip net.IP) bool
}

// VerifyV4Signature recomputes the SigV4 signature for req and compares
// it against the one the client supplied (spec §4.1). trustProxy and
// trustedCIDRs govern whether an X-Forwarded-Host rewrite is honored.
func VerifyV4Signature(req *http.Request, creds Credentials, trustProxy bool, trustedCIDRs TrustedCIDRChecker) error {
	desc, err := ExtractSignature(req)
	if err != nil {
		return err
	}

	if desc.Source == SourcePresign {
		deadline := desc.Date.Add(desc.ExpiresIn).Add(clockSkewAllowance)
		if time.Now().UTC().After(deadline) {
			return herr.ErrExpiredPresign
		}
	}

	effectiveHost, err := canonicalHost(req, trustProxy, trustedCIDRs)
	if err != nil {
		return err
	}

	payloadHash := payloadHashFor(req, req.URL.Query().Get("X-Amz-Content-Sha256"))

	query := req.URL.Query()
	var queryString string
	if desc.Source == SourcePresign {
		queryString = canonicalQueryString(query, "X-Amz-Signature")
	} else {
		queryString = canonicalQueryString(query, "")
	}

	headersBlock := canonicalHeaders(req, effectiveHost, desc.SignedHeaders)
	signedHeadersStr := signedHeadersJoined(desc.SignedHeaders)

	canReq := canonicalRequest(req.Method, req.URL.Path, queryString, headersBlock, signedHeadersStr, payloadHash)
	sts := stringToSign("AWS4-"+desc.Algorithm, desc.RawDate, desc.CredentialScope, canReq)

	signingKey := getSigningKey(creds.SecretAccessKey, desc.DateStamp, desc.Region, desc.Service)
	expected := fmt.Sprintf("%x", hmacSHA256(signingKey, []byte(sts)))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(desc.Signature)) != 1 {
		return herr.ErrSignatureDoesNotMatch
	}

	return nil
}

// canonicalHost resolves the host used in the canonical request,
// honoring a trusted X-Forwarded-Host rewrite (spec §4.1).
func canonicalHost(req *http.Request, trustProxy bool, trustedCIDRs TrustedCIDRChecker) (string, error) {
	fwdHost := req.Header.Get("X-Forwarded-Host")
	if !trustProxy || fwdHost == "" {
		return req.Host, nil
	}

	fwdFor := req.Header.Get("X-Forwarded-For")
	if fwdFor == "" {
		return "", herr.ErrAccessDenied
	}
	hops := strings.Split(fwdFor, ",")
	lastHop := strings.TrimSpace(hops[len(hops)-1])
	ip := net.ParseIP(lastHop)
	if ip == nil || trustedCIDRs == nil || !trustedCIDRs.TrustedCIDRContains(ip) {
		return "", herr.ErrAccessDenied
	}

	return fwdHost, nil
}
