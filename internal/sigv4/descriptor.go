// Package sigv4 implements AWS Signature Version 4 parsing, verification,
// and outbound re-signing (spec §4.1). The HMAC chain itself is kept in
// the idiom of the teacher's signRequestV4WithBucket/getSigningKey/
// hmacSHA256 helpers; extraction and verification are new, generalizing
// the teacher's sign-only code into a full parse+verify engine grounded
// additionally on FairForge-vaultaire's s3_auth.go sentinel-error shape.
package sigv4

import (
	"time"
)

// Source identifies where a signature was carried on the wire.
type Source string

const (
	SourceHeader  Source = "header"
	SourcePresign Source = "pre-sign"
)

// Credentials is the access-key pair used to sign or verify a request.
// Kept local to this package (rather than importing internal/registry)
// so sigv4 has no dependency on the bucket registry.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Descriptor is the parsed shape of a request's SigV4 signature,
// independent of whether it arrived via header or presigned query
// (spec §3 SignatureDescriptor).
type Descriptor struct {
	Source          Source
	Algorithm       string
	AccessKeyID     string
	DateStamp       string // yyyyMMdd
	Region          string
	Service         string
	SignedHeaders   []string // sorted, lowercased
	Signature       string
	CredentialScope string
	Date            time.Time
	RawDate         string        // the literal X-Amz-Date value the client signed, verbatim
	ExpiresIn       time.Duration // zero for header-signed requests
}

const (
	amzDateCompact = "20060102T150405Z"
	amzDateDotted  = "2006-01-02T15:04:05Z"
)

// ParseAmzDate accepts both the compact ISO-8601 basic form AWS normally
// sends and the dotted extended form (spec §4.1 edge case).
func ParseAmzDate(s string) (time.Time, error) {
	if t, err := time.Parse(amzDateCompact, s); err == nil {
		return t, nil
	}
	return time.Parse(amzDateDotted, s)
}

// FormatAmzDate renders t in the compact form Herald always emits on
// outbound requests it signs itself.
func FormatAmzDate(t time.Time) string {
	return t.UTC().Format(amzDateCompact)
}

// FormatDateStamp renders the yyyyMMdd credential-scope date stamp.
func FormatDateStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}
