// Package herr defines the canonical S3-shaped error taxonomy Herald
// returns to clients, independent of which backend produced the failure.
package herr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
)

// Error is the tagged result every handler in Herald returns on failure.
// The front door renders it as the canonical S3 error XML body.
type Error struct {
	Code    string
	Status  int
	Message string
	// Cause is the underlying error, if any, kept for logging only —
	// never rendered to the client.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a canonical error with the given S3 code, HTTP status, and message.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a canonical error without altering its code/status.
func Wrap(e *Error, cause error) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: e.Message, Cause: cause}
}

// Canonical S3 error codes used throughout Herald (spec §7, §6).
var (
	ErrNoSuchBucket            = New("NoSuchBucket", http.StatusNotFound, "The specified bucket does not exist")
	ErrNoSuchKey               = New("NoSuchKey", http.StatusNotFound, "The specified key does not exist")
	ErrNoSuchUpload            = New("NoSuchUpload", http.StatusNotFound, "The specified multipart upload does not exist")
	ErrInvalidRequest          = New("InvalidRequest", http.StatusBadRequest, "The request is invalid")
	ErrMalformedXML            = New("MalformedXML", http.StatusBadRequest, "The XML you provided was not well-formed")
	ErrBucketAlreadyExists     = New("BucketAlreadyExists", http.StatusConflict, "The requested bucket name is not available")
	ErrBucketAlreadyOwnedByYou = New("BucketAlreadyOwnedByYou", http.StatusConflict, "Your previous request to create the named bucket succeeded and you already own it")
	ErrRequestTimeout          = New("RequestTimeout", http.StatusRequestTimeout, "Your socket connection to the server was not read from or written to within the timeout period")
	ErrInvalidObjectState      = New("InvalidObjectState", http.StatusForbidden, "The operation is not valid for the object's storage class")
	ErrAccessDenied            = New("AccessDenied", http.StatusForbidden, "Access Denied")
	ErrMethodNotAllowed        = New("MethodNotAllowed", http.StatusMethodNotAllowed, "The specified method is not allowed against this resource")
	ErrNotImplemented          = New("NotImplemented", http.StatusNotImplemented, "This operation is not implemented")
	ErrInternalError           = New("InternalError", http.StatusInternalServerError, "We encountered an internal error, please try again")
)

// Signature-engine sentinel errors (spec §4.1).
var (
	ErrAuthHeaderEmpty      = errors.New("herald: authorization header and presign query are both empty")
	ErrMissingSignTag       = errors.New("herald: signature is missing a required credential tag")
	ErrInvalidSignTag       = errors.New("herald: signature credential tag is malformed")
	ErrExpiredPresign       = errors.New("herald: presigned URL has expired")
	ErrSignatureDoesNotMatch = errors.New("herald: the computed signature does not match the provided signature")
)

// As5xx reports whether err should be treated as an unexpected upstream
// failure worth reporting to Sentry (spec §7: never for expected 4xx).
func As5xx(err error) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Status >= 500
	}
	return true
}

type xmlError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
	HostID    string   `xml:"HostId"`
}

// WriteXML renders err (wrapping as InternalError if it isn't already a
// tagged *Error) as the canonical S3 error XML body.
func WriteXML(w http.ResponseWriter, err error, requestID, hostID string) {
	var he *Error
	if !errors.As(err, &he) {
		he = Wrap(ErrInternalError, err)
	}

	body := xmlError{
		Code:      he.Code,
		Message:   he.Message,
		RequestID: requestID,
		HostID:    hostID,
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("x-amz-request-id", requestID)
	w.WriteHeader(he.Status)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Encode(body)
}
