package swiftresolver

import (
	"net/http"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/resolver"
)

// mapObjectStatus implements spec §4.6.3's status-code translation
// table for object-level operations.
func mapObjectStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return herr.ErrNoSuchKey
	case http.StatusRequestedRangeNotSatisfiable:
		return herr.ErrInvalidObjectState
	case http.StatusRequestTimeout:
		return herr.ErrRequestTimeout
	case http.StatusLengthRequired, http.StatusUnprocessableEntity:
		return herr.ErrInvalidRequest
	default:
		return herr.ErrInternalError
	}
}

// mapBucketStatus implements the same table for bucket-level (list/head)
// operations, where 404 maps to NoSuchBucket instead of NoSuchKey.
func mapBucketStatus(status int, op resolver.Operation) error {
	switch status {
	case http.StatusNotFound:
		return herr.ErrNoSuchBucket
	case http.StatusRequestTimeout:
		return herr.ErrRequestTimeout
	case http.StatusBadRequest, http.StatusInsufficientStorage:
		if op == resolver.OpCreateBucket {
			return herr.ErrBucketAlreadyExists
		}
		return herr.ErrInvalidRequest
	default:
		return herr.ErrInternalError
	}
}

// requireHeader fails with a synthesized 502 HeraldError when a Swift
// response is missing a header Herald must translate (spec §4.6.3
// "Missing required Swift headers ⇒ synthesize 502").
func requireHeader(h http.Header, name string) (string, error) {
	v := h.Get(name)
	if v == "" {
		return "", herr.New("HeraldError", http.StatusBadGateway, "swift response missing required header "+name)
	}
	return v, nil
}
