package herr

import (
	"encoding/xml"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestAs5xxClassifiesTaggedErrors(t *testing.T) {
	if As5xx(ErrNoSuchKey) {
		t.Fatal("404 should not be treated as 5xx")
	}
	if !As5xx(ErrInternalError) {
		t.Fatal("500 should be treated as 5xx")
	}
	if !As5xx(errors.New("untagged error")) {
		t.Fatal("untagged errors should default to 5xx (report to sentry)")
	}
}

func TestWriteXMLRendersCanonicalBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteXML(w, ErrNoSuchBucket, "req-1", "host-1")

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var body xmlError
	if err := xml.Unmarshal(w.Body.Bytes()[len(xml.Header):], &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != "NoSuchBucket" || body.RequestID != "req-1" || body.HostID != "host-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteXMLWrapsUntaggedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteXML(w, errors.New("boom"), "req-2", "host-2")
	if w.Code != 500 {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
