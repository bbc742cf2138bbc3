package swiftresolver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/resolver"
)

// objectMetaHeaders copies Swift's x-object-meta-* headers into S3's
// x-amz-meta-* namespace, plus the handful of headers GetObject/
// HeadObject pass through as-is (spec §4.6.3 table row GetObject).
func objectMetaHeaders(swiftHeader http.Header) http.Header {
	out := make(http.Header)
	for k, v := range swiftHeader {
		lk := strings.ToLower(k)
		switch {
		case strings.HasPrefix(lk, "x-object-meta-"):
			out["X-Amz-Meta-"+k[len("X-Object-Meta-"):]] = v
		case lk == "etag" || lk == "content-length" || lk == "content-type" || lk == "accept-ranges":
			out[k] = v
		}
	}
	return out
}

func (c *swiftCall) getObject(req *resolver.Request, headOnly bool) (*resolver.Response, error) {
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}

	header := http.Header{}
	if rng := req.Header.Get("Range"); rng != "" {
		header.Set("Range", rng)
	}

	resp, err := c.do(method, c.containerURL(req.URL.ObjectKey), header, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapObjectStatus(resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, herr.New("HeraldError", http.StatusBadGateway, fmt.Sprintf("unexpected swift status %d", resp.StatusCode))
	}

	etag, err := requireHeader(resp.Header, "Etag")
	if err != nil {
		return nil, err
	}
	lastMod, err := requireHeader(resp.Header, "Last-Modified")
	if err != nil {
		return nil, err
	}

	out := objectMetaHeaders(resp.Header)
	out.Set("ETag", `"`+strings.Trim(etag, `"`)+`"`)
	out.Set("Last-Modified", toRFC1123(lastMod))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}

	return &resolver.Response{Status: resp.StatusCode, Header: out, Body: body}, nil
}

func (c *swiftCall) putObject(req *resolver.Request) (*resolver.Response, error) {
	header := http.Header{}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		header.Set("Content-Type", ct)
	}
	for k, v := range req.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-meta-") {
			header["X-Object-Meta-"+k[len("X-Amz-Meta-"):]] = v
		}
	}

	resp, err := c.do(http.MethodPut, c.containerURL(req.URL.ObjectKey), header, req.Body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapObjectStatus(resp.StatusCode)
	}

	etag, err := requireHeader(resp.Header, "Etag")
	if err != nil {
		return nil, err
	}

	out := http.Header{}
	out.Set("ETag", `"`+strings.Trim(etag, `"`)+`"`)
	out.Set("Content-Length", strconv.Itoa(len(req.Body)))
	out.Set("x-amz-request-id", resp.Header.Get("X-Trans-Id"))

	c.resolver.Audit.RecordPut(c.bucket.BucketName, req.URL.ObjectKey, int64(len(req.Body)), req.Header.Get("Content-Type"), false)

	return &resolver.Response{Status: http.StatusOK, Header: out}, nil
}

func (c *swiftCall) deleteObject(req *resolver.Request) (*resolver.Response, error) {
	resp, err := c.do(http.MethodDelete, c.containerURL(req.URL.ObjectKey), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return nil, mapObjectStatus(resp.StatusCode)
	}

	c.resolver.Audit.RecordDelete(c.bucket.BucketName, req.URL.ObjectKey)
	return &resolver.Response{Status: http.StatusNoContent}, nil
}

// copyObject implements spec §4.6.3's CopyObject row: a Swift PUT with
// X-Copy-From, within the bucket's own configured container — Herald
// does not support cross-bucket/cross-backend copy, matching spec §1's
// "not a storage engine" scope.
func (c *swiftCall) copyObject(req *resolver.Request) (*resolver.Response, error) {
	src := req.Header.Get("X-Amz-Copy-Source")
	src = strings.TrimPrefix(src, "/")
	parts := strings.SplitN(src, "/", 2)
	if len(parts) != 2 {
		return nil, herr.ErrInvalidRequest
	}
	srcKey := parts[1]

	header := http.Header{}
	header.Set("X-Copy-From", "/"+c.cfg.Container+"/"+srcKey)
	header.Set("Content-Length", "0")

	resp, err := c.do(http.MethodPut, c.containerURL(req.URL.ObjectKey), header, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapObjectStatus(resp.StatusCode)
	}

	etag, err := requireHeader(resp.Header, "Etag")
	if err != nil {
		return nil, err
	}

	body := copyObjectResultXML(etag, time.Now().UTC())

	c.resolver.Audit.RecordPut(c.bucket.BucketName, req.URL.ObjectKey, 0, "", false)

	out := http.Header{}
	out.Set("Content-Type", "application/xml")
	return &resolver.Response{Status: http.StatusOK, Header: out, Body: body}, nil
}

func toRFC1123(swiftLastModified string) string {
	if t, err := time.Parse(http.TimeFormat, swiftLastModified); err == nil {
		return t.Format(http.TimeFormat)
	}
	if t, err := time.Parse(time.RFC1123, swiftLastModified); err == nil {
		return t.Format(http.TimeFormat)
	}
	return swiftLastModified
}

