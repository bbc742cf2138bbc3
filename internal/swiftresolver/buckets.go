package swiftresolver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/resolver"
)

func (c *swiftCall) createBucket(req *resolver.Request) (*resolver.Response, error) {
	resp, err := c.do(http.MethodPut, c.containerURL(""), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapBucketStatus(resp.StatusCode, resolver.OpCreateBucket)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, herr.ErrInternalError
	}

	out := http.Header{}
	out.Set("Location", "/"+c.cfg.Container)
	out.Set("Content-Type", "application/xml")
	return &resolver.Response{Status: http.StatusOK, Header: out, Body: createBucketConfigurationXML(c.cfg.Container)}, nil
}

func (c *swiftCall) deleteBucket(req *resolver.Request) (*resolver.Response, error) {
	resp, err := c.do(http.MethodDelete, c.containerURL(""), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapBucketStatus(resp.StatusCode, resolver.OpDeleteBucket)
	}
	return &resolver.Response{Status: http.StatusNoContent}, nil
}

func (c *swiftCall) headBucket(req *resolver.Request) (*resolver.Response, error) {
	resp, err := c.do(http.MethodHead, c.containerURL(""), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapBucketStatus(resp.StatusCode, resolver.OpHeadBucket)
	}

	out := http.Header{}
	out.Set("x-amz-bucket-region", c.cfg.Region)
	out.Set("x-amz-bucket-location-type", "AvailabilityZone")
	out.Set("x-amz-bucket-location-name", c.cfg.Region)
	return &resolver.Response{Status: http.StatusOK, Header: out}, nil
}

type swiftListingEntry struct {
	Name         string `json:"name"`
	Subdir       string `json:"subdir"`
	Hash         string `json:"hash"`
	Bytes        int64  `json:"bytes"`
	ContentType  string `json:"content_type"`
	LastModified string `json:"last_modified"`
}

// listObjects implements spec §4.6.3's ListObjects row: a Swift JSON
// container listing translated into S3's ListBucketResult XML.
func (c *swiftCall) listObjects(req *resolver.Request) (*resolver.Response, error) {
	q := req.URL.QueryParams
	prefix := firstOf(q, "prefix")
	delimiter := firstOf(q, "delimiter")
	marker := firstOf(q, "marker")
	maxKeys := 1000
	if mk := firstOf(q, "max-keys"); mk != "" {
		if n, err := strconv.Atoi(mk); err == nil && n > 0 {
			maxKeys = n
		}
	}

	url := c.containerURL("") + "?format=json&limit=" + strconv.Itoa(maxKeys)
	if prefix != "" {
		url += "&prefix=" + prefix
	}
	if delimiter != "" {
		url += "&delimiter=" + delimiter
	}
	if marker != "" {
		url += "&marker=" + marker
	}

	resp, err := c.do(http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return c.emptyListing(prefix, marker, maxKeys), nil
	}
	if resp.StatusCode >= 400 {
		return nil, mapBucketStatus(resp.StatusCode, resolver.OpListObjects)
	}

	var entries []swiftListingEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, herr.New("HeraldError", http.StatusBadGateway, "failed to decode swift listing")
	}

	result := listBucketResult{
		Name:        c.bucket.BucketName,
		Prefix:      prefix,
		Marker:      marker,
		MaxKeys:     maxKeys,
		IsTruncated: len(entries) == maxKeys,
	}
	for _, e := range entries {
		if e.Subdir != "" {
			result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: e.Subdir})
			continue
		}
		result.Contents = append(result.Contents, listBucketContent{
			Key:          e.Name,
			LastModified: e.LastModified,
			ETag:         `"` + trimQuotes(e.Hash) + `"`,
			Size:         e.Bytes,
			StorageClass: "STANDARD",
		})
	}

	out := http.Header{}
	out.Set("Content-Type", "application/xml")
	return &resolver.Response{Status: http.StatusOK, Header: out, Body: marshalXML(result)}, nil
}

func (c *swiftCall) emptyListing(prefix, marker string, maxKeys int) *resolver.Response {
	out := http.Header{}
	out.Set("Content-Type", "application/xml")
	result := listBucketResult{Name: c.bucket.BucketName, Prefix: prefix, Marker: marker, MaxKeys: maxKeys}
	return &resolver.Response{Status: http.StatusOK, Header: out, Body: marshalXML(result)}
}

func firstOf(q map[string][]string, key string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
