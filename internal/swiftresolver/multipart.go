package swiftresolver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/resolver"
)

// sessionPart is one uploaded part's recorded metadata (spec §4.6.4
// state machine's parts map).
type sessionPart struct {
	PartNumber   int    `json:"partNumber"`
	ETag         string `json:"eTag"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

// multipartSession is the in-container JSON file simulating S3 multipart
// state over Swift SLO (spec §4.6.4).
type multipartSession struct {
	UploadId  string        `json:"uploadId"`
	ObjectKey string        `json:"objectKey"`
	CreatedAt time.Time     `json:"createdAt"`
	Parts     []sessionPart `json:"parts"`
}

func sessionPath(uploadID string) string {
	return ".herald/multipart/" + uploadID + ".json"
}

func (c *swiftCall) createMultipartUpload(req *resolver.Request) (*resolver.Response, error) {
	uploadID := uuid.NewString()
	session := multipartSession{UploadId: uploadID, ObjectKey: req.URL.ObjectKey, CreatedAt: time.Now().UTC()}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := c.do(http.MethodPut, c.containerURL(sessionPath(uploadID)), header, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapObjectStatus(resp.StatusCode)
	}

	return xmlResponse(initiateMultipartUploadResult{
		Bucket:   c.bucket.BucketName,
		Key:      req.URL.ObjectKey,
		UploadId: uploadID,
	})
}

func (c *swiftCall) getSession(uploadID string) (*multipartSession, bool, error) {
	resp, err := c.do(http.MethodGet, c.containerURL(sessionPath(uploadID)), nil, nil)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 400 {
		return nil, false, mapObjectStatus(resp.StatusCode)
	}

	var session multipartSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, false, herr.New("HeraldError", http.StatusBadGateway, "failed to decode multipart session")
	}
	return &session, true, nil
}

func (c *swiftCall) putSession(session *multipartSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return herr.Wrap(herr.ErrInternalError, err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := c.do(http.MethodPut, c.containerURL(sessionPath(session.UploadId)), header, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return mapObjectStatus(resp.StatusCode)
	}
	return nil
}

func (c *swiftCall) uploadPart(req *resolver.Request) (*resolver.Response, error) {
	uploadID := firstOf(req.URL.QueryParams, "uploadId")
	partNumberStr := firstOf(req.URL.QueryParams, "partNumber")
	partNumber, err := strconv.Atoi(partNumberStr)
	if err != nil {
		return nil, herr.ErrInvalidRequest
	}

	partPath := fmt.Sprintf("%s/%d", req.URL.ObjectKey, partNumber)
	resp, err := c.do(http.MethodPut, c.containerURL(partPath), nil, req.Body)
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

	session, ok, err := c.getSession(uploadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, herr.ErrNoSuchUpload
	}

	replaced := false
	for i := range session.Parts {
		if session.Parts[i].PartNumber == partNumber {
			session.Parts[i] = sessionPart{PartNumber: partNumber, ETag: etag, Size: int64(len(req.Body)), LastModified: time.Now().UTC().Format(time.RFC3339)}
			replaced = true
			break
		}
	}
	if !replaced {
		session.Parts = append(session.Parts, sessionPart{PartNumber: partNumber, ETag: etag, Size: int64(len(req.Body)), LastModified: time.Now().UTC().Format(time.RFC3339)})
	}

	if err := c.putSession(session); err != nil {
		return nil, err
	}

	out := http.Header{}
	out.Set("ETag", `"`+trimQuotes(etag)+`"`)
	return &resolver.Response{Status: http.StatusOK, Header: out}, nil
}

// completeMultipartUpload implements spec §4.6.4's Complete state
// transition, including the idempotent-replay shortcut when the SLO
// manifest already exists (DESIGN.md Open Question 3: the SLO ETag
// Swift returns for the manifest PUT is passed through to the client
// as-is, without reformatting to S3's multipart-completion ETag shape).
func (c *swiftCall) completeMultipartUpload(req *resolver.Request) (*resolver.Response, error) {
	uploadID := firstOf(req.URL.QueryParams, "uploadId")

	session, ok, err := c.getSession(uploadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		head, herr2 := c.do(http.MethodHead, c.containerURL(req.URL.ObjectKey), nil, nil)
		if herr2 == nil {
			defer head.Body.Close()
			if head.StatusCode == http.StatusOK {
				etag := head.Header.Get("Etag")
				return xmlResponse(completeMultipartUploadResult{
					Location: c.cfg.Region,
					Bucket:   c.bucket.BucketName,
					Key:      req.URL.ObjectKey,
					ETag:     `"` + trimQuotes(etag) + `"`,
				})
			}
		}
		return nil, herr.ErrNoSuchUpload
	}

	if len(session.Parts) == 0 {
		return nil, herr.ErrMalformedXML
	}

	sorted := append([]sessionPart(nil), session.Parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	type sloEntry struct {
		Path      string `json:"path"`
		ETag      string `json:"etag"`
		SizeBytes int64  `json:"size_bytes"`
	}
	manifest := make([]sloEntry, 0, len(sorted))
	for _, p := range sorted {
		manifest = append(manifest, sloEntry{
			Path:      "/" + c.cfg.Container + "/" + req.URL.ObjectKey + "/" + strconv.Itoa(p.PartNumber),
			ETag:      trimQuotes(p.ETag),
			SizeBytes: p.Size,
		})
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	resp, err := c.do(http.MethodPut, c.containerURL(req.URL.ObjectKey)+"?multipart-manifest=put", header, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, mapObjectStatus(resp.StatusCode)
	}

	sloETag := resp.Header.Get("Etag")

	sessionDel, _ := c.do(http.MethodDelete, c.containerURL(sessionPath(uploadID)), nil, nil)
	if sessionDel != nil {
		sessionDel.Body.Close()
	}

	var totalSize int64
	for _, p := range sorted {
		totalSize += p.Size
	}
	c.resolver.Audit.RecordPut(c.bucket.BucketName, req.URL.ObjectKey, totalSize, "", false)

	return xmlResponse(completeMultipartUploadResult{
		Location: c.cfg.Region,
		Bucket:   c.bucket.BucketName,
		Key:      req.URL.ObjectKey,
		ETag:     `"` + trimQuotes(sloETag) + `"`,
	})
}

func (c *swiftCall) abortMultipartUpload(req *resolver.Request) (*resolver.Response, error) {
	uploadID := firstOf(req.URL.QueryParams, "uploadId")

	sessionResp, _ := c.do(http.MethodDelete, c.containerURL(sessionPath(uploadID)), nil, nil)
	if sessionResp != nil {
		sessionResp.Body.Close()
	}

	listURL := c.containerURL("") + "?format=json&prefix=" + req.URL.ObjectKey + "/"
	listResp, err := c.do(http.MethodGet, listURL, nil, nil)
	if err == nil {
		defer listResp.Body.Close()
		if listResp.StatusCode == http.StatusOK {
			var entries []swiftListingEntry
			if json.NewDecoder(listResp.Body).Decode(&entries) == nil && len(entries) > 0 {
				c.bulkDeletePaths(entries)
			}
		}
	}

	return &resolver.Response{Status: http.StatusNoContent}, nil
}

// bulkDeletePaths best-effort deletes part objects after an abort;
// failures are swallowed per spec §4.6.4 "best-effort".
func (c *swiftCall) bulkDeletePaths(entries []swiftListingEntry) {
	var body strings.Builder
	for _, e := range entries {
		body.WriteString(c.cfg.Container)
		body.WriteString("/")
		body.WriteString(e.Name)
		body.WriteString("\n")
	}
	storageURL := c.storageURL
	u, err := parseHostPort(storageURL)
	if err != nil {
		return
	}
	_, _, _ = c.rawBulkDeleteRequest(u.host, u.port, u.path+"?bulk-delete", []byte(body.String()))
}

type hostPortPath struct {
	host string
	port string
	path string
}

func parseHostPort(rawURL string) (*hostPortPath, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return &hostPortPath{host: u.Hostname(), port: port, path: u.Path}, nil
}

func (c *swiftCall) listMultipartUploads(req *resolver.Request) (*resolver.Response, error) {
	q := req.URL.QueryParams
	prefix := firstOf(q, "prefix")
	keyMarker := firstOf(q, "key-marker")
	uploadIDMarker := firstOf(q, "upload-id-marker")
	delimiter := firstOf(q, "delimiter")
	maxUploads := 1000
	if mu := firstOf(q, "max-uploads"); mu != "" {
		if n, err := strconv.Atoi(mu); err == nil && n > 0 {
			maxUploads = n
		}
	}

	listURL := c.containerURL("") + "?format=json&prefix=.herald/multipart/"
	resp, err := c.do(http.MethodGet, listURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []swiftListingEntry
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return nil, herr.New("HeraldError", http.StatusBadGateway, "failed to decode swift listing")
		}
	}

	var sessions []multipartSession
	for _, e := range entries {
		if e.Subdir != "" {
			continue
		}
		sr, err := c.do(http.MethodGet, c.containerURL(e.Name), nil, nil)
		if err != nil {
			continue
		}
		var s multipartSession
		decodeErr := json.NewDecoder(sr.Body).Decode(&s)
		sr.Body.Close()
		if decodeErr != nil {
			continue
		}
		if prefix != "" && !strings.HasPrefix(s.ObjectKey, prefix) {
			continue
		}
		if keyMarker != "" && s.ObjectKey < keyMarker {
			continue
		}
		if keyMarker != "" && s.ObjectKey == keyMarker && uploadIDMarker != "" && s.UploadId <= uploadIDMarker {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ObjectKey != sessions[j].ObjectKey {
			return sessions[i].ObjectKey < sessions[j].ObjectKey
		}
		return sessions[i].UploadId < sessions[j].UploadId
	})

	truncated := len(sessions) > maxUploads
	if truncated {
		sessions = sessions[:maxUploads]
	}

	result := listMultipartUploadsResult{
		Bucket:         c.bucket.BucketName,
		KeyMarker:      keyMarker,
		UploadIdMarker: uploadIDMarker,
		MaxUploads:     maxUploads,
		IsTruncated:    truncated,
	}
	for _, s := range sessions {
		result.Upload = append(result.Upload, multipartUploadEntry{Key: s.ObjectKey, UploadId: s.UploadId})
	}
	if truncated && len(sessions) > 0 {
		last := sessions[len(sessions)-1]
		result.NextKeyMarker = last.ObjectKey
		result.NextUploadIdMarker = last.UploadId
	}
	if delimiter != "" {
		result.CommonPrefixes = nil
	}

	return xmlResponse(result)
}

func (c *swiftCall) listParts(req *resolver.Request) (*resolver.Response, error) {
	uploadID := firstOf(req.URL.QueryParams, "uploadId")

	session, ok, err := c.getSession(uploadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, herr.ErrNoSuchUpload
	}

	partNumberMarker := 0
	if pm := firstOf(req.URL.QueryParams, "part-number-marker"); pm != "" {
		if n, err := strconv.Atoi(pm); err == nil {
			partNumberMarker = n
		}
	}
	maxParts := 1000
	if mp := firstOf(req.URL.QueryParams, "max-parts"); mp != "" {
		if n, err := strconv.Atoi(mp); err == nil && n > 0 {
			maxParts = n
		}
	}

	sorted := append([]sessionPart(nil), session.Parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var filtered []sessionPart
	for _, p := range sorted {
		if p.PartNumber > partNumberMarker {
			filtered = append(filtered, p)
		}
	}

	truncated := len(filtered) > maxParts
	if truncated {
		filtered = filtered[:maxParts]
	}

	result := listPartsResult{
		Bucket:           c.bucket.BucketName,
		Key:              req.URL.ObjectKey,
		UploadId:         uploadID,
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
		IsTruncated:      truncated,
	}
	for _, p := range filtered {
		result.Part = append(result.Part, partEntry{
			PartNumber:   p.PartNumber,
			ETag:         `"` + trimQuotes(p.ETag) + `"`,
			Size:         p.Size,
			LastModified: p.LastModified,
		})
	}
	if truncated && len(filtered) > 0 {
		result.NextPartNumberMarker = filtered[len(filtered)-1].PartNumber
	}

	return xmlResponse(result)
}
