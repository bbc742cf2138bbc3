package swiftresolver

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/starburst997/herald/internal/herr"
	"github.com/starburst997/herald/internal/resolver"
)

// bulkDeleteResponse is Swift's bulk-delete JSON body.
type bulkDeleteResponse struct {
	NumberDeleted int                 `json:"Number Deleted"`
	NumberNotFound int                `json:"Number Not Found"`
	Errors        [][]string          `json:"Errors"`
	ResponseStatus string             `json:"Response Status"`
}

// deleteObjects implements spec §4.6.5: a manually framed HTTP/1.1 POST
// straight over a TLS connection, bypassing net/http's client because
// Swift's bulk-delete endpoint is sensitive to header ordering/encoding
// that a high-level client normalizes away.
func (c *swiftCall) deleteObjects(req *resolver.Request) (*resolver.Response, error) {
	keys, err := parseDeleteKeys(req.Body)
	if err != nil {
		return nil, herr.ErrMalformedXML
	}

	storageURL, err := url.Parse(c.storageURL)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}

	host := storageURL.Hostname()
	port := storageURL.Port()
	if port == "" {
		port = "443"
	}

	var payload strings.Builder
	for _, k := range keys {
		payload.WriteString(c.cfg.Container)
		payload.WriteString("/")
		payload.WriteString(k)
		payload.WriteString("\n")
	}
	bodyBytes := []byte(payload.String())

	status, respBody, err := c.rawBulkDeleteRequest(host, port, storageURL.Path+"?bulk-delete", bodyBytes)
	if err != nil {
		return nil, herr.Wrap(herr.ErrInternalError, err)
	}
	if status >= 400 {
		return nil, herr.New("HeraldError", 502, fmt.Sprintf("swift bulk-delete returned %d", status))
	}

	var parsed bulkDeleteResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, herr.New("HeraldError", 502, "failed to decode swift bulk-delete response")
	}

	failed := make(map[string]string)
	for _, e := range parsed.Errors {
		if len(e) < 2 {
			continue
		}
		failed[strings.TrimPrefix(e[0], "/"+c.cfg.Container+"/")] = e[1]
	}

	result := deleteResult{}
	for _, k := range keys {
		if code, ok := failed[k]; ok {
			result.Error = append(result.Error, deleteErrorEntry{Key: k, Code: mapBulkDeleteCode(code), Message: code})
		} else {
			result.Deleted = append(result.Deleted, deletedEntry{Key: k})
		}
	}

	return &resolver.Response{Status: 200, Body: marshalXML(result)}, nil
}

func mapBulkDeleteCode(swiftCode string) string {
	switch {
	case strings.Contains(swiftCode, "404"):
		return "NoSuchKey"
	case strings.Contains(swiftCode, "403"):
		return "AccessDenied"
	default:
		return "InternalError"
	}
}

// parseDeleteKeys extracts the object keys from an S3 multi-object
// delete XML payload's <Object><Key> elements, tolerating the minimal
// shape Herald's own clients are expected to send.
func parseDeleteKeys(body []byte) ([]string, error) {
	type object struct {
		Key string `xml:"Key"`
	}
	type deleteRequest struct {
		Object []object `xml:"Object"`
	}
	var parsed deleteRequest
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(parsed.Object))
	for _, o := range parsed.Object {
		keys = append(keys, o.Key)
	}
	return keys, nil
}

func (c *swiftCall) rawBulkDeleteRequest(host, port, path string, body []byte) (int, []byte, error) {
	conn, err := tls.Dial("tcp", host+":"+port, &tls.Config{ServerName: host})
	if err != nil {
		return 0, nil, err
	}
	defer conn.Close()

	var req strings.Builder
	req.WriteString("POST " + path + " HTTP/1.1\r\n")
	req.WriteString("Host: " + host + "\r\n")
	req.WriteString("X-Auth-Token: " + c.token.AuthToken + "\r\n")
	req.WriteString("Content-Type: text/plain\r\n")
	req.WriteString("Accept: application/json\r\n")
	req.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	req.WriteString("Connection: close\r\n\r\n")

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return 0, nil, err
	}
	if _, err := conn.Write(body); err != nil {
		return 0, nil, err
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return 0, nil, err
	}

	status, err := parseStatusLine(statusLine)
	if err != nil {
		return 0, nil, err
	}

	headerBytes, respBody, err := readRawResponse(reader)
	if err != nil {
		return 0, nil, err
	}
	respBody = stripChunkedEncoding(headerBytes, respBody)

	return status, respBody, nil
}

func parseStatusLine(line string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 {
		return 0, fmt.Errorf("swiftresolver: malformed status line %q", line)
	}
	return strconv.Atoi(parts[1])
}

// readRawResponse reads the remaining header lines (returned as raw
// text for the chunked-encoding check) plus the full body until EOF.
func readRawResponse(reader *bufio.Reader) (headers string, body []byte, err error) {
	var headerBuf strings.Builder
	for {
		line, rerr := reader.ReadString('\n')
		headerBuf.WriteString(line)
		if rerr != nil {
			return headerBuf.String(), nil, rerr
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	var bodyBuf strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			bodyBuf.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return headerBuf.String(), []byte(bodyBuf.String()), nil
}

// stripChunkedEncoding removes HTTP/1.1 chunk-size framing if the
// response declared Transfer-Encoding: chunked (spec §4.6.5 step 3).
func stripChunkedEncoding(headers string, body []byte) []byte {
	if !strings.Contains(strings.ToLower(headers), "transfer-encoding: chunked") {
		return body
	}

	var out strings.Builder
	remaining := string(body)
	for {
		remaining = strings.TrimLeft(remaining, "\r\n")
		idx := strings.Index(remaining, "\r\n")
		if idx == -1 {
			break
		}
		sizeHex := remaining[:idx]
		size, err := strconv.ParseInt(strings.TrimSpace(sizeHex), 16, 64)
		if err != nil || size == 0 {
			break
		}
		remaining = remaining[idx+2:]
		if int64(len(remaining)) < size {
			break
		}
		out.WriteString(remaining[:size])
		remaining = remaining[size:]
	}
	return []byte(out.String())
}
