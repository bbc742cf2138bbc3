package swiftresolver

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/starburst997/herald/internal/resolver"
)

// pseudoEndpoint implements spec §4.6.2: synthesize a canned S3 XML
// body for the subresources S3 clients probe (ACL, versioning,
// lifecycle, CORS, replication, object-lock, logging, website,
// accelerate, payment, tagging, policy, encryption) so clients built
// against the real S3 API don't fail schema validation against a
// backend that has no equivalent concept. ACL and encryption additionally
// reflect real container metadata read with a HEAD on the container;
// policy and tagging return fixed empty bodies and read no metadata.
func (c *swiftCall) pseudoEndpoint(req *resolver.Request) (*resolver.Response, error) {
	q := req.URL.QueryParams

	switch {
	case has(q, "acl"):
		return c.containerACL()
	case has(q, "policy"):
		return c.containerPolicy()
	case has(q, "tagging"):
		return xmlResponse(taggingResult{})
	case has(q, "encryption"):
		return c.containerEncryption()
	case has(q, "versioning"):
		return xmlResponse(versioningConfiguration{})
	case has(q, "lifecycle"):
		return xmlResponse(lifecycleConfiguration{})
	case has(q, "cors"):
		return xmlResponse(corsConfiguration{})
	case has(q, "replication"):
		return xmlResponse(replicationConfiguration{})
	case has(q, "object-lock") || has(q, "objectLock"):
		return xmlResponse(objectLockConfiguration{})
	case has(q, "logging"):
		return xmlResponse(bucketLoggingStatus{})
	case has(q, "website"):
		return xmlResponse(websiteConfiguration{})
	case has(q, "accelerate"):
		return xmlResponse(accelerateConfiguration{})
	case has(q, "requestPayment"):
		return xmlResponse(requestPaymentConfiguration{Payer: "BucketOwner"})
	case has(q, "notification"):
		return xmlResponse(notificationConfiguration{})
	case has(q, "publicAccessBlock"):
		return xmlResponse(publicAccessBlockConfiguration{})
	default:
		return xmlResponse(emptyConfiguration{})
	}
}

func has(q map[string][]string, key string) bool {
	_, ok := q[key]
	return ok
}

func xmlResponse(v interface{}) (*resolver.Response, error) {
	out := http.Header{}
	out.Set("Content-Type", "application/xml")
	return &resolver.Response{Status: http.StatusOK, Header: out, Body: marshalXML(v)}, nil
}

func (c *swiftCall) containerACL() (*resolver.Response, error) {
	resp, err := c.do(http.MethodHead, c.containerURL(""), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	read := resp.Header.Get("X-Container-Read")
	write := resp.Header.Get("X-Container-Write")

	grants := []grant{{Permission: "FULL_CONTROL"}}
	if strings.Contains(read, ".r:*") {
		grants = append(grants, grant{Permission: "READ", GranteeURI: allUsersGroup})
	}
	if write != "" {
		grants = append(grants, grant{Permission: "WRITE", GranteeURI: allUsersGroup})
	}

	return xmlResponse(accessControlPolicy{AccessControlList: accessControlList{Grant: grants}})
}

func (c *swiftCall) containerPolicy() (*resolver.Response, error) {
	return xmlResponse(emptyConfiguration{})
}

func (c *swiftCall) containerEncryption() (*resolver.Response, error) {
	resp, err := c.do(http.MethodHead, c.containerURL(""), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	algo := resp.Header.Get("X-Container-Meta-Encryption-Type")
	if algo == "" {
		algo = "AES256"
	}
	return xmlResponse(serverSideEncryptionConfiguration{
		Rule: sseRule{ApplyServerSideEncryptionByDefault: sseDefault{SSEAlgorithm: algo}},
	})
}

const allUsersGroup = "http://acs.amazonaws.com/groups/global/AllUsers"

type grant struct {
	GranteeURI string `xml:"Grantee>URI,omitempty"`
	Permission string `xml:"Permission"`
}

type accessControlList struct {
	Grant []grant `xml:"Grant"`
}

type accessControlPolicy struct {
	XMLName           xml.Name          `xml:"AccessControlPolicy"`
	AccessControlList accessControlList `xml:"AccessControlList"`
}

type taggingResult struct {
	XMLName xml.Name `xml:"Tagging"`
}

type versioningConfiguration struct {
	XMLName xml.Name `xml:"VersioningConfiguration"`
}

type lifecycleConfiguration struct {
	XMLName xml.Name `xml:"LifecycleConfiguration"`
}

type corsConfiguration struct {
	XMLName xml.Name `xml:"CORSConfiguration"`
}

type replicationConfiguration struct {
	XMLName xml.Name `xml:"ReplicationConfiguration"`
}

type objectLockConfiguration struct {
	XMLName xml.Name `xml:"ObjectLockConfiguration"`
}

type bucketLoggingStatus struct {
	XMLName xml.Name `xml:"BucketLoggingStatus"`
}

type websiteConfiguration struct {
	XMLName xml.Name `xml:"WebsiteConfiguration"`
}

type accelerateConfiguration struct {
	XMLName xml.Name `xml:"AccelerateConfiguration"`
}

type requestPaymentConfiguration struct {
	XMLName xml.Name `xml:"RequestPaymentConfiguration"`
	Payer   string    `xml:"Payer"`
}

type notificationConfiguration struct {
	XMLName xml.Name `xml:"NotificationConfiguration"`
}

type publicAccessBlockConfiguration struct {
	XMLName xml.Name `xml:"PublicAccessBlockConfiguration"`
}

type emptyConfiguration struct {
	XMLName xml.Name `xml:"Configuration"`
}

type sseDefault struct {
	SSEAlgorithm string `xml:"SSEAlgorithm"`
}

type sseRule struct {
	ApplyServerSideEncryptionByDefault sseDefault `xml:"ApplyServerSideEncryptionByDefault"`
}

type serverSideEncryptionConfiguration struct {
	XMLName xml.Name `xml:"ServerSideEncryptionConfiguration"`
	Rule    sseRule  `xml:"Rule"`
}
