package httpserver

import (
	"encoding/xml"

	"github.com/starburst997/herald/internal/registry"
)

type bucketEntry struct {
	Name string `xml:"Name"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name      `xml:"ListAllMyBucketsResult"`
	Buckets []bucketEntry `xml:"Buckets>Bucket"`
}

func listAllMyBucketsResultXML(buckets []*registry.Bucket) []byte {
	result := listAllMyBucketsResult{}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, bucketEntry{Name: b.BucketName})
	}
	out, _ := xml.MarshalIndent(result, "", "  ")
	return append([]byte(xml.Header), out...)
}
