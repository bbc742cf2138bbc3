package registry

import (
	"net"
	"testing"

	"github.com/starburst997/herald/internal/config"
)

func TestBuildRejectsUnknownBackend(t *testing.T) {
	fc := &config.FileConfig{
		Backends: map[string]config.BackendDef{"b1": {Protocol: "s3"}},
		Buckets: map[string]config.BucketDef{
			"my-bucket": {Backend: "does-not-exist"},
		},
	}
	if _, err := Build(fc); err == nil {
		t.Fatal("expected error for unknown backend reference")
	}
}

func TestBuildRejectsUnknownReplicaBackend(t *testing.T) {
	fc := &config.FileConfig{
		Backends: map[string]config.BackendDef{"b1": {Protocol: "s3"}},
		Buckets: map[string]config.BucketDef{
			"my-bucket": {
				Backend: "b1",
				Replicas: []config.ReplicaDef{
					{Name: "r1", Backend: "missing"},
				},
			},
		},
	}
	if _, err := Build(fc); err == nil {
		t.Fatal("expected error for unknown replica backend reference")
	}
}

func TestBuildPopulatesClientCredentialsAndReplicas(t *testing.T) {
	fc := &config.FileConfig{
		TrustProxy:   true,
		TrustedCIDRs: []string{"10.0.0.0/8"},
		Backends: map[string]config.BackendDef{
			"primary": {Protocol: "s3"},
			"mirror":  {Protocol: "swift"},
		},
		Buckets: map[string]config.BucketDef{
			"my-bucket": {
				Backend:               "primary",
				ClientAccessKeyID:     "AKID",
				ClientSecretAccessKey: "SECRET",
				Endpoint:              "https://s3.example.com",
				Bucket:                "my-bucket",
				Replicas: []config.ReplicaDef{
					{Name: "swift-mirror", Backend: "mirror", AuthURL: "https://keystone.example.com", Container: "my-bucket"},
				},
			},
		},
	}

	reg, err := Build(fc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b, ok := reg.Lookup("my-bucket")
	if !ok {
		t.Fatal("expected bucket to be registered")
	}
	if b.ClientCredentials.AccessKeyID != "AKID" || b.ClientCredentials.SecretAccessKey != "SECRET" {
		t.Fatalf("ClientCredentials not populated: %+v", b.ClientCredentials)
	}
	if !b.HasReplicas() || len(b.Replicas) != 1 || b.Replicas[0].Name != "swift-mirror" {
		t.Fatalf("replicas not populated: %+v", b.Replicas)
	}
	if b.Type != S3BucketConfig {
		t.Fatalf("bucket type = %v, want S3BucketConfig", b.Type)
	}
	if b.Replicas[0].Type != ReplicaSwiftConfig {
		t.Fatalf("replica type = %v, want ReplicaSwiftConfig", b.Replicas[0].Type)
	}

	if !reg.TrustProxy() {
		t.Fatal("expected TrustProxy to be true")
	}
	if !reg.TrustedCIDRContains(net.ParseIP("10.1.2.3")) {
		t.Fatal("expected trusted CIDR to contain 10.1.2.3")
	}
	if reg.TrustedCIDRContains(net.ParseIP("192.168.1.1")) {
		t.Fatal("expected trusted CIDR to reject 192.168.1.1")
	}
}

func TestReplicaAsBucketMarksIsReplica(t *testing.T) {
	rc := ReplicaConfig{Type: ReplicaS3Config, Name: "r1", S3: &S3Config{Bucket: "b"}}
	b := ReplicaAsBucket("my-bucket", rc)
	if !b.IsReplica {
		t.Fatal("expected IsReplica to be true")
	}
	if b.Type != S3BucketConfig || b.S3 == nil {
		t.Fatalf("replica bucket not wired correctly: %+v", b)
	}
}
