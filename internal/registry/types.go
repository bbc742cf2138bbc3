// Package registry holds Herald's boot-time bucket/backend configuration
// model (spec §3) and the read-only lookup built from it (spec §4.3).
package registry

// Protocol identifies which wire protocol a backend speaks.
type Protocol string

const (
	ProtocolS3    Protocol = "s3"
	ProtocolSwift Protocol = "swift"
)

// BackendDef is an immutable named backend declaration.
type BackendDef struct {
	Name     string
	Protocol Protocol
}

// Credentials holds the access-key pair used to sign outbound S3 calls.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// S3Config is a bucket-level binding to an S3-speaking backend. Several
// buckets may share one endpoint but each carries its own upstream
// bucket name.
type S3Config struct {
	Endpoint       string
	Region         string
	Credentials    Credentials
	ForcePathStyle bool
	Bucket         string

	// MaxRequestsPerSecond bounds outbound calls to this endpoint
	// (internal/ratelimit); zero means unlimited.
	MaxRequestsPerSecond float64
}

// SwiftCredentials holds a Keystone v3 password identity.
type SwiftCredentials struct {
	Username         string
	Password         string
	ProjectName      string
	UserDomainName   string
	ProjectDomainName string
}

// SwiftConfig is a bucket-level binding to an OpenStack Swift backend.
type SwiftConfig struct {
	AuthURL     string
	Region      string
	Container   string
	Credentials SwiftCredentials

	MaxRequestsPerSecond float64
}

// ReplicaType tags which config variant a ReplicaConfig carries.
type ReplicaType string

const (
	ReplicaS3Config    ReplicaType = "ReplicaS3Config"
	ReplicaSwiftConfig ReplicaType = "ReplicaSwiftConfig"
)

// ReplicaConfig is one ordered mirror target for a bucket.
type ReplicaConfig struct {
	Type ReplicaType
	Name string

	S3    *S3Config
	Swift *SwiftConfig
}

// BucketType tags which config variant a Bucket's primary carries.
type BucketType string

const (
	S3BucketConfig    BucketType = "S3BucketConfig"
	SwiftBucketConfig BucketType = "SwiftBucketConfig"
)

// Bucket is one registry entry: a client-visible bucket name bound to a
// primary backend plus an ordered list of replicas.
type Bucket struct {
	BucketName string
	Type       BucketType

	// ClientCredentials is the inbound SigV4 credential pair clients
	// present against this bucket, independent of the backend's own
	// (S3Config.Credentials or SwiftConfig.Credentials) identity.
	ClientCredentials Credentials

	S3    *S3Config
	Swift *SwiftConfig

	Replicas []ReplicaConfig

	// IsReplica marks a Bucket record used only as a replica's entry
	// point during failover re-entry, to suppress further fan-out
	// (spec §4.7). See DESIGN.md Open Question 1 for why this does not
	// also block direct client access.
	IsReplica bool
}

// HasReplicas reports whether b has at least one configured replica.
func (b *Bucket) HasReplicas() bool { return len(b.Replicas) > 0 }
