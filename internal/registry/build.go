package registry

import (
	"fmt"
	"net"

	"github.com/starburst997/herald/internal/config"
)

// Registry is the read-only, O(1)-by-name bucket lookup built at boot
// (spec §4.3). It is never mutated after Build returns.
type Registry struct {
	buckets      map[string]*Bucket
	trustProxy   bool
	trustedCIDRs []*net.IPNet
}

// Lookup returns the bucket registered under name, if any.
func (r *Registry) Lookup(name string) (*Bucket, bool) {
	b, ok := r.buckets[name]
	return b, ok
}

// All returns every configured bucket, used by the front door's
// ListBuckets handler (spec §4.5 — Herald's bucket set is static boot
// config, not discovered from any one backend).
func (r *Registry) All() []*Bucket {
	out := make([]*Bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		out = append(out, b)
	}
	return out
}

// TrustProxy reports whether x-forwarded-host rewrites should be honored
// at all (spec §4.1).
func (r *Registry) TrustProxy() bool { return r.trustProxy }

// TrustedCIDRContains reports whether ip falls within a configured
// trusted-proxy CIDR.
func (r *Registry) TrustedCIDRContains(ip net.IP) bool {
	for _, n := range r.trustedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Build validates cfg and constructs the registry. Unknown backend
// references abort with a non-zero-worthy error (spec §4.3, §7 "Config
// fatal") — the caller (cmd/herald) is responsible for exiting on error.
func Build(cfg *config.FileConfig) (*Registry, error) {
	reg := &Registry{buckets: make(map[string]*Bucket)}

	for _, raw := range cfg.TrustedCIDRs {
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("registry: invalid trusted_cidrs entry %q: %w", raw, err)
		}
		reg.trustedCIDRs = append(reg.trustedCIDRs, n)
	}
	reg.trustProxy = cfg.TrustProxy

	for bucketName, def := range cfg.Buckets {
		backend, ok := cfg.Backends[def.Backend]
		if !ok {
			return nil, fmt.Errorf("registry: bucket %q references unknown backend %q", bucketName, def.Backend)
		}

		b := &Bucket{
			BucketName: bucketName,
			ClientCredentials: Credentials{
				AccessKeyID:     def.ClientAccessKeyID,
				SecretAccessKey: def.ClientSecretAccessKey,
			},
		}

		switch Protocol(backend.Protocol) {
		case ProtocolS3:
			b.Type = S3BucketConfig
			b.S3 = &S3Config{
				Endpoint:       def.Endpoint,
				Region:         def.Region,
				ForcePathStyle: def.ForcePathStyle,
				Bucket:         def.Bucket,
				Credentials: Credentials{
					AccessKeyID:     def.AccessKeyID,
					SecretAccessKey: def.SecretAccessKey,
				},
				MaxRequestsPerSecond: def.MaxRequestsPerSecond,
			}
		case ProtocolSwift:
			b.Type = SwiftBucketConfig
			b.Swift = &SwiftConfig{
				AuthURL:   def.AuthURL,
				Region:    def.Region,
				Container: def.Container,
				Credentials: SwiftCredentials{
					Username:          def.Username,
					Password:          def.Password,
					ProjectName:       def.ProjectName,
					UserDomainName:    def.UserDomainName,
					ProjectDomainName: def.ProjectDomainName,
				},
				MaxRequestsPerSecond: def.MaxRequestsPerSecond,
			}
		default:
			return nil, fmt.Errorf("registry: bucket %q backend %q has unknown protocol %q", bucketName, def.Backend, backend.Protocol)
		}

		for _, rdef := range def.Replicas {
			rbackend, ok := cfg.Backends[rdef.Backend]
			if !ok {
				return nil, fmt.Errorf("registry: bucket %q replica %q references unknown backend %q", bucketName, rdef.Name, rdef.Backend)
			}

			rc := ReplicaConfig{Name: rdef.Name}
			switch Protocol(rbackend.Protocol) {
			case ProtocolS3:
				rc.Type = ReplicaS3Config
				rc.S3 = &S3Config{
					Endpoint:       rdef.Endpoint,
					Region:         rdef.Region,
					ForcePathStyle: rdef.ForcePathStyle,
					Bucket:         rdef.Bucket,
					Credentials: Credentials{
						AccessKeyID:     rdef.AccessKeyID,
						SecretAccessKey: rdef.SecretAccessKey,
					},
					MaxRequestsPerSecond: rdef.MaxRequestsPerSecond,
				}
			case ProtocolSwift:
				rc.Type = ReplicaSwiftConfig
				rc.Swift = &SwiftConfig{
					AuthURL:   rdef.AuthURL,
					Region:    rdef.Region,
					Container: rdef.Container,
					Credentials: SwiftCredentials{
						Username:          rdef.Username,
						Password:          rdef.Password,
						ProjectName:       rdef.ProjectName,
						UserDomainName:    rdef.UserDomainName,
						ProjectDomainName: rdef.ProjectDomainName,
					},
					MaxRequestsPerSecond: rdef.MaxRequestsPerSecond,
				}
			default:
				return nil, fmt.Errorf("registry: bucket %q replica %q has unknown protocol %q", bucketName, rdef.Name, rbackend.Protocol)
			}
			b.Replicas = append(b.Replicas, rc)
		}

		reg.buckets[bucketName] = b
	}

	return reg, nil
}

// ReplicaAsBucket builds a synthetic Bucket record for recursive
// resolver re-entry during failover (spec §4.7, §9 "cyclic references").
// The returned Bucket has IsReplica=true so further fan-out is suppressed.
func ReplicaAsBucket(name string, r ReplicaConfig) *Bucket {
	b := &Bucket{BucketName: name, IsReplica: true}
	switch r.Type {
	case ReplicaS3Config:
		b.Type = S3BucketConfig
		b.S3 = r.S3
	case ReplicaSwiftConfig:
		b.Type = SwiftBucketConfig
		b.Swift = r.Swift
	}
	return b
}
