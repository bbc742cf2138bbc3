// Package config loads and validates Herald's YAML configuration file
// (spec §6 "Configuration"). The teacher configures itself entirely from
// environment variables; Herald's bucket/backend/replica fan-out needs a
// richer schema, so this is new code grounded on the YAML config layers
// seen across the pack (PonchoAiFramework, FairForge-vaultaire,
// poyhsiao-memoNexus all decode config with gopkg.in/yaml.v3).
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendDef is the raw YAML shape of one named backend declaration.
type BackendDef struct {
	Protocol string `yaml:"protocol"`
}

// ReplicaDef is the raw YAML shape of one bucket's replica entry. It
// carries both S3 and Swift fields; exactly one set must be populated,
// discriminated by the referenced backend's protocol.
type ReplicaDef struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`

	// S3 fields
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	AccessKeyID    string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	Bucket         string `yaml:"bucket"`

	// Swift fields
	AuthURL           string `yaml:"auth_url"`
	Container         string `yaml:"container"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ProjectName       string `yaml:"project_name"`
	UserDomainName    string `yaml:"user_domain_name"`
	ProjectDomainName string `yaml:"project_domain_name"`

	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`
}

// BucketDef is the raw YAML shape of one client-visible bucket.
type BucketDef struct {
	Backend string `yaml:"backend"`

	// ClientAccessKeyID/ClientSecretAccessKey is the credential pair
	// inbound clients sign requests with against this bucket's
	// virtual-hosted or path-style name — independent of whichever
	// credential pair Herald itself uses to authenticate to the
	// backend (spec §4.1 verifies "Herald's own records", not the
	// backend's identity, since a Swift-backed bucket has no SigV4
	// concept of its own).
	ClientAccessKeyID     string `yaml:"client_access_key_id"`
	ClientSecretAccessKey string `yaml:"client_secret_access_key"`

	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	Bucket          string `yaml:"bucket"`

	AuthURL           string `yaml:"auth_url"`
	Container         string `yaml:"container"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ProjectName       string `yaml:"project_name"`
	UserDomainName    string `yaml:"user_domain_name"`
	ProjectDomainName string `yaml:"project_domain_name"`

	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`

	Replicas []ReplicaDef `yaml:"replicas"`
}

// FileConfig is the root YAML document shape (spec §6).
type FileConfig struct {
	Backends map[string]BackendDef `yaml:"backends"`
	Buckets  map[string]BucketDef  `yaml:"buckets"`

	TrustProxy    bool     `yaml:"trust_proxy"`
	TrustedCIDRs  []string `yaml:"trusted_cidrs"`
}

// PodsConfig is the optional orchestration-peer document (pods.yaml).
// Herald only logs the peer count at boot; no component reads peer
// addresses beyond that (spec.md "Out of scope": CLI/orchestration).
type PodsConfig struct {
	Pods []string `yaml:"pods"`
}

// Load reads and parses the primary config file. It does not validate
// references between buckets and backends — that is registry.Build's job,
// so that "unknown backend reference" stays a registry-level error as
// spec §4.3 requires.
func Load(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadPods reads the optional pods.yaml. A missing file is not an error:
// orchestration peering is optional.
func LoadPods(path string) (*PodsConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &PodsConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var pods PodsConfig
	if err := yaml.Unmarshal(raw, &pods); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &pods, nil
}

// FromEnv resolves the config file path from CONFIG_FILE_PATH, falling
// back to HERALD_CONFIG_FILE_PATH (spec §6 names this exact variable),
// then to a local default — matching the teacher's getEnvOrDefault idiom.
func FromEnv() string {
	if v := os.Getenv("CONFIG_FILE_PATH"); v != "" {
		return v
	}
	if v := os.Getenv("HERALD_CONFIG_FILE_PATH"); v != "" {
		return v
	}
	return "./config.yaml"
}
