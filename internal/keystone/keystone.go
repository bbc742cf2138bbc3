// Package keystone caches OpenStack Identity v3 (Keystone) tokens per
// SwiftConfig identity (spec §3 KeystoneToken, §4.9). Concurrent
// acquisitions for the same identity are coalesced with
// golang.org/x/sync/singleflight so at most one token fetch is in flight
// per fingerprint at a time — generalizing the teacher's
// sync.RWMutex-guarded dbConnections cache (used there for per-bucket
// Postgres tables) into a fetch-on-miss, refresh-on-401 token cache.
package keystone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starburst997/herald/internal/metrics"
	"github.com/starburst997/herald/internal/registry"
)

// Token is one cached (storageUrl, token) pair for a Swift identity.
type Token struct {
	StorageURL string
	AuthToken  string
	AcquiredAt time.Time
	ExpiresAt  *time.Time
}

func (t *Token) expired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// Store is the process-wide Keystone token cache.
type Store struct {
	client *http.Client

	mu     sync.RWMutex
	tokens map[string]*Token

	group singleflight.Group
}

// New builds a Store using client for outbound identity calls.
func New(client *http.Client) *Store {
	return &Store{client: client, tokens: make(map[string]*Token)}
}

func fingerprint(cfg *registry.SwiftConfig) string {
	return fmt.Sprintf("%s|%s|%s|%s", cfg.AuthURL, cfg.Region, cfg.Credentials.ProjectName, cfg.Credentials.Username)
}

// Get returns a cached, non-expired token for cfg, acquiring one if
// necessary. Concurrent callers for the same cfg share a single
// in-flight request.
func (s *Store) Get(ctx context.Context, cfg *registry.SwiftConfig) (*Token, error) {
	fp := fingerprint(cfg)

	s.mu.RLock()
	tok, ok := s.tokens[fp]
	s.mu.RUnlock()
	if ok && !tok.expired() {
		return tok, nil
	}

	return s.refresh(ctx, cfg)
}

// Refresh forces a new token acquisition for cfg, used on a 401 from the
// Swift backend (spec §4.9 "refreshed on 401 or when expired").
func (s *Store) Refresh(ctx context.Context, cfg *registry.SwiftConfig) (*Token, error) {
	return s.refresh(ctx, cfg)
}

func (s *Store) refresh(ctx context.Context, cfg *registry.SwiftConfig) (*Token, error) {
	fp := fingerprint(cfg)

	v, err, _ := s.group.Do(fp, func() (interface{}, error) {
		tok, err := acquireToken(ctx, s.client, cfg)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.tokens[fp] = tok
		s.mu.Unlock()
		metrics.KeystoneTokenRefreshTotal.WithLabelValues(fp).Inc()
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

type authRequest struct {
	Auth authPayload `json:"auth"`
}

type authPayload struct {
	Identity identityPayload `json:"identity"`
	Scope    scopePayload    `json:"scope"`
}

type identityPayload struct {
	Methods  []string         `json:"methods"`
	Password passwordIdentity `json:"password"`
}

type passwordIdentity struct {
	User userIdentity `json:"user"`
}

type userIdentity struct {
	Name     string       `json:"name"`
	Password string       `json:"password"`
	Domain   domainRef    `json:"domain"`
}

type domainRef struct {
	Name string `json:"name"`
}

type scopePayload struct {
	Project projectRef `json:"project"`
}

type projectRef struct {
	Name   string    `json:"name"`
	Domain domainRef `json:"domain"`
}

type tokenResponse struct {
	Token struct {
		Catalog []catalogEntry `json:"catalog"`
	} `json:"token"`
}

type catalogEntry struct {
	Type      string          `json:"type"`
	Endpoints []catalogEndpoint `json:"endpoints"`
}

type catalogEndpoint struct {
	Interface string `json:"interface"`
	Region    string `json:"region"`
	URL       string `json:"url"`
}

// acquireToken implements getAuthTokenWithTimeouts (spec §4.6.1).
func acquireToken(ctx context.Context, client *http.Client, cfg *registry.SwiftConfig) (*Token, error) {
	body := authRequest{Auth: authPayload{
		Identity: identityPayload{
			Methods: []string{"password"},
			Password: passwordIdentity{
				User: userIdentity{
					Name:     cfg.Credentials.Username,
					Password: cfg.Credentials.Password,
					Domain:   domainRef{Name: cfg.Credentials.UserDomainName},
				},
			},
		},
		Scope: scopePayload{
			Project: projectRef{
				Name:   cfg.Credentials.ProjectName,
				Domain: domainRef{Name: cfg.Credentials.ProjectDomainName},
			},
		},
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("keystone: encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AuthURL+"/auth/tokens", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("keystone: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keystone: auth request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMultipleChoices:
		return nil, fmt.Errorf("keystone: identity server presented multiple choices for %s", cfg.AuthURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("keystone: auth failed with status %d", resp.StatusCode)
	}

	subjectToken := resp.Header.Get("X-Subject-Token")
	if subjectToken == "" {
		return nil, fmt.Errorf("keystone: response missing X-Subject-Token")
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("keystone: decode token response: %w", err)
	}

	storageURL, err := findObjectStoreEndpoint(parsed, cfg.Region)
	if err != nil {
		return nil, err
	}

	return &Token{
		StorageURL: storageURL,
		AuthToken:  subjectToken,
		AcquiredAt: time.Now().UTC(),
	}, nil
}

func findObjectStoreEndpoint(parsed tokenResponse, region string) (string, error) {
	for _, entry := range parsed.Token.Catalog {
		if entry.Type != "object-store" {
			continue
		}
		for _, ep := range entry.Endpoints {
			if ep.Interface == "public" && (region == "" || ep.Region == region) {
				return ep.URL, nil
			}
		}
	}
	return "", fmt.Errorf("keystone: no public object-store endpoint found for region %q", region)
}
