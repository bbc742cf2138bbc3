package keystone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/starburst997/herald/internal/registry"
)

func fakeAuthServer(t *testing.T, tokenValue *atomic.Value) *httptest.Server {
	t.Helper()
	var callCount int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/tokens" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := atomic.AddInt64(&callCount, 1)
		tok := "token-" + strconv.FormatInt(n, 10)
		w.Header().Set("X-Subject-Token", tok)
		tokenValue.Store(tok)

		resp := map[string]any{
			"token": map[string]any{
				"catalog": []map[string]any{
					{
						"type": "object-store",
						"endpoints": []map[string]any{
							{"interface": "public", "region": "RegionOne", "url": "https://swift.example.com/v1/AUTH_test"},
						},
					},
				},
			},
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	}))
	return srv
}

func TestGetAcquiresAndCachesToken(t *testing.T) {
	var lastToken atomic.Value
	srv := fakeAuthServer(t, &lastToken)
	defer srv.Close()

	store := New(srv.Client())
	cfg := &registry.SwiftConfig{
		AuthURL: srv.URL,
		Region:  "RegionOne",
		Credentials: registry.SwiftCredentials{
			Username: "u", Password: "p", ProjectName: "proj",
			UserDomainName: "Default", ProjectDomainName: "Default",
		},
	}

	tok1, err := store.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok1.StorageURL != "https://swift.example.com/v1/AUTH_test" {
		t.Fatalf("StorageURL = %q", tok1.StorageURL)
	}

	tok2, err := store.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if tok2.AuthToken != tok1.AuthToken {
		t.Fatalf("expected cached token to be reused, got different tokens %q vs %q", tok1.AuthToken, tok2.AuthToken)
	}
}

func TestRefreshForcesNewToken(t *testing.T) {
	var lastToken atomic.Value
	srv := fakeAuthServer(t, &lastToken)
	defer srv.Close()

	store := New(srv.Client())
	cfg := &registry.SwiftConfig{
		AuthURL: srv.URL,
		Region:  "RegionOne",
		Credentials: registry.SwiftCredentials{
			Username: "u", Password: "p", ProjectName: "proj",
			UserDomainName: "Default", ProjectDomainName: "Default",
		},
	}

	tok1, err := store.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	tok2, err := store.Refresh(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok1.AuthToken == tok2.AuthToken {
		t.Fatal("expected Refresh to acquire a new token")
	}
}

func TestGetReturnsErrorWhenNoObjectStoreEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject-Token", "tok")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"token": map[string]any{"catalog": []map[string]any{}}})
	}))
	defer srv.Close()

	store := New(srv.Client())
	cfg := &registry.SwiftConfig{AuthURL: srv.URL, Region: "RegionOne"}

	if _, err := store.Get(context.Background(), cfg); err == nil {
		t.Fatal("expected error when no object-store endpoint is in the catalog")
	}
}
