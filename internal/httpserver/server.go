// Package httpserver is Herald's front door: request routing, SigV4
// verification, CORS, health/metrics endpoints, and dispatch into
// internal/resolver.Router. Grounded on the teacher's simple
// http.Server + single HandlerFunc shape (main.go's handleProxyRequest),
// generalized from one hardcoded proxy target to gorilla/mux-routed
// multi-bucket dispatch — gorilla/mux is adopted from the rest of the
// example pack since the teacher's single-endpoint design has no
// routing table of its own to grow from.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/keystone"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
)

// Server wires the registry, resolver router, and readiness state into
// a runnable *http.Server.
type Server struct {
	Registry *registry.Registry
	Router   *resolver.Router
	Keystone *keystone.Store
	Log      *logrus.Logger

	httpServer *http.Server

	// hasSwiftBackends toggles whether /healthz requires a successful
	// Keystone token acquisition since boot (spec.md §6 health check).
	hasSwiftBackends bool
	keystoneHealthy  bool
}

// New builds a Server bound to addr.
func New(addr string, reg *registry.Registry, router *resolver.Router, ks *keystone.Store, log *logrus.Logger) *Server {
	hasSwift := false
	for _, b := range reg.All() {
		if b.Type == registry.SwiftBucketConfig {
			hasSwift = true
			break
		}
	}

	s := &Server{Registry: reg, Router: router, Keystone: ks, Log: log, hasSwiftBackends: hasSwift}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.handleS3).Methods(
		http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions,
	)

	handler := corsMiddleware(loggingMiddleware(log)(r))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// MarkKeystoneHealthy records that at least one Keystone token
// acquisition has succeeded since boot (spec.md §6 "health check").
func (s *Server) MarkKeystoneHealthy() { s.keystoneHealthy = true }

// ListenAndServe starts the server, blocking until Shutdown is called
// or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	s.Log.WithField("addr", s.httpServer.Addr).Info("httpserver: starting")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests (spec.md §4.15).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
