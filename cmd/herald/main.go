package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/starburst997/herald/internal/audit"
	"github.com/starburst997/herald/internal/config"
	"github.com/starburst997/herald/internal/forwarder"
	"github.com/starburst997/herald/internal/httpserver"
	"github.com/starburst997/herald/internal/keystone"
	"github.com/starburst997/herald/internal/logging"
	"github.com/starburst997/herald/internal/mirror"
	"github.com/starburst997/herald/internal/ratelimit"
	"github.com/starburst997/herald/internal/registry"
	"github.com/starburst997/herald/internal/resolver"
	"github.com/starburst997/herald/internal/s3resolver"
	"github.com/starburst997/herald/internal/sentryreport"
	"github.com/starburst997/herald/internal/swiftresolver"
)

// Herald is a state-free proxy on the request path: every piece of
// state it owns is either boot-time config (registry) or a durable
// store outside the process (audit Postgres, mirror sqlite). main wires
// those together and runs until told to stop, generalizing the
// teacher's single-proxy main() into Herald's multi-bucket front door.
func main() {
	logLevel := getEnvOrDefault("LOG_LEVEL", "info")
	logger := logging.New(logLevel)

	if err := sentryreport.Init(os.Getenv("SENTRY_DSN"), getEnvOrDefault("HERALD_ENV", "production")); err != nil {
		logger.WithError(err).Warn("main: sentry init failed, continuing without it")
	}

	cfgPath := config.FromEnv()
	fileConfig, err := config.Load(cfgPath)
	if err != nil {
		logger.WithError(err).Fatal("main: failed to load config")
	}

	podsPath := getEnvOrDefault("HERALD_PODS_FILE_PATH", "./pods.yaml")
	pods, err := config.LoadPods(podsPath)
	if err != nil {
		logger.WithError(err).Fatal("main: failed to load pods config")
	}
	logger.WithField("peer_count", len(pods.Pods)).Info("main: orchestration peers loaded")

	reg, err := registry.Build(fileConfig)
	if err != nil {
		// Config is fatal before any listener opens (spec §7).
		logger.WithError(err).Fatal("main: invalid configuration")
	}
	logger.WithField("bucket_count", len(reg.All())).Info("main: registry built")

	timeout := 30 * time.Second

	client := forwarder.NewClient(timeout)
	ks := keystone.New(client)
	limiters := ratelimit.New()

	var auditSink *audit.Sink
	if dsn := os.Getenv("AUDIT_DATABASE_URL"); dsn != "" && getEnvOrDefault("DISABLE_AUDIT_DB", "false") != "true" {
		auditSink, err = audit.Open(dsn, logger)
		if err != nil {
			logger.WithError(err).Fatal("main: failed to open audit database")
		}
		defer auditSink.Close()
	} else {
		logger.Info("main: audit ledger disabled (AUDIT_DATABASE_URL unset or DISABLE_AUDIT_DB=true)")
	}

	s3r := &s3resolver.Resolver{
		Forwarder: forwarder.New(timeout),
		Limiters:  limiters,
		Audit:     auditSink,
		Log:       logger,
		Timeout:   timeout,
	}
	swiftr := &swiftresolver.Resolver{
		Client:   client,
		Keystone: ks,
		Limiters: limiters,
		Audit:    auditSink,
		Log:      logger,
		Timeout:  timeout,
	}

	queuePath := getEnvOrDefault("HERALD_MIRROR_QUEUE_PATH", "./herald-mirror.db")
	queue, err := mirror.Open(queuePath)
	if err != nil {
		logger.WithError(err).Fatal("main: failed to open mirror queue")
	}
	defer queue.Close()

	router := &resolver.Router{S3: s3r, Swift: swiftr, Queue: queue, Log: logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirror.StartWorkers(ctx, reg, queue, &mirror.Dispatchers{S3: s3r, Swift: swiftr}, logger)

	addr := ":" + getEnvOrDefault("HERALD_PORT", "8080")
	server := httpserver.New(addr, reg, router, ks, logger)

	go warmKeystone(ctx, reg, ks, server, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("main: server failed")
		}
	case <-ctx.Done():
		logger.Info("main: shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("main: graceful shutdown failed")
		}
	}
}

// warmKeystone acquires an initial token for every Swift backend at
// boot so /healthz can report ready quickly rather than waiting for the
// first client request to trigger a Keystone round trip.
func warmKeystone(ctx context.Context, reg *registry.Registry, ks *keystone.Store, server *httpserver.Server, logger *log.Logger) {
	acquired := false
	for _, b := range reg.All() {
		if b.Swift == nil {
			continue
		}
		if _, err := ks.Get(ctx, b.Swift); err != nil {
			logger.WithError(err).WithField("bucket", b.BucketName).Warn("main: initial keystone token acquisition failed")
			continue
		}
		acquired = true
	}
	if acquired {
		server.MarkKeystoneHealthy()
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
