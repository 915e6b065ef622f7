// Riqo Ingest - Multi-tenant Tabular Data Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riqo-ingest

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tomtom215/riqo-ingest/internal/api"
	"github.com/tomtom215/riqo-ingest/internal/audit"
	"github.com/tomtom215/riqo-ingest/internal/auth"
	"github.com/tomtom215/riqo-ingest/internal/authz"
	"github.com/tomtom215/riqo-ingest/internal/config"
	"github.com/tomtom215/riqo-ingest/internal/database"
	"github.com/tomtom215/riqo-ingest/internal/ingest"
	"github.com/tomtom215/riqo-ingest/internal/logging"
	"github.com/tomtom215/riqo-ingest/internal/supervisor"
	"github.com/tomtom215/riqo-ingest/internal/supervisor/services"
	"github.com/tomtom215/riqo-ingest/internal/tenantdb"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("version", version).Msg("Starting ingest server")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.EncryptionSecret())
	if err != nil {
		return fmt.Errorf("credential encryptor: %w", err)
	}
	if cfg.Security.CredentialsKey == "" {
		logging.Warn().Msg("CREDENTIALS_KEY not set; destination keys are encrypted with a key derived from JWT_SECRET")
	}

	db, err := database.New(&cfg.Database, encryptor)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	resolver := tenantdb.NewResolver(cfg.Destination, cfg.Ingest.DefaultTableName)
	defer resolver.Close()

	queue, err := ingest.NewQueue(ingest.QueueConfig{
		OutputBuffer: cfg.Ingest.QueueBuffer,
		CloseTimeout: cfg.Ingest.CloseTimeout,
	}, logging.NewWatermillAdapter())
	if err != nil {
		return fmt.Errorf("ingest queue: %w", err)
	}
	orchestrator := ingest.New(db, ingest.NewDestination(resolver), queue, cfg.Ingest)
	queue.Register(orchestrator.Process)

	auditLog := newAuditLogger(ctx, cfg, db)
	defer func() {
		if err := auditLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	handler, err := newHTTPHandler(cfg, db, resolver, queue, orchestrator, auditLog)
	if err != nil {
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	tree.AddIngestService(services.NewQueueService(queue))
	if cfg.Ingest.ArtifactMaxAge > 0 {
		tree.AddIngestService(services.NewArtifactSweeperService(orchestrator.Artifacts(), cfg.Ingest.ArtifactMaxAge, 0))
	}
	if auditLog != nil {
		tree.AddIngestService(auditLog)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// newAuditLogger opens the audit trail in the metadata database. It returns
// nil when auditing is disabled or the table cannot be created; the service
// runs without an audit trail rather than refusing to start.
func newAuditLogger(ctx context.Context, cfg *config.Config, db *database.DB) *audit.Logger {
	if !cfg.Audit.Enabled {
		logging.Info().Msg("Audit trail disabled")
		return nil
	}
	store := audit.NewDuckDBStore(db.Conn())
	if err := store.CreateTable(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to create audit events table - audit trail disabled")
		return nil
	}
	logging.Info().Int("retention_days", cfg.Audit.RetentionDays).Msg("Audit trail initialized with DuckDB persistence")
	return audit.NewLogger(store, audit.ConfigFrom(cfg.Audit))
}

// newHTTPHandler assembles the security layers and the chi router. auditLog
// may be nil.
func newHTTPHandler(cfg *config.Config, db *database.DB, resolver *tenantdb.Resolver, queue *ingest.Queue, orchestrator *ingest.Orchestrator, auditLog *audit.Logger) (http.Handler, error) {
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}

	enforcerCfg := authz.DefaultEnforcerConfig()
	enforcerCfg.ModelPath = cfg.Security.CasbinModelPath
	enforcerCfg.PolicyPath = cfg.Security.CasbinPolicyPath
	enforcerCfg.AdminPlan = cfg.Security.AdminPlan
	enforcer, err := authz.NewEnforcer(enforcerCfg)
	if err != nil {
		return nil, fmt.Errorf("authorization enforcer: %w", err)
	}

	uploadLimiter := auth.NewUploadLimiter(cfg.Security.UploadsPerMinute)

	deps := api.HandlerDeps{
		Uploads:        orchestrator,
		Status:         ingest.NewReporter(db),
		Profiles:       db,
		Destinations:   resolver,
		Queue:          queue,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Version:        version,
	}
	authorizer := authz.NewMiddleware(enforcer, db)
	if auditLog != nil {
		deps.Audit = auditLog
		authorizer.WithDenialRecorder(auditLog)
	}

	handler := api.NewHandler(deps)
	router := api.NewRouter(handler, api.RouterDeps{
		Authenticate:  auth.NewMiddleware(jwtManager).Authenticate,
		Authorize:     authorizer.Authorize,
		UploadLimit:   uploadLimiter.Middleware,
		ChiMiddleware: api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	})
	return router.SetupChi(), nil
}
