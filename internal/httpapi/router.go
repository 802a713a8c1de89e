package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"meter_gateway/internal/audit"
	"meter_gateway/internal/auth"
	"meter_gateway/internal/config"
	"meter_gateway/internal/credential"
	"meter_gateway/internal/ledger"
	"meter_gateway/internal/metrics"
	"meter_gateway/internal/middleware"
	"meter_gateway/internal/queue"
	"meter_gateway/internal/ratelimit"
	"meter_gateway/internal/storage"
	"meter_gateway/internal/upstream"
	"meter_gateway/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	DB          *storage.DB
	Redis       *redis.Client
	Callers     *storage.CallerRepository
	Credentials *storage.CredentialRepository
	APIKeys     auth.CallerStore
	AdminStore  auth.AdminStore
	Issuer      *credential.Issuer
	Ledger      ledger.Service
	RateLimit   ratelimit.Limiter
	AuditSink   audit.Sink
	Archiver    *audit.Archiver
	Metrics     metrics.Metrics
	Forwarder   *upstream.Forwarder
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		URL:               cfg.Database.URL,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:   cfg.Database.ConnMaxIdleTime,
		CallerCacheSize:   cfg.Cache.CallerCacheSize,
		CallerCacheTTL:    cfg.Cache.CallerCacheTTL,
		EndpointCacheSize: cfg.Cache.EndpointCacheSize,
		EndpointCacheTTL:  cfg.Cache.EndpointCacheTTL,
		TierCacheSize:     cfg.Cache.TierCacheSize,
		TierCacheTTL:      cfg.Cache.TierCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	encryption, err := storage.NewEncryptionFromBase64(cfg.EncryptionKey)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	callerRepo := db.NewCallerRepository()
	endpointRepo := db.NewEndpointRepository()
	tierRepo := db.NewTierRepository()
	balanceRepo := db.NewBalanceRepository()
	credentialRepo := db.NewCredentialRepository(encryption)
	auditRepo := db.NewAuditRepository()
	adminUserRepo := db.NewAdminUserRepository()
	adminTokenRepo := db.NewAdminTokenRepository()

	provider := credential.NewProviderClient(cfg.Identity)
	issuer := credential.NewIssuer(provider, credentialRepo)

	catalog := ledger.NewScopeQuotaCatalog(tierRepo)
	ledgerService := ledger.New(callerRepo, endpointRepo, balanceRepo, catalog)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled && redisClient != nil {
		limiter = ratelimit.NewRateLimiter(redisClient)
	} else {
		limiter = ratelimit.NewNoopLimiter()
	}

	promMetrics := metrics.NewPrometheusMetrics()

	archiver, err := newArchiver(cfg, redisClient)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if archiver != nil {
		archiver.Start(context.Background())
	}

	deps := &Dependencies{
		DB:          db,
		Redis:       redisClient,
		Callers:     callerRepo,
		Credentials: credentialRepo,
		APIKeys:     NewDatabaseCallerStore(callerRepo),
		AdminStore:  NewAdminStoreAdapter(adminUserRepo, adminTokenRepo),
		Issuer:      issuer,
		Ledger:      ledgerService,
		RateLimit:   limiter,
		AuditSink:   audit.NewDBSink(auditRepo, archiver, promMetrics),
		Archiver:    archiver,
		Metrics:     promMetrics,
		Forwarder:   upstream.NewForwarder(cfg.Upstream),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// newArchiver builds the audit archive exporter when enabled: a queue
// (Redis when configured, in-memory otherwise), a dead-letter queue and a
// batch writer for the configured sink.
func newArchiver(cfg *config.Config, redisClient *redis.Client) (*audit.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}

	queueCfg := queue.DefaultConfig(cfg.Archive.QueueName)
	queueCfg.BatchSize = cfg.Archive.BatchSize
	queueCfg.BatchTimeout = cfg.Archive.FlushInterval
	queueCfg.MaxRetries = cfg.Archive.MaxRetries
	queueCfg.RetryBackoff = cfg.Archive.RetryBackoff
	queueCfg.UseRedis = cfg.Archive.UseRedisQueue && redisClient != nil
	if queueCfg.UseRedis {
		queueCfg.RedisAddr = cfg.Redis.Address
		queueCfg.RedisPassword = cfg.Redis.Password
		queueCfg.RedisDB = cfg.Redis.DB
	}

	var archiveQueue queue.Queue
	var archiveDLQ queue.DeadLetterQueue
	var err error
	if queueCfg.UseRedis {
		archiveQueue, err = queue.NewRedisQueue(queueCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive queue: %w", err)
		}
		archiveDLQ, err = queue.NewRedisDeadLetterQueue(queueCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive DLQ: %w", err)
		}
	} else {
		archiveQueue = queue.NewMemoryQueue(queueCfg)
		archiveDLQ = queue.NewMemoryDeadLetterQueue()
	}

	var writer audit.BatchWriter
	switch cfg.Archive.Sink {
	case "s3":
		writer, err = audit.NewS3Writer(context.Background(),
			cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.S3Prefix, cfg.Archive.PodName)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 archive writer: %w", err)
		}
	case "file":
		writer, err = audit.NewFileWriter(cfg.Archive.FilePath, cfg.Archive.FileMaxSize, cfg.Archive.FileMaxFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create file archive writer: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown archive sink %q", cfg.Archive.Sink)
	}

	return audit.NewArchiver(archiveQueue, archiveDLQ, writer, queueCfg), nil
}

// Shutdown stops background workers and closes connections. The archiver
// drains its queue before the stores go away.
func (d *Dependencies) Shutdown() {
	if d.Archiver != nil {
		d.Archiver.Stop()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	requestID := middleware.RequestIDMiddleware
	identity := middleware.IdentityMiddleware(deps.APIKeys, deps.Issuer, deps.Callers)
	apiKeyOnly := middleware.APIKeyMiddleware(deps.APIKeys)

	// Metered catch-all: every path without an explicit registration below
	// runs the quota pipeline and forwards downstream.
	gateway := NewGatewayHandler(
		deps.DB.NewEndpointRepository(),
		deps.Ledger,
		deps.RateLimit,
		deps.Forwarder,
		deps.AuditSink,
		deps.Metrics,
		cfg.RateLimit,
	)
	auditFallback := AuditFallback(deps.AuditSink, deps.Metrics)
	mux.Handle("/", requestID(auditFallback(identity(gateway))))

	// Health check endpoint - public
	mux.HandleFunc("/health", deps.handleHealth)

	// Metrics endpoint - public
	mux.Handle("/metrics", deps.Metrics.HTTPHandler())

	// Credential lifecycle endpoints - static API key only
	tokenHandler := NewTokenHandler(deps.Issuer, deps.Credentials, cfg.Identity.Scope, deps.Metrics)
	mux.Handle("/v1/tokens", requestID(apiKeyOnly(methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: tokenHandler.Issue,
	}))))
	mux.Handle("/v1/tokens/refresh", requestID(apiKeyOnly(methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: tokenHandler.Refresh,
	}))))
	mux.Handle("/v1/tokens/current", requestID(apiKeyOnly(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet: tokenHandler.Current,
	}))))

	// Admin authentication endpoints - public (no middleware)
	adminAuthHandler := NewAdminAuthHandler(deps.AdminStore, cfg)
	mux.HandleFunc("/admin/auth/login", adminAuthHandler.Login)
	mux.HandleFunc("/admin/auth/token", adminAuthHandler.TokenAuth)

	// Admin management endpoints - protected with AdminJWTMiddleware.
	// Viewer role suffices for reads; handlers enforce the admin role on
	// writes since the required role varies by method on the same path.
	authorizer := auth.NewRoleAuthorizer()
	viewer := middleware.AdminJWTMiddleware(cfg, authorizer, auth.RoleViewer)

	callersHandler := NewAdminCallersHandler(deps.DB, deps.Ledger)
	mux.Handle("/admin/callers", viewer(methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: callersHandler.Create,
		http.MethodGet:  callersHandler.List,
	})))
	mux.Handle("/admin/callers/", viewer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(pathParts) == 4 && pathParts[3] == "balance":
			methodHandler(map[string]http.HandlerFunc{
				http.MethodGet: callersHandler.GetBalance,
				http.MethodPut: callersHandler.SetBalance,
			}).ServeHTTP(w, r)
		case len(pathParts) == 4 && pathParts[3] == "transactions":
			methodHandler(map[string]http.HandlerFunc{
				http.MethodGet: callersHandler.ListTransactions,
			}).ServeHTTP(w, r)
		case len(pathParts) == 3:
			methodHandler(map[string]http.HandlerFunc{
				http.MethodGet:   callersHandler.GetByID,
				http.MethodPatch: callersHandler.Update,
			}).ServeHTTP(w, r)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Not found")
		}
	})))

	endpointsHandler := NewAdminEndpointsHandler(deps.DB)
	mux.Handle("/admin/endpoints", viewer(methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: endpointsHandler.Create,
		http.MethodGet:  endpointsHandler.List,
	})))
	mux.Handle("/admin/endpoints/", viewer(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet:   endpointsHandler.GetByID,
		http.MethodPatch: endpointsHandler.Update,
	})))

	tiersHandler := NewAdminTiersHandler(deps.DB)
	mux.Handle("/admin/tiers", viewer(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet: tiersHandler.List,
	})))
	mux.Handle("/admin/tiers/", viewer(methodHandler(map[string]http.HandlerFunc{
		http.MethodPut: tiersHandler.Upsert,
	})))
}

// methodHandler dispatches by HTTP method, rejecting everything else.
func methodHandler(handlers map[string]http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// handleHealth reports database and Redis health.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := d.DB.Health(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if d.Redis != nil {
		checks["redis"] = "ok"
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	utils.RespondWithJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}
