// Panel Server
//
// Features:
// - Path-scoped file manager over per-user sandboxes and host roots
// - One-shot terminal gateway
// - Prometheus metrics & structured logging (zap)
// - Session clipboard (memory or Redis)
// - SSE file change events, activity log, rate limiting
// - WebDAV access to the user sandbox
// - Uploads-root backups (local, optionally S3)
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Shubham6444/host/internal/accounts"
	"github.com/Shubham6444/host/internal/activity"
	"github.com/Shubham6444/host/internal/api"
	"github.com/Shubham6444/host/internal/auth"
	"github.com/Shubham6444/host/internal/backup"
	"github.com/Shubham6444/host/internal/clipboard"
	"github.com/Shubham6444/host/internal/config"
	"github.com/Shubham6444/host/internal/events"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/procexec"
	"github.com/Shubham6444/host/internal/quota"
	"github.com/Shubham6444/host/internal/store"
	"github.com/Shubham6444/host/internal/terminal"
	"github.com/Shubham6444/host/internal/upload"
	"github.com/Shubham6444/host/internal/vfs"
	"github.com/Shubham6444/host/internal/webdav"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Panel server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("uploads", cfg.UploadsRoot))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logging.Info("connecting to PostgreSQL...")
	db, err := store.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if dir := store.FindMigrationsDir(cfg.MigrationsDir); dir != "" {
		logging.Info("running migrations...", zap.String("dir", dir))
		if err := db.Migrate(dir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	} else {
		logging.Warn("no migrations directory found")
	}

	if err := os.MkdirAll(cfg.UploadsRoot, 0755); err != nil {
		logging.Fatal("cannot create uploads root", zap.Error(err))
	}

	// Accounts and auth
	users := accounts.NewService(accounts.NewPostgresRepository(db.DB()), cfg.DefaultFileLimitMB)
	if err := users.EnsureDefaultAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logging.Error("failed to ensure default admin", zap.Error(err))
	}

	sessions := auth.NewPostgresSessionStore(db.DB())
	authHandler := auth.New(cfg.JWTSecret, cfg.SessionTTL, sessions, users)

	// Initialize OIDC provider (optional)
	if cfg.OIDCIssuerURL != "" {
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:  cfg.OIDCIssuerURL,
			ClientID:   cfg.OIDCClientID,
			AdminClaim: cfg.OIDCAdminClaim,
			AdminValue: cfg.OIDCAdminValue,
		}, users)
		if err != nil {
			logging.Fatal("OIDC provider init failed", zap.Error(err))
		}
		if oidcProvider != nil {
			authHandler.SetOIDCProvider(oidcProvider)
		}
	}

	// Filesystem core
	runner := procexec.NewExecRunner()
	resolver := vfs.NewResolver(cfg.UploadsRoot, nil)
	executor := vfs.NewExecutor(runner, cfg.CompressTimeout)

	// Clipboard store: Redis when configured, otherwise in memory
	var clipStore clipboard.Store = clipboard.NewMemoryStore()
	if cfg.RedisURL != "" {
		redisStore, err := clipboard.NewRedisStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logging.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		clipStore = redisStore
		logging.Info("clipboard backed by Redis")
	}

	gateway := terminal.NewGateway(resolver, runner, terminal.Config{
		Timeout:   cfg.TerminalTimeout,
		MaxOutput: cfg.TerminalMaxOutput,
		AdminOnly: cfg.TerminalAdminOnly,
	})

	// Initialize SSE broadcaster
	broadcaster := events.NewBroadcaster()
	logging.Info("SSE broadcaster initialized")

	rateLimiter := quota.NewRateLimiter()

	// Backups (S3 upload optional)
	var uploader backup.Uploader
	if cfg.BackupS3Bucket != "" {
		s3Uploader, err := backup.NewS3Uploader(ctx, backup.S3Config{
			Endpoint:  cfg.BackupS3Endpoint,
			Bucket:    cfg.BackupS3Bucket,
			Region:    cfg.BackupS3Region,
			AccessKey: cfg.BackupS3AccessKey,
			SecretKey: cfg.BackupS3SecretKey,
		})
		if err != nil {
			logging.Fatal("S3 backup init failed", zap.Error(err))
		}
		uploader = s3Uploader
		logging.Info("backups will be uploaded to S3", zap.String("bucket", cfg.BackupS3Bucket))
	}
	backups := backup.NewService(runner, cfg.UploadsRoot, cfg.BackupDir, uploader)

	// WebDAV (optional)
	var davHandler http.Handler
	if cfg.WebDAVEnabled {
		davFS := webdav.NewSandboxFS(resolver, users.FileLimitBytes)
		davHandler = webdav.NewHandler("/dav", davFS, authHandler, users)
		logging.Info("WebDAV enabled", zap.String("prefix", "/dav/"))
	}

	// Create API server
	srv := api.NewServer(api.Deps{
		Config:      cfg,
		Auth:        authHandler,
		Accounts:    users,
		Resolver:    resolver,
		Executor:    executor,
		Uploads:     upload.NewIngestor(resolver),
		Clipboard:   clipboard.NewCoordinator(clipStore, resolver, executor),
		Terminal:    gateway,
		Activity:    activity.NewLog(activity.NewPostgresStore(db.DB())),
		Broadcaster: broadcaster,
		RateLimiter: rateLimiter,
		Backup:      backups,
		WebDAV:      davHandler,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	// Start periodic metrics update
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics()
			}
		}
	}()

	// Start periodic cleanup (rate limiter buckets + expired sessions)
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(24 * time.Hour)
				if n, err := sessions.DeleteExpired(ctx); err != nil {
					logging.Error("session cleanup failed", zap.Error(err))
				} else if n > 0 {
					logging.Info("cleaned expired sessions", zap.Int64("count", n))
				}
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}
