// codeLog document store server
//
// Serves per-owner file records to the editor over HTTP:
// - JWT bearer auth with bcrypt passwords in PostgreSQL
// - Records in PostgreSQL, S3/MinIO or memory
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/api"
	"github.com/lemesvini/codeLog/internal/auth"
	"github.com/lemesvini/codeLog/internal/config"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/metrics"
	"github.com/lemesvini/codeLog/internal/store"
	"github.com/lemesvini/codeLog/internal/store/memory"
	"github.com/lemesvini/codeLog/internal/store/postgres"
	s3store "github.com/lemesvini/codeLog/internal/store/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("codeLog server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("backend", cfg.StoreBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info("connecting to PostgreSQL...")
	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logging.Fatal("migration failed", zap.Error(err))
	}

	authHandler := auth.New(db, cfg.JWTSecret)
	if err := authHandler.EnsureDefaultAdmin(ctx, cfg.AdminPassword); err != nil {
		logging.Fatal("default admin setup failed", zap.Error(err))
	}

	records, err := openStore(ctx, cfg, db)
	if err != nil {
		logging.Fatal("store init failed", zap.Error(err))
	}
	defer records.Close()

	srv := api.NewServer(store.Instrument(records), authHandler)

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

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("http shutdown", zap.Error(err))
		}
		metricsServer.Close()
	}()

	// Periodic connection pool metrics
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

	logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

// openStore picks the record backend. Postgres shares the account database.
func openStore(ctx context.Context, cfg *config.Config, db *postgres.Store) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendS3:
		logging.Info("using S3 record store", zap.String("endpoint", cfg.S3Endpoint), zap.String("bucket", cfg.S3Bucket))
		s, err := s3store.New(ctx, s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		logging.Warn("using in-memory record store; records are lost on restart")
		return memory.New(), nil
	default:
		return sharedDB{db}, nil
	}
}

// sharedDB keeps the record store from closing the account database,
// which main closes itself.
type sharedDB struct {
	*postgres.Store
}

func (sharedDB) Close() error { return nil }
