package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/rapidtable/internal/config"
	"github.com/JonMunkholm/rapidtable/internal/core"
	"github.com/JonMunkholm/rapidtable/internal/logging"
	"github.com/JonMunkholm/rapidtable/internal/tabledef"
	"github.com/JonMunkholm/rapidtable/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		pool, err = connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	catalog, err := buildCatalog(cfg, pool)
	if err != nil {
		slog.Error("failed to load tables", "error", err)
		os.Exit(1)
	}
	slog.Info("tables registered", "count", catalog.Len(), "groups", len(catalog.Groups()))
	for _, info := range catalog.Info() {
		slog.Debug("table", "key", info.Key, "group", info.Group, "features", info.Features)
	}

	limiter := core.NewExportLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWaitTime)
	service := core.NewService(catalog, limiter, core.ServiceOptions{
		BasePath:       cfg.Tables.BasePath,
		DefaultPerPage: cfg.Tables.DefaultPerPage,
		LiveUpdate:     cfg.Tables.LiveUpdate,
		QueryTimeout:   cfg.Server.RequestTimeout,
		ExportTimeout:  cfg.Export.Timeout,
	})

	server, err := web.NewServer(service, cfg)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests, then let running exports finish
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for exports to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("exports did not complete in time", "error", err)
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

func connect(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// buildCatalog registers the demo tables and the tables of the definitions
// file. Database-backed definitions need a pool.
func buildCatalog(cfg *config.Config, pool *pgxpool.Pool) (*core.Catalog, error) {
	catalog := core.NewCatalog()
	if cfg.Tables.Demo {
		core.RegisterDemo(catalog, core.NewDemoStore(cfg.Tables.DemoRecords))
	}
	if cfg.Tables.DefinitionsFile == "" {
		return catalog, nil
	}

	f, err := tabledef.ParseFile(cfg.Tables.DefinitionsFile)
	if err != nil {
		return nil, err
	}
	src := core.Sources{}
	if pool != nil {
		src.DB = pool
	}
	if err := catalog.Load(f, src); err != nil {
		return nil, err
	}
	return catalog, nil
}
