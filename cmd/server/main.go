package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storeit/dashboard/internal/config"
	"github.com/storeit/dashboard/internal/database"
	"github.com/storeit/dashboard/internal/geocode"
	"github.com/storeit/dashboard/internal/handlers"
	"github.com/storeit/dashboard/internal/logger"
	"github.com/storeit/dashboard/internal/matching"
	"github.com/storeit/dashboard/internal/middleware"
	"github.com/storeit/dashboard/internal/models"
	"github.com/storeit/dashboard/internal/repository"
	"github.com/storeit/dashboard/internal/services"
	"github.com/storeit/dashboard/internal/sheets"
	"github.com/storeit/dashboard/internal/snapshot"
)

const (
	shutdownTimeout = 30 * time.Second
	startupTimeout  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Server.Env, cfg.Server.LogLevel)
	log.Info("Starting StoreIt dashboard API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"source":      cfg.Source,
		"cache":       cfg.Cache.Backend,
	})

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	deps := map[string]handlers.Pinger{}

	source, closeSource, err := openSource(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open table source", err, map[string]interface{}{
			"source": cfg.Source,
		})
	}
	defer closeSource()
	deps["source"] = source

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		log.Fatal("Failed to open snapshot store", err, map[string]interface{}{
			"backend": cfg.Cache.Backend,
			"addr":    cfg.Cache.RedisAddr,
		})
	}
	defer closeStore()
	if pinger, ok := store.(handlers.Pinger); ok {
		deps["cache"] = pinger
	}

	// Left nil when disabled so the service reports ErrGeocodingDisabled.
	var resolver services.AddressResolver
	if cfg.Geocode.Enabled {
		client := geocode.NewClient(cfg.Geocode.BaseURL, cfg.Geocode.Email, cfg.Geocode.Password, cfg.Geocode.Timeout)
		resolver = geocode.NewResolver(client, cfg.Geocode.Workers, log)
		log.Info("Address lookup enabled", map[string]interface{}{
			"base_url": cfg.Geocode.BaseURL,
			"workers":  cfg.Geocode.Workers,
		})
	}

	dashboardService := services.NewDashboardService(source, store, resolver, services.Options{
		TTL:          cfg.Cache.TTL,
		Policy:       buildPolicy(cfg.Filter),
		MatchIndex:   cfg.Filter.MatchIndex,
		FetchTimeout: cfg.Sheets.Timeout,
	}, log)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(deps, source.Name(), cfg.Server.Env)
	if pool, ok := source.(handlers.PoolReporter); ok {
		healthHandler.SetPool(pool)
	}
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	dashboardHandler.RegisterRoutes(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// tableSource is what the server needs from a source: the service contract plus a health probe.
type tableSource interface {
	services.TableSource
	handlers.Pinger
}

func openSource(ctx context.Context, cfg *config.Config, log *logger.Logger) (tableSource, func(), error) {
	switch cfg.Source {
	case config.SourcePostgres:
		if cfg.Database.Migrate {
			if err := database.RunMigrations(database.DSN(cfg.Database)); err != nil {
				return nil, nil, err
			}
			log.Info("Database migrations applied", nil)
		}

		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
		})
		return repository.NewPostgresSource(db), db.Close, nil

	default:
		log.Info("Reading tables from spreadsheet exports", map[string]interface{}{
			"timeout": cfg.Sheets.Timeout.String(),
		})
		return sheets.NewClient(cfg.Sheets.HostURL, cfg.Sheets.CustomerURL, cfg.Sheets.Timeout, log), func() {}, nil
	}
}

func openStore(ctx context.Context, cfg config.CacheConfig) (snapshot.Store, func(), error) {
	if cfg.Backend != config.CacheRedis {
		return snapshot.NewMemoryStore(), func() {}, nil
	}

	// Keep expired snapshots around long enough to serve them while the source is down.
	retention := 24 * time.Hour
	if cfg.TTL*4 > retention {
		retention = cfg.TTL * 4
	}
	store, err := snapshot.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix, retention)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func buildPolicy(cfg config.FilterConfig) matching.Policy {
	stages := make([]models.Stage, 0, len(cfg.PendingStages))
	for _, s := range cfg.PendingStages {
		stages = append(stages, models.Stage(s))
	}
	return matching.Policy{
		PendingStages:      stages,
		ActionableMinStage: models.Stage(cfg.ActionableMinStage),
		RequirePaid:        cfg.RequirePaid,
	}
}
