package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/worklens/worklens/internal"
	"github.com/worklens/worklens/internal/compliance"
	compliancepg "github.com/worklens/worklens/internal/compliance/postgres"
	"github.com/worklens/worklens/internal/obs"
	"github.com/worklens/worklens/internal/tracking"
	trackingpg "github.com/worklens/worklens/internal/tracking/postgres"
	"github.com/worklens/worklens/internal/transport/rest"
	"github.com/worklens/worklens/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Router *chi.Mux
	Runner *compliance.Runner
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		// let an in-flight compliance run finish before closing the DB
		deps.Runner.Wait()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
		if deps.Redis != nil {
			if err := deps.Redis.Close(); err != nil {
				slog.Error("Redis close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	redisClient := initRedis(config.Redis)

	obs.Init()

	trackingRepo := trackingpg.NewTrackingRepository(gormDB)
	violationRepo := compliancepg.NewViolationRepository(gormDB)
	configRepo := compliancepg.NewConfigRepository(gormDB)

	configService := compliance.NewConfigService(configRepo, log)
	violationService := compliance.NewService(violationRepo, log)
	cache := compliance.NewAggregateCache(redisClient, config.Redis.CacheTTL, log)
	loader := tracking.NewSnapshotLoader(trackingRepo, log)
	aggregator := compliance.NewAggregator(violationRepo, trackingRepo, configService, cache, log)
	runner := compliance.NewRunner(configService, loader, compliance.DefaultEvaluators(), violationService, cache, obs.RunMetrics{}, log)

	handler := compliance.NewHandler(&compliance.API{
		Runner:     runner,
		Violations: violationService,
		Aggregates: aggregator,
		Configs:    configService,
	})

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, redisClient, handler, log)

	return &Dependencies{
		Config: config,
		DB:     db,
		Redis:  redisClient,
		Router: router,
		Runner: runner,
		Logger: log,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm wraps the existing pgx connection so both layers share a pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
}

// initRedis returns nil when no address is configured; the cache degrades to
// direct computation.
func initRedis(cfg internal.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
