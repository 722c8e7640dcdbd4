package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/crypto/bcrypt"

	praxisapi "github.com/praxima-health/praxis/api/echo"
	"github.com/praxima-health/praxis/cache"
	redcache "github.com/praxima-health/praxis/cache/redis"
	"github.com/praxima-health/praxis/config"
	"github.com/praxima-health/praxis/internal/auth"
	"github.com/praxima-health/praxis/internal/identity"
	"github.com/praxima-health/praxis/internal/metrics"
	"github.com/praxima-health/praxis/log"
	"github.com/praxima-health/praxis/mongodb"
	"github.com/praxima-health/praxis/services"
	"github.com/praxima-health/praxis/storage"
	"github.com/praxima-health/praxis/storage/s3"
	"github.com/praxima-health/praxis/tracing"
)

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		stdLog.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)
	ctx := context.Background()
	appLogger.Info(ctx, "Starting praxis server...", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", initErr, nil)
	}
	db := mongodb.GetDB()

	// Repositories
	ownerRepo, err := mongodb.NewOwnerRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize OwnerRepository", err, nil)
	}
	delegateRepo, err := mongodb.NewDelegateRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize DelegateRepository", err, nil)
	}
	patientRepo, err := mongodb.NewPatientRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize PatientRepository", err, nil)
	}
	credentialStore, err := mongodb.NewCredentialRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize CredentialRepository", err, nil)
	}
	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize SessionRepository", err, nil)
	}

	// Identity provider clients. The primary client carries the process-wide
	// session; provisioning acquires throwaway instances from the factory.
	passwordHasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)
	idpFactory := identity.NewFactory(credentialStore, passwordHasher)
	primaryClient := idpFactory.NewIsolatedClient()
	defer primaryClient.Close()

	// Session cache: Redis when configured, in-memory otherwise.
	var sessionCache cache.SessionStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", pingErr, nil)
		}
		sessionCache = redcache.NewSessionStore(redisClient, "praxis:session")
		appLogger.Info(ctx, "Using Redis session cache", map[string]interface{}{"addr": cfg.RedisAddr})
	} else {
		sessionCache = cache.NewMemorySessionStore(time.Minute)
		appLogger.Info(ctx, "Using in-memory session cache", nil)
	}

	// File storage is optional; patient attachments are rejected without it.
	var fileStore storage.FileStore
	if cfg.S3.Bucket != "" {
		s3Client, s3Err := s3.New(cfg.S3)
		if s3Err != nil {
			appLogger.Fatal(ctx, "Failed to initialize S3 file store", s3Err, nil)
		}
		fileStore = s3Client
		appLogger.Info(ctx, "S3 file store initialized", map[string]interface{}{"bucket": cfg.S3.Bucket})
	} else {
		appLogger.Warn(ctx, "No S3 bucket configured, patient attachments are disabled", nil)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(registry)

	// Services
	provisioningService := services.NewProvisioningService(ownerRepo, delegateRepo, idpFactory, primaryClient)
	authService := services.NewAuthService(
		ownerRepo, delegateRepo, sessionRepo, sessionCache, primaryClient,
		[]byte(cfg.SessionSigningKey), time.Duration(cfg.SessionTTLMin)*time.Minute)
	patientService := services.NewPatientService(patientRepo, provisioningService, fileStore)
	statsService := services.NewStatsService(ownerRepo, delegateRepo, patientRepo,
		time.Duration(cfg.StatsRefreshMin)*time.Minute)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := praxisapi.NewAPI(authService, provisioningService, patientService, statsService)
	api.RegisterRoutes(e)

	httpServer = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "HTTP server failed", serveErr, nil)
		}
	}()

	waitForShutdown(ctx)
}

func waitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err, nil)
	}
	mongodb.CloseMongoDB(shutdownCtx)
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err, nil)
		}
	}
	appLogger.Info(context.Background(), "Server stopped.", nil)
}
