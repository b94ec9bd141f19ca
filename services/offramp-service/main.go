package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rahataid/rahat-offramp/pkg/backend"
	"github.com/rahataid/rahat-offramp/pkg/cache"
	"github.com/rahataid/rahat-offramp/pkg/chain"
	"github.com/rahataid/rahat-offramp/pkg/config"
	"github.com/rahataid/rahat-offramp/pkg/database"
	"github.com/rahataid/rahat-offramp/pkg/events"
	"github.com/rahataid/rahat-offramp/pkg/logger"
	"github.com/rahataid/rahat-offramp/pkg/metrics"
	"github.com/rahataid/rahat-offramp/pkg/middleware"
	"github.com/rahataid/rahat-offramp/pkg/orchestrator"
	"github.com/rahataid/rahat-offramp/pkg/poller"
	"github.com/rahataid/rahat-offramp/pkg/provider"
	"github.com/rahataid/rahat-offramp/pkg/response"
	"github.com/rahataid/rahat-offramp/pkg/session"
	"github.com/rahataid/rahat-offramp/pkg/swagger"
	"github.com/rahataid/rahat-offramp/pkg/telemetry"
	"github.com/rahataid/rahat-offramp/services/offramp-service/internal/handler"
	"github.com/rahataid/rahat-offramp/services/offramp-service/internal/repository"
)

const serviceName = "offramp-service"

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		logger.Init(serviceName, "info", true)
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)
	logger.Info().Msg("Starting Offramp Service")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, &telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		CollectorURL: cfg.Telemetry.CollectorURL,
		Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		Enabled:      cfg.Telemetry.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise tracing")
	}
	defer tp.Shutdown(context.Background())

	var ledger *repository.AttemptRepository
	if cfg.Database.Enabled {
		db, err := database.NewPool(ctx, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		go database.ReportPoolStats(ctx, db, serviceName, 15*time.Second)

		ledger = repository.NewAttemptRepository(db)
		logger.Info().Msg("Connected to database, attempt ledger enabled")
	} else {
		logger.Warn().Msg("Database disabled, transitions will not be recorded")
	}

	store, closeStore := sessionStore(ctx, cfg)
	defer closeStore()

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := cfg.Kafka.Brokers; cfg.Kafka.Enabled && len(brokers) > 0 && brokers[0] != "" {
		publisher = events.NewKafkaPublisher(brokers)
		logger.Info().Strs("brokers", brokers).Msg("Publishing offramp events to Kafka")
	} else {
		logger.Warn().Msg("Kafka not configured, events will not be published")
	}
	defer publisher.Close()

	api := backend.NewClient(&backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
	})

	catalog := provider.NewCatalog(nil)
	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.Backend.Timeout)
	if err := catalog.Load(loadCtx, api); err != nil {
		// handlers load lazily and answer PROVIDERS_LOADING until then
		logger.Warn().Err(err).Msg("Provider list unavailable at startup")
	}
	cancelLoad()

	rpc := chain.NewRPCClient(cfg.Chain.RPCURL, telemetry.NewTracedHTTPClient("chain-rpc", 30*time.Second))
	rpcSigner := chain.NewRPCSigner(rpc, cfg.Chain.ReceiptTimeout)
	var signer chain.Signer
	if cfg.Chain.UsesRPCSigner() {
		signer = rpcSigner
		logger.Info().Str("rpc_url", cfg.Chain.RPCURL).Msg("Signing transfers through the chain RPC")
	} else {
		logger.Info().Msg("Transfers are signed by clients and reported by hash")
	}

	orch := orchestrator.New(orchestrator.Config{
		Chain:             cfg.Chain.Name,
		ChainID:           cfg.Chain.ID,
		Token:             cfg.Chain.Token,
		Tokens:            cfg.Chain.TokenTable(),
		ExecuteIdempotent: cfg.Backend.ExecuteIdempotent,
		MaxExecuteRetries: cfg.Backend.MaxRetries,
		PollInterval:      cfg.Poller.Interval,
		Source:            serviceName,
	}, orchestrator.Deps{
		Backend:   api,
		Catalog:   catalog,
		Store:     store,
		Signer:    signer,
		Receipts:  rpcSigner,
		Publisher: publisher,
		Pollers:   poller.NewRegistry(api, cfg.Poller.Interval),
		Ledger:    ledgerOrNil(ledger),
	})

	var history handler.History
	if ledger != nil {
		history = ledger
	}
	h := handler.New(orch, api, history, handler.Config{
		JWTSecret:     cfg.Session.JWTSecret,
		TokenTTL:      cfg.Session.TTL,
		AsyncTransfer: cfg.Server.AsyncTransfer,
	})
	if cfg.Session.JWTSecret == "" {
		logger.Warn().Msg("session.jwt_secret is empty, session routes are unauthenticated")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Rahat Offramp Service",
		ErrorHandler: response.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Tracing())
	app.Use(middleware.Logger())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(middleware.CORSConfig{MaxAge: 600}))
	app.Use(metrics.Middleware(metrics.Config{
		ServiceName: serviceName,
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":           "healthy",
			"service":          serviceName,
			"providers_loaded": catalog.Loaded(),
			"active_pollers":   orch.Pollers().Len(),
		}
		if catalog.Loaded() {
			body["providers_loaded_at"] = catalog.LoadedAt()
		}
		return c.JSON(body)
	})
	app.Get("/metrics", metrics.Handler())
	app.Use("/docs", swagger.Handler(swagger.Config{Title: "Rahat Offramp API"}))

	h.Register(app.Group("/api/v1"), middleware.RateLimiter(middleware.RateLimitConfig{
		Max:      20,
		Duration: time.Minute,
	}))

	stopGauge := make(chan struct{})
	go reportActiveSessions(orch, stopGauge)

	port := getEnvOrDefault("PORT", strconv.Itoa(cfg.Server.Port))
	go func() {
		if err := app.Listen(cfg.Server.Host + ":" + port); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	logger.Info().Str("port", port).Msg("Offramp Service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Offramp Service")
	close(stopGauge)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
	orch.Shutdown()
}

// sessionStore picks the live session store. Redis keeps sessions across
// restarts and replicas; memory is for local runs.
func sessionStore(ctx context.Context, cfg *config.Config) (session.Store, func()) {
	if cfg.Session.Store != "redis" {
		logger.Warn().Msg("Using in-memory session store")
		return session.NewMemoryStore(), func() {}
	}

	rc, err := cache.NewRedisCache(ctx, cache.Config{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Using Redis session store")
	return session.NewRedisStore(rc, cfg.Session.TTL), func() { _ = rc.Close() }
}

// ledgerOrNil keeps a nil repository from becoming a non-nil interface.
func ledgerOrNil(r *repository.AttemptRepository) orchestrator.Ledger {
	if r == nil {
		return nil
	}
	return r
}

func reportActiveSessions(orch *orchestrator.Orchestrator, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := orch.CountActive(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to count active sessions")
			}
			cancel()
		}
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
