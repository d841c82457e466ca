package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/phuhao00/conflux-demo/internal/audit"
	"github.com/phuhao00/conflux-demo/internal/chain"
	"github.com/phuhao00/conflux-demo/internal/config"
	"github.com/phuhao00/conflux-demo/internal/gateway"
	"github.com/phuhao00/conflux-demo/internal/handlers"
	"github.com/phuhao00/conflux-demo/internal/ledger"
	"github.com/phuhao00/conflux-demo/internal/metadata"
	"github.com/phuhao00/conflux-demo/internal/middleware"
	"github.com/phuhao00/conflux-demo/internal/quota"
	"github.com/phuhao00/conflux-demo/pkg/cache"
	"github.com/phuhao00/conflux-demo/pkg/logger"
	"github.com/phuhao00/conflux-demo/pkg/metrics"
	"github.com/phuhao00/conflux-demo/pkg/ratelimiter"
)

// Server represents the relay gateway application
type Server struct {
	httpServer  *http.Server
	config      *config.Config
	mongoClient *mongo.Client
	redisClient *redis.Client
	chainClient *chain.Client
	gasPrices   *cache.GasPriceCache
	ledgerStore ledger.Store
	quotaStore  quota.Store
	collector   *metrics.Collector
	rateLimiter *ratelimiter.RateLimiter
	router      *handlers.Router
	stoppers    []func()
}

func main() {
	cfg := config.LoadConfig()

	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		OutputPaths: cfg.Logging.OutputPaths,
	}
	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()
	log.Info("Starting NFT relay gateway",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("rpc_endpoint", cfg.Chain.RPCURL),
		zap.String("contract", cfg.Chain.ContractAddress),
		zap.String("ledger_store", cfg.Ledger.Store),
		zap.String("quota_store", cfg.Quota.Store),
		zap.String("exchange_rate", cfg.Chain.ExchangeRate.String()),
		zap.String("environment", cfg.Logging.Environment),
	)

	server, err := NewServer(cfg)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}

// NewServer creates a server instance with all dependencies wired
func NewServer(cfg *config.Config) (*Server, error) {
	log := logger.GetLogger()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	defer cancel()

	s := &Server{
		config:    cfg,
		collector: metrics.NewCollector(),
	}

	// MongoDB backs the mongo ledger store, the quota config history, and
	// the audit trail. The memory/memory combination runs without it.
	needsMongo := cfg.Ledger.Store == "mongo"
	var db *mongo.Database
	if needsMongo || cfg.MongoDB.URI != "" {
		clientOpts := mongooptions.Client().
			ApplyURI(cfg.MongoDB.URI).
			SetMaxPoolSize(cfg.MongoDB.MaxPoolSize)
		client, err := mongo.Connect(ctx, clientOpts)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			if needsMongo {
				return nil, fmt.Errorf("ping mongodb: %w", err)
			}
			log.Warn("MongoDB unreachable, falling back to in-memory stores", zap.Error(err))
		} else {
			s.mongoClient = client
			db = client.Database(cfg.MongoDB.Database)
		}
	}

	// Ledger store
	switch {
	case cfg.Ledger.Store == "mongo" && db != nil:
		s.ledgerStore = ledger.NewMongoStore(db)
	default:
		store, err := ledger.NewMemoryStore(cfg.Ledger.File)
		if err != nil {
			return nil, fmt.Errorf("open ledger store: %w", err)
		}
		s.ledgerStore = store
		s.stoppers = append(s.stoppers, store.Stop)
	}

	// Quota counter store
	if cfg.Quota.Store == "redis" {
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("QUOTA_STORE=redis requires REDIS_ADDR")
		}
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.quotaStore = quota.NewRedisStore(s.redisClient)
	} else {
		store, err := quota.NewMemoryStore(cfg.Quota.File)
		if err != nil {
			return nil, fmt.Errorf("open quota store: %w", err)
		}
		s.quotaStore = store
		s.stoppers = append(s.stoppers, store.Stop)
	}

	// Quota limits, falling back to the static env defaults
	fallback := quota.Config{
		MaxTxPerDay:       cfg.Quota.MaxTxPerDay,
		MaxFenPerTx:       cfg.Quota.MaxFenPerTx,
		MaxFenPerDay:      cfg.Quota.MaxFenPerDay,
		AlertThresholdFen: cfg.Quota.AlertThresholdFen,
	}
	var configStore quota.ConfigStore
	if db != nil {
		configStore = quota.NewMongoConfigStore(db, fallback)
	} else {
		configStore = quota.NewMemoryConfigStore(fallback)
	}
	quotaEngine := quota.NewEngine(s.quotaStore, configStore)

	// Audit sink
	var sink audit.Sink
	if db != nil {
		sink = audit.NewMongoSink(db)
	} else {
		sink = audit.NewMemorySink()
	}

	// Chain RPC, relayer key, estimator
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.Timeout, s.collector)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	s.chainClient = chainClient

	relayer, err := chain.NewRelayer(ctx, cfg.Chain.RelayerKey, chainClient)
	if err != nil {
		return nil, fmt.Errorf("init relayer: %w", err)
	}
	log.Info("Relayer account loaded",
		zap.String("address", relayer.Address().Hex()),
		zap.String("chain_id", relayer.ChainID().String()),
	)

	s.gasPrices = cache.New(cfg.Chain.GasPriceTTL)
	s.stoppers = append(s.stoppers, s.gasPrices.Stop)
	estimator := chain.NewEstimator(chainClient, s.gasPrices, cfg.Chain.RPCURL, cfg.Chain.ExchangeRate, s.collector)

	// Metadata object store
	var objects metadata.ObjectStore
	if cfg.IPFS.APIURL != "" {
		objects = metadata.NewIPFSStore(cfg.IPFS.APIURL, cfg.IPFS.APIKey, cfg.IPFS.Gateway, cfg.IPFS.Timeout)
	} else {
		log.Warn("No IPFS API configured, metadata uploads stay in memory")
		objects = metadata.NewMemoryStore()
	}

	gw := gateway.New(s.ledgerStore, quotaEngine, estimator, relayer, chainClient, objects, sink, s.collector, gateway.Options{
		DefaultContract: common.HexToAddress(cfg.Chain.ContractAddress),
		MinReserveFen:   cfg.Ledger.MinReserveFen,
		SubmitTimeout:   cfg.Chain.Timeout,
	})

	s.rateLimiter = ratelimiter.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowSize)

	healthHandler := handlers.NewHealthHandler(s.healthChecks(), s.collector)
	s.router = handlers.NewRouter(
		handlers.NewRelayHandler(gw, objects),
		handlers.NewLedgerHandler(s.ledgerStore, sink),
		handlers.NewAdminHandler(configStore, sink),
		healthHandler,
		cfg.Admin.User,
		cfg.Admin.Pass,
	)

	log.Info("Server components initialized")
	return s, nil
}

// healthChecks wires one probe per live dependency
func (s *Server) healthChecks() map[string]handlers.CheckFunc {
	checks := map[string]handlers.CheckFunc{
		"chain_rpc": func(ctx context.Context) error {
			_, err := s.chainClient.ChainID(ctx)
			return err
		},
	}
	if s.mongoClient != nil {
		checks["mongodb"] = func(ctx context.Context) error {
			return s.mongoClient.Ping(ctx, readpref.Primary())
		}
	}
	if s.redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

// Start starts the HTTP server with graceful shutdown handling
func (s *Server) Start() error {
	log := logger.GetLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	s.setupMiddleware(engine)
	s.router.SetupHealthRoutes(engine)
	s.router.SetupRoutes(engine)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:           engine,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.startCleanupRoutines()

	go func() {
		log.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	return s.waitForShutdown()
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	engine.Use(logger.RecoveryMiddleware())
	engine.Use(logger.LoggingMiddleware())
	engine.Use(middleware.MetricsMiddleware(s.collector))
	engine.Use(s.rateLimiter.Middleware())
}

// startCleanupRoutines starts background cleanup tasks
func (s *Server) startCleanupRoutines() {
	go func() {
		ticker := time.NewTicker(s.config.RateLimit.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			s.rateLimiter.Cleanup()
		}
	}()
}

// waitForShutdown blocks until an interrupt and drains the server
func (s *Server) waitForShutdown() error {
	log := logger.GetLogger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.cleanup()
	log.Info("Server gracefully stopped")
	return nil
}

// cleanup releases all held resources
func (s *Server) cleanup() {
	log := logger.GetLogger()
	log.Info("Cleaning up services...")

	for _, stop := range s.stoppers {
		stop()
	}
	if s.chainClient != nil {
		s.chainClient.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}
	if s.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			log.Error("Error closing mongodb client", zap.Error(err))
		}
	}

	if err := logger.GetLogger().Sync(); err != nil {
		fmt.Printf("Error syncing logger: %v\n", err)
	}
}
