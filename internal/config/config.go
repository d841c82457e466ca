package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the relay gateway
type Config struct {
	Server    ServerConfig    `json:"server"`
	MongoDB   MongoDBConfig   `json:"mongodb"`
	Redis     RedisConfig     `json:"redis"`
	Chain     ChainConfig     `json:"chain"`
	Ledger    LedgerConfig    `json:"ledger"`
	Quota     QuotaConfig     `json:"quota"`
	IPFS      IPFSConfig      `json:"ipfs"`
	Admin     AdminConfig     `json:"admin"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI            string        `json:"uri"`
	Database       string        `json:"database"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	MaxPoolSize    uint64        `json:"max_pool_size"`
}

// RedisConfig holds Redis connection configuration for the distributed
// quota store. Addr may be empty when QUOTA_STORE=memory.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ChainConfig holds chain RPC and relay key configuration
type ChainConfig struct {
	RPCURL          string        `json:"rpc_url"`
	RelayerKey      string        `json:"-"`
	ContractAddress string        `json:"contract_address"`
	Timeout         time.Duration `json:"timeout"`
	GasPriceTTL     time.Duration `json:"gas_price_ttl"`
	// ExchangeRate converts whole native units (CFX) to fiat (CNY).
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// LedgerConfig holds balance store configuration
type LedgerConfig struct {
	// Store selects the balance store backend: "memory" or "mongo".
	Store string `json:"store"`
	// File is an optional JSON snapshot path for the memory store.
	File string `json:"file"`
	// MinReserveFen is the minimum balance (in fen) that must remain
	// after a charge.
	MinReserveFen int64 `json:"min_reserve_fen"`
}

// QuotaConfig holds the static default limits and the quota store selection.
// A zero cap means unlimited for that dimension.
type QuotaConfig struct {
	// Store selects the quota store backend: "memory" or "redis".
	Store string `json:"store"`
	// File is an optional JSON snapshot path for the memory store.
	File              string `json:"file"`
	MaxTxPerDay       int64  `json:"max_tx_per_day"`
	MaxFenPerTx       int64  `json:"max_fen_per_tx"`
	MaxFenPerDay      int64  `json:"max_fen_per_day"`
	AlertThresholdFen int64  `json:"alert_threshold_fen"`
}

// IPFSConfig holds the off-chain object store configuration
type IPFSConfig struct {
	APIURL  string        `json:"api_url"`
	APIKey  string        `json:"-"`
	Gateway string        `json:"gateway"`
	Timeout time.Duration `json:"timeout"`
}

// AdminConfig holds operator credentials for the administrative surface
type AdminConfig struct {
	User string `json:"user"`
	Pass string `json:"-"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	WindowSize        time.Duration `json:"window_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `json:"level"`
	Environment string   `json:"environment"`
	OutputPaths []string `json:"output_paths"`
}

// LoadConfig loads configuration from environment variables with defaults.
// A .env file in the working directory is applied first if present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		MongoDB: MongoDBConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "relay_gateway"),
			ConnectTimeout: getDurationEnv("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			MaxPoolSize:    getUint64Env("MONGODB_MAX_POOL_SIZE", 100),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("ESPACE_RPC_URL", "https://evm.confluxrpc.com"),
			RelayerKey:      getEnv("RELAYER_PRIVATE_KEY", ""),
			ContractAddress: getEnv("NFT_CONTRACT_ADDRESS", ""),
			Timeout:         getDurationEnv("CHAIN_RPC_TIMEOUT", 30*time.Second),
			GasPriceTTL:     getDurationEnv("GAS_PRICE_CACHE_TTL", 5*time.Second),
			ExchangeRate:    getDecimalEnv("EXCHANGE_RATE_CFX_CNY", "5.5"),
		},
		Ledger: LedgerConfig{
			Store:         getEnv("LEDGER_STORE", "mongo"),
			File:          getEnv("LEDGER_FILE", ""),
			MinReserveFen: getFenEnv("MIN_FIAT_BALANCE", "1"),
		},
		Quota: QuotaConfig{
			Store:             getEnv("QUOTA_STORE", "memory"),
			File:              getEnv("QUOTA_FILE", ""),
			MaxTxPerDay:       int64(getIntEnv("MAX_TX_PER_DAY", 0)),
			MaxFenPerTx:       getFenEnv("MAX_FIAT_PER_TX", "0"),
			MaxFenPerDay:      getFenEnv("MAX_FIAT_PER_DAY", "0"),
			AlertThresholdFen: getFenEnv("ALERT_FIAT_THRESHOLD", "0"),
		},
		IPFS: IPFSConfig{
			APIURL:  getEnv("IPFS_API_URL", ""),
			APIKey:  getEnv("IPFS_API_KEY", ""),
			Gateway: getEnv("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			Timeout: getDurationEnv("IPFS_TIMEOUT", 30*time.Second),
		},
		Admin: AdminConfig{
			User: getEnv("ADMIN_USER", ""),
			Pass: getEnv("ADMIN_PASS", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
			WindowSize:        getDurationEnv("RATE_LIMIT_WINDOW_SIZE", time.Minute),
			CleanupInterval:   getDurationEnv("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("LOG_ENVIRONMENT", "development"),
			OutputPaths: getStringSliceEnv("LOG_OUTPUT_PATHS", []string{"stdout"}),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uint64Value, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uint64Value
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}

// getFenEnv reads a fiat amount expressed in whole currency units (yuan,
// possibly fractional) and returns it in fen (currency subunits).
func getFenEnv(key, defaultValue string) int64 {
	d := getDecimalEnv(key, defaultValue)
	return d.Shift(2).IntPart()
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}
