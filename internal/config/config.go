package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Wallet used to sign marketplace transactions
	Wallet WalletConfig

	// Change-detecting poller configuration
	Poller PollerConfig

	// Off-chain metadata service configuration
	Metadata MetadataConfig

	// Gas price quoting
	Gas GasConfig

	// Transaction submission and confirmation
	Tx TxConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL          string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	ChainID         int64         `envconfig:"ETH_CHAIN_ID" default:"31337"`
	RequestTimeout  time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay      time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	ContractAddress string        `envconfig:"ETH_CONTRACT_ADDRESS" default:"0x5FbDB2315678afecb367f032d93F642f64180aa3"`
	DeployBlock     uint64        `envconfig:"ETH_DEPLOY_BLOCK" default:"0"`
}

// WalletConfig holds the signing key. An empty key runs the service read-only.
type WalletConfig struct {
	PrivateKey string `envconfig:"WALLET_PRIVATE_KEY" default:""`
}

// PollerConfig holds change-detection settings
type PollerConfig struct {
	DefaultInterval    time.Duration `envconfig:"POLLER_DEFAULT_INTERVAL" default:"10s"`
	MaxConcurrentCalls int64         `envconfig:"POLLER_MAX_CONCURRENT_CALLS" default:"8"`
	SubscriberBuffer   int           `envconfig:"POLLER_SUBSCRIBER_BUFFER" default:"16"`

	// Feeds opened by API reads are released after IdleTimeout without a request,
	// and at most MaxTracked of each kind are kept. Zero disables either limit.
	IdleTimeout time.Duration `envconfig:"POLLER_IDLE_TIMEOUT" default:"10m"`
	MaxTracked  int           `envconfig:"POLLER_MAX_TRACKED" default:"1024"`
}

// MetadataConfig holds settings for the token metadata service
type MetadataConfig struct {
	BaseURL     string        `envconfig:"METADATA_BASE_URL" default:"http://localhost:3001"`
	Timeout     time.Duration `envconfig:"METADATA_TIMEOUT" default:"10s"`
	WorkerCount int           `envconfig:"METADATA_WORKER_COUNT" default:"8"`
	CacheTTL    time.Duration `envconfig:"METADATA_CACHE_TTL" default:"24h"`
}

// GasConfig holds gas price quoting settings
type GasConfig struct {
	RefreshInterval   time.Duration `envconfig:"GAS_REFRESH_INTERVAL" default:"15s"`
	MultiplierPercent int64         `envconfig:"GAS_PRICE_MULTIPLIER_PERCENT" default:"110"`
	MaxPriceGwei      int64         `envconfig:"GAS_MAX_PRICE_GWEI" default:"500"`
}

// TxConfig holds transaction confirmation settings
type TxConfig struct {
	ConfirmationPollInterval time.Duration `envconfig:"TX_CONFIRMATION_POLL_INTERVAL" default:"2s"`
	ConfirmationTimeout      time.Duration `envconfig:"TX_CONFIRMATION_TIMEOUT" default:"10m"`
	GasLimitMultiplierPct    uint64        `envconfig:"TX_GAS_LIMIT_MULTIPLIER_PERCENT" default:"120"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express
func (c *Config) Validate() error {
	if c.Poller.DefaultInterval <= 0 {
		return fmt.Errorf("POLLER_DEFAULT_INTERVAL must be positive, got %s", c.Poller.DefaultInterval)
	}
	if c.Poller.MaxConcurrentCalls < 1 {
		return fmt.Errorf("POLLER_MAX_CONCURRENT_CALLS must be at least 1, got %d", c.Poller.MaxConcurrentCalls)
	}
	if c.Poller.IdleTimeout < 0 {
		return fmt.Errorf("POLLER_IDLE_TIMEOUT must not be negative, got %s", c.Poller.IdleTimeout)
	}
	if c.Poller.MaxTracked < 0 {
		return fmt.Errorf("POLLER_MAX_TRACKED must not be negative, got %d", c.Poller.MaxTracked)
	}
	if c.Metadata.WorkerCount < 1 {
		return fmt.Errorf("METADATA_WORKER_COUNT must be at least 1, got %d", c.Metadata.WorkerCount)
	}
	if c.Gas.MultiplierPercent < 100 {
		return fmt.Errorf("GAS_PRICE_MULTIPLIER_PERCENT must be at least 100, got %d", c.Gas.MultiplierPercent)
	}
	if c.Tx.ConfirmationPollInterval <= 0 {
		return fmt.Errorf("TX_CONFIRMATION_POLL_INTERVAL must be positive, got %s", c.Tx.ConfirmationPollInterval)
	}
	return nil
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
