package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Session   SessionConfig   `mapstructure:"session"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AsyncTransfer answers transfer routes with 202 instead of holding the
	// request open until the receipt arrives.
	AsyncTransfer bool `mapstructure:"async_transfer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Enabled bool     `mapstructure:"enabled"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	CollectorURL string `mapstructure:"collector_url"`
	Enabled      bool   `mapstructure:"enabled"`
}

// BackendConfig points at the offramp backend REST API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// ExecuteIdempotent allows the orchestrator to resubmit an execution
	// automatically after a transient failure.
	ExecuteIdempotent bool `mapstructure:"execute_idempotent"`
	MaxRetries        int  `mapstructure:"max_retries"`
}

type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// ChainConfig binds the network and token used for every offramp request.
type ChainConfig struct {
	Name           string                 `mapstructure:"name"`
	ID             int64                  `mapstructure:"id"`
	RPCURL         string                 `mapstructure:"rpc_url"`
	Token          string                 `mapstructure:"token"`
	// Decimals overrides the bound token's decimals when set.
	Decimals       int32                  `mapstructure:"decimals"`
	// Signer is "rpc" to sign through the node's unlocked account, or
	// "external" when clients sign and report the hash.
	Signer         string                 `mapstructure:"signer"`
	ReceiptTimeout time.Duration          `mapstructure:"receipt_timeout"`
	Tokens         map[string]TokenConfig `mapstructure:"tokens"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type SessionConfig struct {
	Store     string        `mapstructure:"store"`
	TTL       time.Duration `mapstructure:"ttl"`
	JWTSecret string        `mapstructure:"jwt_secret"`
}

func Load(configName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/offramp/")

	v.SetEnvPrefix("OFFRAMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Chain.Token = strings.ToUpper(cfg.Chain.Token)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.async_transfer", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "offramp")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "offramp")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.enabled", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "offramp-service")
	v.SetDefault("kafka.enabled", false)

	v.SetDefault("telemetry.service_name", "offramp-service")
	v.SetDefault("telemetry.collector_url", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("backend.base_url", "http://localhost:5500/v1/offramps")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.execute_idempotent", false)
	v.SetDefault("backend.max_retries", 3)

	v.SetDefault("chain.name", "base-sepolia")
	v.SetDefault("chain.id", 84532)
	v.SetDefault("chain.rpc_url", "http://localhost:8888")
	v.SetDefault("chain.token", "USDC")
	v.SetDefault("chain.decimals", 0)
	v.SetDefault("chain.signer", "external")
	v.SetDefault("chain.receipt_timeout", 2*time.Minute)

	v.SetDefault("poller.interval", 10*time.Second)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.jwt_secret", "")
}

// bindLegacyEnv keeps the short variable names used by existing deployments
// working next to the OFFRAMP_ prefixed ones.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("chain.name", "OFFRAMP_CHAIN_NAME", "OFFRAMP_NETWORK")
	_ = v.BindEnv("chain.token", "OFFRAMP_CHAIN_TOKEN", "OFFRAMP_TOKEN")
	_ = v.BindEnv("chain.decimals", "OFFRAMP_CHAIN_DECIMALS", "TOKEN_DECIMALS")
	_ = v.BindEnv("chain.rpc_url", "OFFRAMP_CHAIN_RPC_URL", "CHAIN_URL")
	_ = v.BindEnv("chain.id", "OFFRAMP_CHAIN_ID", "CHAIN_ID")
}
