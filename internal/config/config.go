package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Manifest  string          `mapstructure:"manifest"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

type ChainConfig struct {
	// Network selects the address book entry (mainnet, xdai, matic).
	Network       string        `mapstructure:"network"`
	ChainID       int64         `mapstructure:"chain_id"`
	RPCEndpoint   string        `mapstructure:"rpc_endpoint"`
	BlockTime     time.Duration `mapstructure:"block_time"`
	StartBlock    uint64        `mapstructure:"start_block"`
	Confirmations uint64        `mapstructure:"confirmations"`
	LogRange      uint64        `mapstructure:"log_range"`
	FetchWorkers  int64         `mapstructure:"fetch_workers"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type ProcessorConfig struct {
	// MaxBlockEvents forces a commit of the block unit of work after this many events.
	MaxBlockEvents int `mapstructure:"max_block_events"`
	// IdleFlush hands a partially consumed Kafka block to the processor when
	// no further message arrives within it.
	IdleFlush time.Duration `mapstructure:"idle_flush"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PricingConfig struct {
	// PairLookup is "store" or "chain".
	PairLookup string `mapstructure:"pair_lookup"`
	// Balances is "ledger" or "chain".
	Balances string `mapstructure:"balances"`
}

type FeedConfig struct {
	// Source is "rpc", "kafka" or "file".
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// Topic must have one partition.
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RealtimeConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type SchedulerConfig struct {
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// A missing .env is fine; anything else is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("chain.network", "xdai")
	v.SetDefault("chain.block_time", "5s")
	v.SetDefault("chain.confirmations", 6)
	v.SetDefault("chain.log_range", 2000)
	v.SetDefault("chain.fetch_workers", 8)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("processor.max_block_events", 5000)
	v.SetDefault("processor.idle_flush", "500ms")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("store.backend", "postgres")
	v.SetDefault("store.redis.enabled", false)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.ttl", "10m")
	v.SetDefault("pricing.pair_lookup", "store")
	v.SetDefault("pricing.balances", "ledger")
	v.SetDefault("feed.source", "rpc")
	v.SetDefault("kafka.topic", "honeyswap.events")
	v.SetDefault("kafka.group_id", "honeyswap-indexer")
	v.SetDefault("realtime.flush_interval", "250ms")
	v.SetDefault("scheduler.stats_interval", "1m")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("manifest", "manifests/honeyswap.yaml")
}

// Validate rejects option values no component understands.
func (c *Config) Validate() error {
	if err := oneOf("store.backend", c.Store.Backend, "memory", "postgres"); err != nil {
		return err
	}
	if err := oneOf("pricing.pair_lookup", c.Pricing.PairLookup, "store", "chain"); err != nil {
		return err
	}
	if err := oneOf("pricing.balances", c.Pricing.Balances, "ledger", "chain"); err != nil {
		return err
	}
	if err := oneOf("feed.source", c.Feed.Source, "rpc", "kafka", "file"); err != nil {
		return err
	}
	if c.Feed.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka feed requires kafka.brokers")
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (want one of %s)", name, value, strings.Join(allowed, ", "))
}

func (c *DatabaseConfig) ConnectionString() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
