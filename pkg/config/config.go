package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. PAYOUTX_STORE_BACKEND.
const EnvPrefix = "PAYOUTX"

const (
	StoreMemory     = "memory"
	StoreClickHouse = "clickhouse"
	StorePostgres   = "postgres"

	AnchorCurrentEra = "current"
	AnchorActiveEra  = "active"
)

type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	RPC       RPCConfig       `yaml:"rpc"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Temporal  TemporalConfig  `yaml:"temporal"`
	Query     QueryConfig     `yaml:"query"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rewards   RewardsConfig   `yaml:"rewards"`
}

type ChainConfig struct {
	Name       string   `yaml:"name"`
	Endpoints  []string `yaml:"endpoints"`
	StartBlock uint64   `yaml:"startBlock" split_words:"true"`
}

type RPCConfig struct {
	RPS             int           `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures int           `yaml:"breakerFailures" split_words:"true"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown" split_words:"true"`
	CacheSizeMB     int           `yaml:"cacheSizeMB" envconfig:"CACHE_SIZE_MB"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Database      string `yaml:"database"`
	ClickHouseDSN string `yaml:"clickhouseDSN" envconfig:"CLICKHOUSE_DSN"`
	PostgresURL   string `yaml:"postgresURL" envconfig:"POSTGRES_URL"`
}

type RedisConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channelPrefix" split_words:"true"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"hostPort" split_words:"true"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"taskQueue" split_words:"true"`
}

type QueryConfig struct {
	Listen    string `yaml:"listen"`
	JWTSecret string `yaml:"jwtSecret" envconfig:"JWT_SECRET"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type SchedulerConfig struct {
	// Spec is a six field cron expression (seconds first).
	Spec string `yaml:"spec"`
}

// RewardsConfig holds the claim window used for system-triggered payouts:
// dueEra = anchorEra - historyDepth + Offset.
type RewardsConfig struct {
	Anchor string `yaml:"anchor"`
	Offset int    `yaml:"offset"`
}

// Default returns a configuration that runs against a local sidecar with the in-memory store.
func Default() Config {
	return Config{
		Chain: ChainConfig{
			Name:      "polkadot",
			Endpoints: []string{"http://localhost:8080"},
		},
		RPC: RPCConfig{
			RPS:             50,
			Burst:           100,
			Timeout:         15 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
			CacheSizeMB:     32,
		},
		Store: StoreConfig{
			Backend:  StoreMemory,
			Database: "payoutx",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "payoutx",
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "payoutx",
			TaskQueue: "index:%s",
		},
		Query:     QueryConfig{Listen: ":3001"},
		Metrics:   MetricsConfig{Listen: ":9100"},
		Scheduler: SchedulerConfig{Spec: "*/30 * * * * *"},
		Rewards:   RewardsConfig{Anchor: AnchorCurrentEra},
	}
}

// Load starts from Default, merges the YAML file at path (when path is not empty) and finally
// applies PAYOUTX_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("error decoding config file %v: %w", path, err)
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	var errs []error
	if c.Chain.Name == "" {
		errs = append(errs, errors.New("chain.name is required"))
	}
	if len(c.Chain.Endpoints) == 0 {
		errs = append(errs, errors.New("chain.endpoints must not be empty"))
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreClickHouse:
		if c.Store.ClickHouseDSN == "" {
			errs = append(errs, errors.New("store.clickhouseDSN is required for the clickhouse backend"))
		}
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgresURL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.Rewards.Anchor {
	case AnchorCurrentEra, AnchorActiveEra:
	default:
		errs = append(errs, fmt.Errorf("rewards.anchor must be %q or %q, got %q", AnchorCurrentEra, AnchorActiveEra, c.Rewards.Anchor))
	}
	return errors.Join(errs...)
}
