// Package config loads the registry tooling configuration from the
// environment and optional dotenv and YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/R3E-Network/property_registry/internal/chain"
	"github.com/R3E-Network/property_registry/internal/domain/property"
	"github.com/R3E-Network/property_registry/internal/source"
)

// DefaultEnvFiles are loaded in order; earlier files win.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config is the full process configuration.
type Config struct {
	RegistryAddress string `env:"PROPERTY_REGISTRY_ADDRESS"`

	Network    string        `env:"NETWORK"`
	RPCURL     string        `env:"RPC_URL"`
	ChainID    uint64        `env:"CHAIN_ID"`
	AlchemyID  string        `env:"ALCHEMY_ID"`
	PrivateKey string        `env:"PRIVATE_KEY"`
	RPCTimeout time.Duration `env:"RPC_TIMEOUT,default=30s"`
	// RPCRateLimit caps requests per second to the endpoint; 0 is unlimited.
	RPCRateLimit float64 `env:"RPC_RATE_LIMIT,default=0"`

	SourceStaleAfter time.Duration `env:"SOURCE_STALE_AFTER,default=30s"`
	SourceRetries    int           `env:"SOURCE_RETRIES,default=1"`
	RedisURL         string        `env:"REDIS_URL"`

	DatabaseURL  string `env:"DATABASE_URL"`
	SyncSchedule string `env:"SYNC_SCHEDULE,default=@every 5m"`
	HTTPAddr     string `env:"HTTP_ADDR,default=:8080"`

	CatalogFile  string `env:"CATALOG_FILE"`
	NetworksFile string `env:"NETWORKS_FILE,default=config/networks.yaml"`
	ArtifactPath string `env:"ARTIFACT_PATH,default=artifacts/contracts/PropertyRegistry.sol/PropertyRegistry.json"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// aliases maps variables to the names the web front end uses for them.
var aliases = map[string]string{
	"PROPERTY_REGISTRY_ADDRESS": "NEXT_PUBLIC_PROPERTY_REGISTRY_ADDRESS",
	"ALCHEMY_ID":                "NEXT_PUBLIC_ALCHEMY_ID",
}

// LoadEnvFiles loads dotenv files into the process environment. Variables
// already set are kept and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the default dotenv files and then the environment.
func Load() (*Config, error) {
	if err := LoadEnvFiles(DefaultEnvFiles...); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv decodes the process environment.
func FromEnv() (*Config, error) {
	for name, alias := range aliases {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			if v := os.Getenv(alias); v != "" {
				_ = os.Setenv(name, v)
			}
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, chain.ConfigError("decode environment: %v", err)
	}
	cfg.RegistryAddress = strings.TrimSpace(cfg.RegistryAddress)
	cfg.PrivateKey = strings.TrimSpace(cfg.PrivateKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that are malformed whenever they are set.
func (c *Config) Validate() error {
	if c.RegistryAddress != "" && !common.IsHexAddress(c.RegistryAddress) {
		return chain.ConfigError("PROPERTY_REGISTRY_ADDRESS %q is not a hex address", c.RegistryAddress)
	}
	if c.RPCTimeout < 0 {
		return chain.ConfigError("RPC_TIMEOUT must not be negative")
	}
	if c.RPCRateLimit < 0 {
		return chain.ConfigError("RPC_RATE_LIMIT must not be negative")
	}
	if c.SourceRetries < 0 {
		return chain.ConfigError("SOURCE_RETRIES must not be negative")
	}
	return nil
}

// RequireRegistry fails when no registry address is configured.
func (c *Config) RequireRegistry() error {
	if c.RegistryAddress == "" {
		return chain.ConfigError("PROPERTY_REGISTRY_ADDRESS is required (deploy the registry first)")
	}
	return nil
}

// RequirePrivateKey fails when no signing key is configured.
func (c *Config) RequirePrivateKey() error {
	if c.PrivateKey == "" {
		return chain.ConfigError("PRIVATE_KEY is required for write operations")
	}
	return nil
}

// RequireDatabase fails when no mirror database is configured.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return chain.ConfigError("DATABASE_URL is required for the catalog mirror")
	}
	return nil
}

// Registry returns the registry address. Call RequireRegistry first.
func (c *Config) Registry() common.Address {
	return common.HexToAddress(c.RegistryAddress)
}

// Selection returns the network selection inputs.
func (c *Config) Selection() chain.Selection {
	return chain.Selection{
		RPCURL:    c.RPCURL,
		ChainID:   c.ChainID,
		Network:   c.Network,
		AlchemyID: c.AlchemyID,
	}
}

// ChainConfig resolves the network and returns the client configuration.
func (c *Config) ChainConfig() (chain.Config, error) {
	network, err := chain.SelectNetwork(c.Selection(), LoadNetworksOrDefault(c.NetworksFile))
	if err != nil {
		return chain.Config{}, err
	}
	return chain.Config{
		Network:   network,
		Timeout:   c.RPCTimeout,
		RateLimit: c.RPCRateLimit,
	}, nil
}

// SourceConfig returns the reconciliation settings.
func (c *Config) SourceConfig(fallback []property.Property) source.Config {
	retries := c.SourceRetries
	if retries == 0 {
		retries = -1
	}
	return source.Config{
		StaleAfter: c.SourceStaleAfter,
		Retries:    retries,
		Fallback:   fallback,
	}
}
