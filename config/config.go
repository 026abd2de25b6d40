// Package config loads the service configuration from the environment.
// Network-specific addresses are keyed by chain id with built-in defaults
// for the supported networks; nothing is hard-coded per call.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
)

// Network holds the deployed contract addresses and endpoints for one chain.
type Network struct {
	ChainID      uint64 `envconfig:"CHAIN_ID"`
	EntryPoint   string `envconfig:"ENTRY_POINT"`
	Factory      string `envconfig:"FACTORY"`
	Paymaster    string `envconfig:"PAYMASTER"`
	BundlerURL   string `envconfig:"BUNDLER_URL"`
	PaymasterURL string `envconfig:"PAYMASTER_URL"`
	NodeURL      string `envconfig:"NODE_URL"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr   string        `envconfig:"LISTEN_ADDR" default:":9000"`
	RedisURL     string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	CookieDomain string        `envconfig:"COOKIE_DOMAIN" default:"send.app"`
	LogLevel     string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat    string        `envconfig:"LOG_FORMAT" default:"json"`
	ChallengeTTL time.Duration `envconfig:"CHALLENGE_TTL" default:"5m"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	// SigningKeyHex is the hex-encoded P-256 private key scalar used to
	// sign session tokens. A fresh key is generated when empty, which
	// invalidates sessions across restarts.
	SigningKeyHex string `envconfig:"SIGNING_KEY"`

	// Receipt polling bounds. Unbounded waiting is a bug, not resilience.
	ReceiptAttempts int           `envconfig:"RECEIPT_ATTEMPTS" default:"10"`
	ReceiptDelay    time.Duration `envconfig:"RECEIPT_DELAY" default:"1s"`
	ReceiptTimeout  time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"10s"`

	RPCTimeout time.Duration `envconfig:"RPC_TIMEOUT" default:"10s"`

	Network Network `envconfig:"NETWORK"`
}

// Built-in network defaults, selected by SENDAUTH_NETWORK_CHAIN_ID and
// overridable field by field from the environment.
var knownNetworks = map[uint64]Network{
	8453: {
		ChainID:    8453,
		EntryPoint: "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		NodeURL:    "https://mainnet.base.org",
	},
	84532: {
		ChainID:    84532,
		EntryPoint: "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		NodeURL:    "https://sepolia.base.org",
	},
}

// Load reads configuration from SENDAUTH_-prefixed environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SENDAUTH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if defaults, ok := knownNetworks[cfg.Network.ChainID]; ok {
		if cfg.Network.EntryPoint == "" {
			cfg.Network.EntryPoint = defaults.EntryPoint
		}
		if cfg.Network.NodeURL == "" {
			cfg.Network.NodeURL = defaults.NodeURL
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Network.ChainID == 0 {
		return fmt.Errorf("network chain id is required")
	}
	for name, addr := range map[string]string{
		"entry point": c.Network.EntryPoint,
		"factory":     c.Network.Factory,
		"paymaster":   c.Network.Paymaster,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	if c.Network.BundlerURL == "" || c.Network.PaymasterURL == "" || c.Network.NodeURL == "" {
		return fmt.Errorf("bundler, paymaster, and node endpoints are required")
	}
	return nil
}

// EntryPointAddress returns the parsed entry point address.
func (c *Config) EntryPointAddress() common.Address {
	return common.HexToAddress(c.Network.EntryPoint)
}

// PaymasterAddress returns the parsed paymaster address.
func (c *Config) PaymasterAddress() common.Address {
	return common.HexToAddress(c.Network.Paymaster)
}
