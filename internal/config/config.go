package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// ChainRPCMap maps chain ids to RPC endpoints, decoded from
// semicolon-separated "<chainId>=<url>" pairs.
type ChainRPCMap map[uint64]string

// Decode implements envconfig.Decoder.
func (m *ChainRPCMap) Decode(value string) error {
	urls := make(ChainRPCMap)
	for _, pair := range strings.Split(value, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, url, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid chain RPC entry %q, want <chainId>=<url>", pair)
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id in entry %q: %w", pair, err)
		}
		urls[chainID] = strings.TrimSpace(url)
	}
	*m = urls
	return nil
}

// Config holds the service configuration, loaded from environment
// variables with development defaults.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":9000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// SigningKeyHex is the ES256 token signing key as hex-encoded SEC1
	// DER bytes. Empty means generate an ephemeral key (development
	// only: tokens do not survive restarts).
	SigningKeyHex string `envconfig:"SIGNING_KEY_HEX"`

	// ChainRPCURLs maps chain ids to RPC endpoints for Safe wallet
	// verification, e.g. "1=https://eth.example;137=https://poly.example".
	ChainRPCURLs ChainRPCMap `envconfig:"CHAIN_RPC_URLS"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
