package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"safetrader/src/security"
)

type Config struct {
	BinanceAPIKey    string `envconfig:"BINANCE_API_KEY"`
	BinanceAPISecret string `envconfig:"BINANCE_API_SECRET"`
	BinanceBaseURL   string `envconfig:"BINANCE_BASE_URL" default:"https://fapi.binance.com"`

	// Encrypted alternatives to the plaintext credentials above, produced by
	// the keys subcommand. When set they win over the plaintext values.
	BinanceAPIKeyEnc    string `envconfig:"BINANCE_API_KEY_ENC"`
	BinanceAPISecretEnc string `envconfig:"BINANCE_API_SECRET_ENC"`

	StaleThresholdMs int   `envconfig:"STALE_THRESHOLD_MS" default:"10000"`
	RetryAttempts    int   `envconfig:"GATEWAY_RETRY_ATTEMPTS" default:"5"`
	RecvWindowMs     int64 `envconfig:"BINANCE_RECV_WINDOW_MS" default:"5000"`
	MetaCacheTTLSec  int   `envconfig:"SYMBOL_META_TTL_SEC" default:"3600"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ResolveCredentials unseals the encrypted credential variants when they are
// set, overriding the plaintext fields.
func (c Config) ResolveCredentials() (Config, error) {
	if c.BinanceAPIKeyEnc != "" {
		key, err := security.DecryptString(c.BinanceAPIKeyEnc)
		if err != nil {
			return c, fmt.Errorf("decrypt API key: %w", err)
		}
		c.BinanceAPIKey = key
	}
	if c.BinanceAPISecretEnc != "" {
		secret, err := security.DecryptString(c.BinanceAPISecretEnc)
		if err != nil {
			return c, fmt.Errorf("decrypt API secret: %w", err)
		}
		c.BinanceAPISecret = secret
	}
	return c, nil
}
