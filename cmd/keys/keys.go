package keys

import (
	"errors"
	"fmt"

	"safetrader/src/security"
)

// Run seals the given API credentials with the configured credentials key
// and prints the env lines to copy into the deployment.
func Run(apiKey, apiSecret string) error {
	if apiKey == "" || apiSecret == "" {
		return errors.New("both --key and --secret are required")
	}

	sealedKey, err := security.EncryptString(apiKey)
	if err != nil {
		return fmt.Errorf("encrypt API key: %w", err)
	}
	sealedSecret, err := security.EncryptString(apiSecret)
	if err != nil {
		return fmt.Errorf("encrypt API secret: %w", err)
	}

	fmt.Printf("BINANCE_API_KEY_ENC=%s\n", sealedKey)
	fmt.Printf("BINANCE_API_SECRET_ENC=%s\n", sealedSecret)
	return nil
}
