package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the symmetric key that seals exchange credentials at rest.
// The default is a throwaway development key; production deployments must
// set their own.
type Config struct {
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY" default:"Pjk+k4hske5KkKtbaKSVDOgpllRl+0EI6oCAdx88XqI="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
