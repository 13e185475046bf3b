package lock

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LockFile string `envconfig:"LOCK_FILE" default:"safetrader.lock"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
