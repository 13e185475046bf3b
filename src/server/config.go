package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the listen port for the ops endpoints.
type Config struct {
	Port string `envconfig:"PORT" default:"9898"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
