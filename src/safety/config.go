package safety

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StopLossPct   float64 `envconfig:"STOP_LOSS_PERCENT" default:"2"`
	QtyTolerance  float64 `envconfig:"QTY_TOLERANCE" default:"0.00001"`
	SettleDelayMs int     `envconfig:"SYNC_SETTLE_DELAY_MS" default:"400"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
