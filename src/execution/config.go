package execution

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxSpreadRatio float64 `envconfig:"MAX_SPREAD_RATIO" default:"0.001"`
	StopAttempts   int     `envconfig:"STOP_ORDER_ATTEMPTS" default:"5"`
	TPAttempts     int     `envconfig:"TP_ORDER_ATTEMPTS" default:"3"`
	CloseAttempts  int     `envconfig:"EMERGENCY_CLOSE_ATTEMPTS" default:"5"`
	SettleDelayMs  int     `envconfig:"ORDER_SETTLE_DELAY_MS" default:"400"`
	RetryDelayMs   int     `envconfig:"ORDER_RETRY_DELAY_MS" default:"500"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
