package manager

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config tunes trailing and the take-profit timeout. The percent knobs
// treat zero as off.
type Config struct {
	TrailActivationPct float64 `envconfig:"TRAIL_ACTIVATION_PERCENT" default:"1.0"`
	TrailCallbackPct   float64 `envconfig:"TRAIL_CALLBACK_PERCENT" default:"0.5"`
	StopLossPct        float64 `envconfig:"STOP_LOSS_PERCENT" default:"2"`
	TakeProfitPct      float64 `envconfig:"TAKE_PROFIT_PERCENT" default:"3"`
	TPTimeoutSec       int     `envconfig:"TP_TIMEOUT_SEC" default:"30"`
	SettleDelayMs      int     `envconfig:"MANAGER_SETTLE_DELAY_MS" default:"400"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
