package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config tunes the trading loop. A TakeProfitPct of zero enters without a
// target order.
type Config struct {
	LoopPeriod       time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	MarginAsset      string        `envconfig:"MARGIN_ASSET" default:"USDT"`
	RiskPct          float64       `envconfig:"RISK_PERCENT" default:"1"`
	MaxPositionPct   float64       `envconfig:"MAX_POSITION_PERCENT" default:"20"`
	MaxOpenPositions int           `envconfig:"MAX_OPEN_POSITIONS" default:"1"`
	TakeProfitPct    float64       `envconfig:"TAKE_PROFIT_PERCENT" default:"3"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
