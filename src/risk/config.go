package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseLeverage int `envconfig:"BASE_LEVERAGE" default:"10"`
	MinLeverage  int `envconfig:"MIN_LEVERAGE" default:"3"`
	MaxLeverage  int `envconfig:"MAX_LEVERAGE" default:"20"`

	HighVolatilityPct float64 `envconfig:"HIGH_VOLATILITY_PERCENT" default:"3.0"`
	LowVolatilityPct  float64 `envconfig:"LOW_VOLATILITY_PERCENT" default:"1.0"`

	GoodWinRatePct float64 `envconfig:"GOOD_WIN_RATE_PERCENT" default:"60"`
	PoorWinRatePct float64 `envconfig:"POOR_WIN_RATE_PERCENT" default:"40"`

	MaxDrawdownPct   float64 `envconfig:"MAX_DRAWDOWN_PERCENT" default:"20"`
	CrossDrawdownPct float64 `envconfig:"CROSS_DRAWDOWN_PERCENT" default:"10"`

	TrendThreshold float64 `envconfig:"TREND_THRESHOLD" default:"0.7"`
	MinSample      int     `envconfig:"MIN_RISK_SAMPLE" default:"10"`

	LossReduceStreak int `envconfig:"LOSS_REDUCE_STREAK" default:"3"`
	LossHaltStreak   int `envconfig:"LOSS_HALT_STREAK" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
