package scanner

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbol string `envconfig:"SCANNER_SYMBOL" default:"BTC"`
	Quote  string `envconfig:"SCANNER_QUOTE" default:"USDT"`

	KlineLimit    int     `envconfig:"SCANNER_KLINE_LIMIT" default:"100"`
	RSIPeriod     int     `envconfig:"SCANNER_RSI_PERIOD" default:"14"`
	EMAFast       int     `envconfig:"SCANNER_EMA_FAST" default:"9"`
	EMASlow       int     `envconfig:"SCANNER_EMA_SLOW" default:"21"`
	RSIOverbought float64 `envconfig:"SCANNER_RSI_OVERBOUGHT" default:"70"`
	RSIOversold   float64 `envconfig:"SCANNER_RSI_OVERSOLD" default:"30"`
	VolumeFloor   float64 `envconfig:"SCANNER_VOLUME_FLOOR" default:"0"`
	StopLossPct   float64 `envconfig:"STOP_LOSS_PERCENT" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
