package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/model"
)

type Config struct {
	WebhookURL string `envconfig:"NOTIFY_WEBHOOK_URL"`
	TimeoutSec int    `envconfig:"NOTIFY_TIMEOUT_SEC" default:"5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Notifier posts events to a webhook as JSON. Delivery is best-effort:
// failures are logged and never propagated to trading code.
type Notifier struct {
	url  string
	http *resty.Client
}

func NewNotifier(cfg Config) *Notifier {
	return &Notifier{
		url: cfg.WebhookURL,
		http: resty.New().
			SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
			SetRetryCount(1),
	}
}

// Notify sends one event. A Notifier with no URL configured is a no-op.
func (n *Notifier) Notify(ctx context.Context, event model.Event) {
	if n == nil || n.url == "" {
		return
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		Post(n.url)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"title": event.Title}).
			Warn("Failed to deliver notification")
		return
	}
	if resp.StatusCode() >= 300 {
		logger.WithFields(logger.Fields{
			"title":  event.Title,
			"status": resp.StatusCode(),
		}).Warn("Notification endpoint returned non-success")
	}
}
