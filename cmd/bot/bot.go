package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"safetrader/src/connectors"
	"safetrader/src/execution"
	"safetrader/src/executors"
	"safetrader/src/lock"
	"safetrader/src/manager"
	"safetrader/src/notify"
	"safetrader/src/risk"
	"safetrader/src/safety"
	"safetrader/src/scanner"
	"safetrader/src/server"
)

type Bot struct{}

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Start wires the whole trading stack together and blocks until the process
// is signalled or the loop halts on a critical failure.
func (b *Bot) Start() error {
	SetupLogger()
	defer handlePanic()

	instanceLock := lock.New(lock.GetConfig().LockFile)
	if err := instanceLock.Acquire(); err != nil {
		return err
	}
	defer instanceLock.Release()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	client, err := buildClient(ctx)
	if err != nil {
		return err
	}

	notifier := notify.NewNotifier(notify.GetConfig())
	engine := execution.NewEngine(client, notifier, execution.GetConfig())
	synchronizer := safety.NewSynchronizer(client, notifier, safety.GetConfig())

	// Cold-start check; the first loop pass repairs whatever this finds.
	if protected, err := synchronizer.Protected(ctx); err != nil {
		logrus.WithError(err).Warn("Could not verify position protection at startup")
	} else if !protected {
		logrus.Warn("Unprotected positions detected at startup")
	}

	positions := manager.NewPositionManager(client, notifier, manager.GetConfig())
	signals := scanner.NewBinanceScanner(scanner.GetConfig())
	ledger := risk.NewLedger()
	riskCtl := risk.NewController(risk.GetConfig())

	loop := executors.NewLoop(
		executors.GetConfig(),
		client,
		engine,
		synchronizer,
		positions,
		signals,
		ledger,
		riskCtl,
		notifier,
	)

	go server.StartServer(ctx, server.GetConfig().Port, positions, synchronizer, ledger, loop)

	if err := executors.StartLoop(ctx, loop); err != nil {
		logrus.WithError(err).Error("Trading loop exited with error")
		return err
	}
	return nil
}

func handlePanic() {
	if r := recover(); r != nil {
		logrus.WithError(fmt.Errorf("%+v", r)).Error("Application safetrader panic")
		//nolint
		time.Sleep(time.Second * 5)
	}
}

// buildClient assembles the exchange gateway, decrypting sealed credentials
// when the encrypted variants are configured.
func buildClient(ctx context.Context) (*connectors.BinanceFuturesClient, error) {
	cfg, err := connectors.GetConfig().ResolveCredentials()
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve exchange credentials")
		return nil, err
	}

	client := connectors.NewBinanceFuturesClient(cfg)
	if err := client.Connect(ctx); err != nil {
		logrus.WithError(err).Error("Failed to load exchange trading rules")
		return nil, err
	}
	return client, nil
}
