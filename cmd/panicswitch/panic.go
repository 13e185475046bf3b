// Package panicswitch is the emergency kill switch. It runs as a separate
// process so it works even when the bot itself is wedged:
//  1. kill the bot process named in the lock file
//  2. cancel every open order
//  3. close every position at market
//  4. remove the lock file
package panicswitch

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"safetrader/src/connectors"
	"safetrader/src/lock"
)

type KillSwitch struct{}

func (k *KillSwitch) Run() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.Warn("PANIC KILL SWITCH ENGAGED")

	lockFile := lock.GetConfig().LockFile

	// The bot must die before positions are touched or the two processes
	// fight over the same orders.
	killBotProcess(lockFile)

	cfg, err := connectors.GetConfig().ResolveCredentials()
	if err != nil {
		logrus.WithError(err).Error("Failed to resolve exchange credentials")
		return err
	}
	client := connectors.NewBinanceFuturesClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cancelAllOrders(ctx, client)
	closeAllPositions(ctx, client)

	if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to remove lock file")
	} else {
		logrus.Info("Lock file removed")
	}

	logrus.Warn("Kill switch finished, verify the account by hand")
	return nil
}

func killBotProcess(lockFile string) {
	pid, err := lock.ReadPID(lockFile)
	if err != nil {
		logrus.WithError(err).Warn("No running instance found in lock file")
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		logrus.WithField("pid", pid).Warn("Process not found")
		return
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		logrus.WithError(err).WithField("pid", pid).Warn("Process already dead")
		return
	}
	logrus.WithField("pid", pid).Info("Sent SIGTERM to bot process")

	time.Sleep(time.Second)

	if proc.Signal(syscall.Signal(0)) == nil {
		if err := proc.Signal(syscall.SIGKILL); err == nil {
			logrus.WithField("pid", pid).Warn("Bot did not stop on SIGTERM, killed")
		}
	}
}

func cancelAllOrders(ctx context.Context, client *connectors.BinanceFuturesClient) {
	orders, err := client.FetchOpenOrders(ctx, "")
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch open orders")
		return
	}
	if len(orders) == 0 {
		logrus.Info("No open orders to cancel")
		return
	}

	cancelled := 0
	for _, order := range orders {
		if err := client.CancelOrder(ctx, order.Symbol, order.ID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"Symbol":  order.Symbol,
				"OrderID": order.ID,
			}).Error("Failed to cancel order")
			continue
		}
		cancelled++
	}
	logrus.WithField("cancelled", cancelled).Info("Open orders cancelled")
}

func closeAllPositions(ctx context.Context, client *connectors.BinanceFuturesClient) {
	positions, err := client.FetchPositions(ctx, "")
	if err != nil {
		logrus.WithError(err).Error("Failed to fetch positions")
		return
	}
	if len(positions) == 0 {
		logrus.Info("No open positions to close")
		return
	}

	closed := 0
	for _, position := range positions {
		if _, err := client.ClosePosition(ctx, position); err != nil {
			logrus.WithError(err).WithField("Symbol", position.Symbol).Error("Failed to close position")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"Symbol": position.Symbol,
			"Side":   position.Side,
			"Qty":    position.Quantity,
		}).Info("Position closed at market")
		closed++
	}
	logrus.WithField("closed", closed).Info("Positions closed")
}
