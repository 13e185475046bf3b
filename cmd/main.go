package main

import (
	"fmt"
	"os"

	"safetrader/cmd/bot"
	"safetrader/cmd/keys"
	"safetrader/cmd/panicswitch"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Safetrader CMD"
	app.Usage = "The Safetrader command line interface"

	app.Commands = []cli.Command{
		botCMD,
		panicCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	botCMD = cli.Command{
		Name:        "bot",
		Usage:       "run the trading bot",
		Action:      botAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading loop with the HTTP status server`,
	}
	panicCMD = cli.Command{
		Name:        "panic",
		Usage:       "emergency kill switch",
		Action:      panicAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Kill the bot, cancel all orders, close all positions`,
	}
	keysCMD = cli.Command{
		Name:      "keys",
		Usage:     "encrypt exchange API credentials",
		Action:    keysAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "key", Usage: "exchange API key"},
			cli.StringFlag{Name: "secret", Usage: "exchange API secret"},
		},
		Description: `Print sealed credential env vars for the deployment`,
	}
)

func botAction(_ *cli.Context) error {

	logrus.Info("Starting bot CMD")
	logrus.WithField("cmd", "bot")

	b := &bot.Bot{}
	err := b.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func panicAction(_ *cli.Context) error {

	logrus.Info("Starting panic CMD")
	logrus.WithField("cmd", "panic")

	k := &panicswitch.KillSwitch{}
	err := k.Run()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func keysAction(c *cli.Context) error {

	logrus.Info("Starting keys CMD")
	logrus.WithField("cmd", "keys")

	if err := keys.Run(c.String("key"), c.String("secret")); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
