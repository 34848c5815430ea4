package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omnigate/omnigate/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "omnigate",
		Usage: "One gateway for WhatsApp, Telegram, Messenger, Instagram and webchat",
		Commands: []*cli.Command{
			gwHwd.cmd(),
			msgHwd.cmd(),
			initHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
