package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/omnigate/omnigate/internal/consts"
)

var initHwd = &InitRunner{}

type InitRunner struct{}

var (
	cSuccess = color.New(color.FgGreen)
	cWarn    = color.New(color.FgYellow)
	cDim     = color.New(color.FgHiBlack)
)

const starterConfig = `gateway:
  bind: "0.0.0.0:8080"
  request_timeout: 30

logging:
  level: info
  output: stdout

# Forward every unified event to an external consumer. Leave the url empty to
# disable the sink.
webhook:
  url: ""
  timeout_sec: 10

# Shared verify token for the Messenger/Instagram webhook subscription.
meta_webhook:
  verify_token: ""

# Channel instances, keyed by account id.
channels: {}
  # my-whatsapp:
  #   type: whatsapp
  #   enabled: true
  #   whatsapp:
  #     print_qr: true
  # my-bot:
  #   type: telegram
  #   enabled: true
  #   telegram:
  #     bot_token: "123456:ABC..."
  # site-chat:
  #   type: webchat
  #   enabled: true
  # my-page:
  #   type: facebook
  #   enabled: true
  #   facebook:
  #     page_id: "1234567890"
  #     page_access_token: "EAAB..."
`

func (r *InitRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a starter config file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing config file",
			},
		},
		Action: r.run,
	}
}

func (r *InitRunner) run(_ context.Context, cmd *cli.Command) error {
	path := consts.DefaultConfigPath()

	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		cWarn.Printf("Config file already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	cSuccess.Printf("Wrote starter config to %s\n", path)
	cDim.Println("Edit the channels section, then start with: omnigate gateway run")
	return nil
}
