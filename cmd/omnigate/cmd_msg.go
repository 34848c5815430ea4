package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/channel/meta"
	"github.com/omnigate/omnigate/internal/channel/telegram"
	"github.com/omnigate/omnigate/internal/config"
	"github.com/omnigate/omnigate/internal/consts"
)

var msgHwd = &MsgRunner{}

type MsgRunner struct{}

// discardEvents satisfies the adapter event sink for one-off CLI sends where
// nothing consumes inbound traffic.
type discardEvents struct{}

func (discardEvents) EmitMessage(*channel.Message) {}
func (discardEvents) EmitStatus(*channel.Status)   {}
func (discardEvents) EmitContact(*channel.Contact) {}

func (r *MsgRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "msg",
		Usage: "Send a one-off message through a configured channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "accountId",
				Aliases: []string{"a"},
				Usage:   "Account ID defined in the config file",
			},
			&cli.StringFlag{
				Name:  "chatId",
				Usage: "Target chat ID or user ID",
			},
			&cli.StringFlag{
				Name:    "content",
				Aliases: []string{"m"},
				Usage:   "Message body",
			},
		},
		Action: r.run,
	}
}

func (r *MsgRunner) run(ctx context.Context, cmd *cli.Command) error {
	accountID := strings.TrimSpace(cmd.String("accountId"))
	if accountID == "" {
		return errors.New("--accountId is required")
	}
	chatID := strings.TrimSpace(cmd.String("chatId"))
	if chatID == "" {
		return errors.New("--chatId is required")
	}
	content := strings.TrimSpace(cmd.String("content"))
	if content == "" {
		return errors.New("--content cannot be empty")
	}

	cfg, err := config.Load(consts.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	chCfg, ok := cfg.Channels[accountID]
	if !ok {
		return fmt.Errorf("account %q was not found in the configured channels", accountID)
	}

	adapter, err := newOneShotAdapter(&chCfg)
	if err != nil {
		return err
	}

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s channel: %w", chCfg.Type, err)
	}
	defer func() { _ = adapter.Disconnect(ctx) }()

	id, err := adapter.SendMessage(ctx, &channel.SendRequest{
		Type:      chCfg.Type,
		AccountID: accountID,
		ChatID:    chatID,
		Text:      content,
	})
	if err != nil {
		return fmt.Errorf("send %s message: %w", chCfg.Type, err)
	}

	fmt.Printf("Sent message %s via %s channel %s to target %s\n", id, chCfg.Type, accountID, chatID)
	return nil
}

func newOneShotAdapter(cfg *channel.Config) (channel.Adapter, error) {
	switch cfg.Type {
	case channel.Telegram:
		return telegram.NewAdapter(cfg.AccountID, cfg.Settings(), discardEvents{})
	case channel.Facebook:
		return meta.NewFacebookAdapter(cfg.AccountID, cfg.Settings(), discardEvents{})
	case channel.Instagram:
		return meta.NewInstagramAdapter(cfg.AccountID, cfg.Settings(), discardEvents{})
	default:
		return nil, fmt.Errorf("channel type %q is not supported by the msg command, use a running gateway", cfg.Type)
	}
}
