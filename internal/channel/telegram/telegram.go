package telegram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/utils"
)

var _ channel.Adapter = (*Adapter)(nil)

type Adapter struct {
	accountID string
	config    Config
	events    channel.Events

	mu        sync.RWMutex
	bot       *bot.Bot
	botID     int64 // resolved via GetMe before any message is processed
	connected bool
	lastErr   string
	cancel    context.CancelFunc
}

// NewAdapter is the channel.Factory for Telegram. Config validation happens
// here, before any network call; the bot session is created in Connect.
func NewAdapter(accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	cfg, err := ParseConfig(settings)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		accountID: accountID,
		config:    *cfg,
		events:    events,
	}, nil
}

func (a *Adapter) Type() channel.Type { return channel.Telegram }

func (a *Adapter) AccountID() string { return a.accountID }

// Connect creates the bot session, resolves the bot's own identity (needed
// for FromMe detection before the first update arrives), and starts long
// polling in the background. Re-entrant: a second Connect while polling is a
// no-op.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	// The HTTP client timeout must outlast the long-poll window or every
	// quiet poll would surface as a transport error.
	tgBot, err := bot.New(a.config.BotToken,
		bot.WithDefaultHandler(a.handleUpdate),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(a.config.PollTimeout, &http.Client{Timeout: a.config.PollTimeout + 10*time.Second}),
	)
	if err != nil {
		a.setDisconnected(err.Error())
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := tgBot.GetMe(ctx)
	if err != nil {
		a.setDisconnected(err.Error())
		return fmt.Errorf("telegram auth failed (token %s): %w", utils.MaskSecret(a.config.BotToken), err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.bot = tgBot
	a.botID = me.ID
	a.connected = true
	a.lastErr = ""
	a.cancel = cancel
	a.mu.Unlock()

	go tgBot.Start(pollCtx)

	logs.CtxInfo(ctx, "[channel:telegram] %s connected as @%s (id=%d)", a.accountID, me.Username, me.ID)
	a.events.EmitStatus(a.Status())
	return nil
}

// Disconnect stops polling. Safe to call when never connected.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	tgBot := a.bot
	a.cancel = nil
	a.bot = nil
	a.connected = false
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if tgBot != nil {
		_, _ = tgBot.Close(ctx)
	}

	a.events.EmitStatus(a.Status())
	return nil
}

func (a *Adapter) setDisconnected(reason string) {
	a.mu.Lock()
	a.connected = false
	a.lastErr = reason
	a.mu.Unlock()
	a.events.EmitStatus(a.Status())
}

func (a *Adapter) Status() *channel.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &channel.Status{
		Type:      channel.Telegram,
		AccountID: a.accountID,
		Connected: a.connected,
		Error:     a.lastErr,
	}
}

// SendMessage delivers text and/or media to the chat. Telegram assigns its
// own numeric message id; the id of the first sent part is returned.
func (a *Adapter) SendMessage(ctx context.Context, req *channel.SendRequest) (string, error) {
	a.mu.RLock()
	tgBot := a.bot
	connected := a.connected
	a.mu.RUnlock()

	if !connected || tgBot == nil {
		return "", fmt.Errorf("%w: telegram %s", channel.ErrNotConnected, a.accountID)
	}

	chatID, err := strconv.ParseInt(req.ChatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", req.ChatID, err)
	}

	replyParams := toReplyParameters(req.ReplyTo)

	if len(req.Media) == 0 {
		msg, err := tgBot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          chatID,
			Text:            req.Text,
			ReplyParameters: replyParams,
		})
		if err != nil {
			return "", fmt.Errorf("telegram send: %w", err)
		}
		return strconv.Itoa(msg.ID), nil
	}

	firstID := ""
	for i, att := range req.Media {
		caption := att.Caption
		if i == 0 && caption == "" {
			caption = req.Text
		}
		// Reply context only on the first part.
		var rp *models.ReplyParameters
		if i == 0 {
			rp = replyParams
		}
		id, err := a.sendMedia(ctx, tgBot, chatID, &att, caption, rp)
		if err != nil {
			return firstID, fmt.Errorf("telegram send media[%d]: %w", i, err)
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

func (a *Adapter) sendMedia(ctx context.Context, tgBot *bot.Bot, chatID int64, att *channel.MediaAttachment, caption string, rp *models.ReplyParameters) (string, error) {
	if !att.Sendable() {
		return "", fmt.Errorf("%w: attachment has neither url nor data", channel.ErrEmptyMessage)
	}

	file := toInputFile(att)

	var (
		msg *models.Message
		err error
	)
	switch att.Type {
	case channel.MediaImage:
		msg, err = tgBot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: chatID, Photo: file, Caption: caption, ReplyParameters: rp,
		})
	case channel.MediaVideo:
		msg, err = tgBot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: chatID, Video: file, Caption: caption, ReplyParameters: rp,
		})
	case channel.MediaAudio:
		msg, err = tgBot.SendAudio(ctx, &bot.SendAudioParams{
			ChatID: chatID, Audio: file, Caption: caption, ReplyParameters: rp,
		})
	case channel.MediaSticker:
		msg, err = tgBot.SendSticker(ctx, &bot.SendStickerParams{
			ChatID: chatID, Sticker: file, ReplyParameters: rp,
		})
	default:
		msg, err = tgBot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID, Document: file, Caption: caption, ReplyParameters: rp,
		})
	}
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

func toInputFile(att *channel.MediaAttachment) models.InputFile {
	if att.URL != "" {
		return &models.InputFileString{Data: att.URL}
	}
	name := att.FileName
	if name == "" {
		name = "attachment"
	}
	return &models.InputFileUpload{
		Filename: name,
		Data:     bytes.NewReader(att.Data),
	}
}

func toReplyParameters(replyTo *channel.ReplyRef) *models.ReplyParameters {
	if replyTo == nil {
		return nil
	}
	msgID, err := strconv.Atoi(replyTo.ID)
	if err != nil {
		// Quoting context from a foreign channel; ignore rather than error.
		return nil
	}
	return &models.ReplyParameters{MessageID: msgID}
}

// handleUpdate is the default handler for incoming Telegram updates. It
// normalizes the update into a unified message; anything that does not
// translate is dropped with a diagnostic log, never a crash of the polling
// loop.
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	defer func() {
		if r := recover(); r != nil {
			logs.CtxError(ctx, "[channel:telegram] update translation panic: %v", r)
		}
	}()

	if update == nil || update.Message == nil {
		return
	}

	a.mu.RLock()
	botID := a.botID
	a.mu.RUnlock()

	msg := a.toUnifiedMessage(update.Message, botID)
	if msg == nil {
		logs.CtxDebug(ctx, "[channel:telegram] update %d dropped: no user-visible content", update.ID)
		return
	}

	a.resolveMediaURLs(ctx, b, update.Message, msg)
	a.events.EmitMessage(msg)
}

// resolveMediaURLs fills in downloadable URLs for inbound attachments.
// Failures leave the attachment metadata-only.
func (a *Adapter) resolveMediaURLs(ctx context.Context, b *bot.Bot, src *models.Message, msg *channel.Message) {
	for i := range msg.Media {
		fileID := inboundFileID(src, msg.Media[i].Type)
		if fileID == "" {
			continue
		}
		file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
		if err != nil {
			logs.CtxWarn(ctx, "[channel:telegram] resolve file %s: %v", fileID, err)
			continue
		}
		msg.Media[i].URL = b.FileDownloadLink(file)
	}
}
