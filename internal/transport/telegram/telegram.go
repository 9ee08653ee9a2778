// Package telegram is the telebot-backed send adapter.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "lineupwatch/internal/transport"
	"lineupwatch/pkg/logx"
)

type Config struct {
	Token string
	// CallTimeout bounds one send call. 0 means 10s.
	CallTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token: cfg.Token,
		// Send-only: the bot is never started, so no poller runs.
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

var _ kit.Adapter = (*Adapter)(nil)

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		default:
		}
	}

	var opts []any
	topts := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		topts.ParseMode = opt.ParseMode
		topts.DisableWebPagePreview = opt.DisablePreview
	}
	opts = append(opts, topts)

	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, opts...)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	return nil
}
