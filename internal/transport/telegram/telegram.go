// Package telegram adapts the bot to Telegram via telebot: it serves the
// chat command surface and implements the broadcast notification channel.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"trendbot/internal/logging"
	"trendbot/internal/provider"
	"trendbot/internal/store"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logging.Logger
	bot *tele.Bot

	store     store.Store
	providers *provider.Service

	runMu   sync.Mutex
	running bool
	stopped chan struct{}
	baseCtx context.Context
}

func New(cfg Config, st store.Store, providers *provider.Service, log logging.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		// Long polls hold the connection for the poll timeout, so the
		// client timeout must comfortably exceed it.
		Client: &http.Client{Timeout: timeout + 20*time.Second},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{log: log, bot: b, store: st, providers: providers}
	a.registerHandlers()
	return a, nil
}

// Start begins long polling. It returns immediately; polling runs until
// ctx is cancelled or Stop is called.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	a.stopped = make(chan struct{})
	a.baseCtx = ctx
	stopped := a.stopped
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.Stop()
	}()
	go func() {
		defer close(stopped)
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return
	}
	a.running = false
	a.bot.Stop()
	<-a.stopped
}

// handlerCtx is the parent for per-command contexts. After Start it is
// the polling context, so shutdown cancels in-flight handlers instead
// of leaving them to the per-command timeout.
func (a *Adapter) handlerCtx() context.Context {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.baseCtx == nil {
		return context.Background()
	}
	return a.baseCtx
}

// Send implements broadcast.Notifier: Markdown delivery to a chat id.
// telebot has no context plumbing, so cancellation is only checked up
// front; the bot's HTTP client timeout bounds the call itself.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	return err
}
