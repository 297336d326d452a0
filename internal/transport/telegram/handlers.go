package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"trendbot/internal/logging"
	"trendbot/internal/provider"
	"trendbot/internal/store"
)

// handlerTimeout bounds the work behind a single chat command.
const handlerTimeout = 15 * time.Second

// Every handler replies in all cases: success, not-found and internal
// failure all map to a readable message. No command leaves the user
// without any response.
func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", a.wrap(a.handleStart))
	a.bot.Handle("/subscribe", a.wrap(a.handleSubscribe))
	a.bot.Handle("/unsubscribe", a.wrap(a.handleUnsubscribe))
	a.bot.Handle("/topics", a.wrap(a.handleTopics))

	for _, name := range a.providers.Names() {
		name := name
		a.bot.Handle("/"+name, a.wrap(func(ctx context.Context, c tele.Context) error {
			return a.handleTrending(ctx, c, name)
		}))
	}
}

func (a *Adapter) wrap(h func(ctx context.Context, c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(a.handlerCtx(), handlerTimeout)
		defer cancel()

		if err := h(ctx, c); err != nil {
			a.log.Error("command failed",
				logging.String("command", c.Text()),
				logging.Int64("chat_id", c.Chat().ID),
				logging.Err(err))
			return c.Send("Something went wrong, please try again later.")
		}
		return nil
	}
}

func (a *Adapter) handleStart(ctx context.Context, c tele.Context) error {
	if _, err := a.upsertSender(ctx, c); err != nil {
		return err
	}
	return c.Send("Hello! I'm trendbot.\n" +
		"Use /topics to see what you can follow, /subscribe <topic> to get updates, " +
		"and /unsubscribe <topic> to stop them.")
}

func (a *Adapter) handleSubscribe(ctx context.Context, c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Please provide a topic to subscribe to.\n" + a.topicHint(ctx))
	}

	topic, err := a.store.GetTopic(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return c.Send(fmt.Sprintf("Unknown topic %q.\n%s", name, a.topicHint(ctx)))
	}
	if err != nil {
		return err
	}

	user, err := a.upsertSender(ctx, c)
	if err != nil {
		return err
	}

	created, err := a.store.Subscribe(ctx, user.ID, topic.ID)
	if err != nil {
		return err
	}
	if !created {
		return c.Send(fmt.Sprintf("You are already subscribed to %s.", topic.Name))
	}
	return c.Send(fmt.Sprintf("Successfully subscribed to %s.", topic.Name))
}

func (a *Adapter) handleUnsubscribe(ctx context.Context, c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Please provide a topic to unsubscribe from.")
	}

	topic, err := a.store.GetTopic(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return c.Send(fmt.Sprintf("Unknown topic %q.\n%s", name, a.topicHint(ctx)))
	}
	if err != nil {
		return err
	}

	user, err := a.upsertSender(ctx, c)
	if err != nil {
		return err
	}

	removed, err := a.store.Unsubscribe(ctx, user.ID, topic.ID)
	if err != nil {
		return err
	}
	if !removed {
		return c.Send(fmt.Sprintf("You are not subscribed to %s.", topic.Name))
	}
	return c.Send(fmt.Sprintf("Successfully unsubscribed from %s.", topic.Name))
}

func (a *Adapter) handleTopics(ctx context.Context, c tele.Context) error {
	topics, err := a.store.ListTopics(ctx)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return c.Send("No topics are available yet.")
	}

	user, err := a.upsertSender(ctx, c)
	if err != nil {
		return err
	}
	mine, err := a.store.ListUserTopics(ctx, user.ID)
	if err != nil {
		return err
	}
	subscribed := make(map[int64]bool, len(mine))
	for _, t := range mine {
		subscribed[t.ID] = true
	}

	var b strings.Builder
	b.WriteString("Available topics:\n")
	for _, t := range topics {
		if subscribed[t.ID] {
			fmt.Fprintf(&b, "• %s ✅\n", t.Name)
		} else {
			fmt.Fprintf(&b, "• %s\n", t.Name)
		}
	}
	return c.Send(b.String())
}

func (a *Adapter) handleTrending(ctx context.Context, c tele.Context, name string) error {
	entries := a.providers.Entries(ctx, name)
	if len(entries) == 0 {
		return c.Send("No data available at the moment.")
	}
	return c.Send(provider.Join(entries), tele.ModeMarkdown)
}

// upsertSender lazily registers the sending user; registration is an
// atomic upsert keyed by chat id.
func (a *Adapter) upsertSender(ctx context.Context, c tele.Context) (store.User, error) {
	sender := c.Sender()
	if sender == nil {
		return store.User{}, errors.New("message has no sender")
	}
	return a.store.UpsertUser(ctx, sender.ID, sender.Username)
}

func (a *Adapter) topicHint(ctx context.Context) string {
	topics, err := a.store.ListTopics(ctx)
	if err != nil || len(topics) == 0 {
		return "Use /topics to list what is available."
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	return "Available topics: " + strings.Join(names, ", ")
}
