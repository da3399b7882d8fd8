package app

import (
	"context"
	"fmt"
	"time"

	coretelegram "github.com/aleksashka/quiz-bot/core/telegram"
	"github.com/aleksashka/quiz-bot/core/telegram/callbacks"
	"github.com/aleksashka/quiz-bot/core/telegram/commands"
	tghelpers "github.com/aleksashka/quiz-bot/core/telegram/helpers"
	"github.com/aleksashka/quiz-bot/core/telegram/router"
	"github.com/aleksashka/quiz-bot/core/telegram/sender"
	"github.com/aleksashka/quiz-bot/internal/admission"
	"github.com/aleksashka/quiz-bot/internal/transport"
	"github.com/aleksashka/quiz-bot/internal/workflow"

	tele "gopkg.in/telebot.v4"
)

// setupRoutes builds the engine and coordinator around the live bot and
// registers every command and callback.
func (a *App) setupRoutes(_ context.Context, bot *tele.Bot, reg *coretelegram.Registry) ([]coretelegram.Route, error) {
	adminID := a.cfg.Telegram.AdminID

	tr := transport.NewTelebot(bot, sender.NewCaller(sender.Options{
		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
	}))

	engine := workflow.New(workflow.Config{
		Bank:      a.bank,
		Store:     a.store,
		Transport: tr,
		Messages:  a.msgs,
		AdminID:   adminID,
	})
	coordinator := admission.New(admission.Config{
		Store:     a.store,
		Transport: tr,
		Messages:  a.msgs,
		AdminID:   adminID,
		Quiz:      engine,
	})

	command := func(h func(context.Context, workflow.Event) error) tele.HandlerFunc {
		return func(c tele.Context) error {
			return h(tghelpers.BuildContext(c), eventFrom(c))
		}
	}

	reg.RegisterCommand("/start", commands.Command{
		Handler:     command(engine.HandleStart),
		Description: "Greeting and usage hints",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     command(engine.HandleStart),
		Description: "Same as /start",
	})
	reg.RegisterCommand("/info", commands.Command{
		Handler:     command(engine.HandleInfo),
		Description: "Register your name and details",
	})
	reg.RegisterCommand("/topic", commands.Command{
		Handler:     command(engine.HandleTopic),
		Description: "Pick a quiz topic",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     command(engine.HandleCancel),
		Description: "Abort the current workflow",
	})
	reg.RegisterCommand("/finish", commands.Command{
		Handler:     command(engine.HandleFinish),
		Description: "Abort and erase all your data",
	})
	reg.RegisterCommand("/reload", commands.Command{
		Handler:     command(engine.HandleReload),
		Description: "Re-read the question source",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(workflow.CallbackTopic, func(c tele.Context) error {
		ev := eventFrom(c)
		ev.Payload = callbacks.CallbackPayload(c)
		toast, err := engine.HandleTopicPick(tghelpers.BuildContext(c), ev)
		if err != nil {
			return err
		}
		return respond(c, toast)
	}); err != nil {
		return nil, err
	}

	if err := reg.RegisterCallback(workflow.CallbackAnswer, func(c tele.Context) error {
		ev := eventFrom(c)
		ev.Payload = callbacks.CallbackPayload(c)
		toast, err := engine.HandleAnswer(tghelpers.BuildContext(c), ev)
		if err != nil {
			return err
		}
		return respond(c, toast)
	}); err != nil {
		return nil, err
	}

	decide := func(admit bool) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || c.Sender().ID != adminID {
				return respond(c, a.msgs.Oops)
			}
			userID, topic, err := callbacks.PayloadIDAndCode(c, "|")
			if err != nil {
				return respond(c, a.msgs.Oops)
			}
			d := admission.Decision{
				Admit:  admit,
				UserID: userID,
				Topic:  topic,
			}
			if m := c.Callback().Message; m != nil {
				d.NoticeMessageID = m.ID
				d.NoticeText = m.Text
			}
			toast, err := coordinator.Decide(tghelpers.BuildContext(c), d)
			if err != nil {
				return err
			}
			return respond(c, toast)
		}
	}
	if err := reg.RegisterCallback(admission.CallbackAdmit, decide(true)); err != nil {
		return nil, err
	}
	if err := reg.RegisterCallback(admission.CallbackNoAdmit, decide(false)); err != nil {
		return nil, err
	}

	reg.SetTextFallback(func(c tele.Context) error {
		return engine.HandleText(tghelpers.BuildContext(c), eventFrom(c))
	})

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: adminID})
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{
		UnknownContent: func(c tele.Context) error {
			return engine.HandleUnexpected(tghelpers.BuildContext(c), eventFrom(c))
		},
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return routes, nil
}

// eventFrom strips the transport specifics off an inbound update.
func eventFrom(c tele.Context) workflow.Event {
	var ev workflow.Event
	if u := c.Sender(); u != nil {
		ev.UserID = u.ID
		ev.Identity = oneLineIdentity(u)
	}
	if ch := c.Chat(); ch != nil {
		ev.ChatID = ch.ID
	}
	if m := c.Message(); m != nil {
		ev.MessageID = m.ID
		ev.Text = m.Text
	}
	return ev
}

// oneLineIdentity renders "first[ last][ aka @username] (id)" for the admin
// notice.
func oneLineIdentity(u *tele.User) string {
	out := u.FirstName
	if u.LastName != "" {
		out += " " + u.LastName
	}
	if u.Username != "" {
		out += " aka @" + u.Username
	}
	return fmt.Sprintf("%s (%d)", out, u.ID)
}

func respond(c tele.Context, toast string) error {
	if toast == "" {
		return c.Respond()
	}
	return c.Respond(&tele.CallbackResponse{Text: toast})
}
