package transport

import (
	"context"
	"strconv"

	"github.com/aleksashka/quiz-bot/core/telegram/keyboard"
	"github.com/aleksashka/quiz-bot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// telebotTransport drives a live bot through the retrying caller.
type telebotTransport struct {
	bot    *tele.Bot
	caller *sender.Caller
}

// NewTelebot wraps a bot instance into the Transport interface. A nil caller
// gets default retry options.
func NewTelebot(bot *tele.Bot, caller *sender.Caller) Transport {
	if caller == nil {
		caller = sender.NewCaller(sender.Options{})
	}
	return &telebotTransport{bot: bot, caller: caller}
}

// storedMessage references an existing message for edit and delete calls.
func storedMessage(chatID int64, messageID int) tele.Editable {
	return &tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
}

func buildSendOptions(opts Options) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opts.ParseMode != "" {
		so.ParseMode = tele.ParseMode(opts.ParseMode)
	}
	if len(opts.Keyboard) > 0 {
		rows := make([][]keyboard.InlineBtn, len(opts.Keyboard))
		for i, row := range opts.Keyboard {
			r := make([]keyboard.InlineBtn, len(row))
			for j, b := range row {
				r[j] = keyboard.InlineBtn{Text: b.Text, Unique: b.Unique, Data: b.Data}
			}
			rows[i] = r
		}
		so.ReplyMarkup = keyboard.InlineButtonsRows(rows...)
	}
	return so
}

func (t *telebotTransport) Send(ctx context.Context, chatID int64, text string, opts Options) (int, error) {
	var msg *tele.Message
	err := t.caller.Call(ctx, "send", func() error {
		var sendErr error
		msg, sendErr = t.bot.Send(tele.ChatID(chatID), text, buildSendOptions(opts))
		return sendErr
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *telebotTransport) Edit(ctx context.Context, chatID int64, messageID int, text string, opts Options) error {
	return t.caller.Call(ctx, "edit", func() error {
		_, err := t.bot.Edit(storedMessage(chatID, messageID), text, buildSendOptions(opts))
		return err
	})
}

func (t *telebotTransport) Delete(ctx context.Context, chatID int64, messageID int) error {
	return t.caller.Call(ctx, "delete", func() error {
		return t.bot.Delete(storedMessage(chatID, messageID))
	})
}
