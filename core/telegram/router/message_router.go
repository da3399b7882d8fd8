package router

import (
	"time"

	tg "github.com/aleksashka/quiz-bot/core/telegram"
	"github.com/aleksashka/quiz-bot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	UnknownText    tele.HandlerFunc
	UnknownContent tele.HandlerFunc
}

// contentEndpoints lists the media endpoints routed to the content handler.
var contentEndpoints = []string{
	tele.OnDocument,
	tele.OnPhoto,
	tele.OnSticker,
	tele.OnVoice,
	tele.OnVideo,
	tele.OnAudio,
	tele.OnLocation,
	tele.OnContact,
}

// TextRoutes builds handlers for plain text and media routing. Text that
// does not resolve to a registered command falls through to the registry
// text fallback, which lets the workflow engine consume free-form input.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "text_input", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	contentHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownContent != nil {
			return handleWithSummary(c, "unexpected_content", start, "", "", func() error {
				return opts.UnknownContent(c)
			})
		}
		logHandlerSummary(c, "unexpected_content", start, "skip", "ok", nil)
		return nil
	}

	routes := []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
	for _, ep := range contentEndpoints {
		routes = append(routes, tg.Route{
			Endpoint: ep,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(contentHandler)),
		})
	}
	return routes
}
