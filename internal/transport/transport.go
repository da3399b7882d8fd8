// Package transport abstracts the chat API surface the workflow calls:
// send, edit and delete. Edit and delete failures are ordinary errors the
// caller handles with a fallback; they never crash a handler.
package transport

import "context"

// Button is one labeled inline choice. Unique routes the callback, Data is
// the opaque payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Options carry the optional parse mode and inline keyboard for a message.
type Options struct {
	ParseMode string
	Keyboard  [][]Button
}

// Transport is the chat collaborator interface. Send returns the new
// message's identifier so the workflow can track it.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, opts Options) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, opts Options) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}
