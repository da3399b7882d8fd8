package transport

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage records one Send call made through the Recorder.
type SentMessage struct {
	ID     int
	ChatID int64
	Text   string
	Opts   Options
}

// EditedMessage records one Edit call made through the Recorder.
type EditedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Opts      Options
}

// DeletedMessage records one Delete call made through the Recorder.
type DeletedMessage struct {
	ChatID    int64
	MessageID int
}

// Recorder is an in-memory Transport for tests. Message IDs increment from
// the configured start. Individual operations can be scripted to fail.
type Recorder struct {
	mu sync.Mutex

	nextID  int
	Sent    []SentMessage
	Edited  []EditedMessage
	Deleted []DeletedMessage

	// FailSend, FailEdit and FailDelete force the next matching calls to
	// error. Negative values fail every call.
	FailSend   int
	FailEdit   int
	FailDelete int
}

// NewRecorder creates a Recorder whose first assigned message ID is startID.
func NewRecorder(startID int) *Recorder {
	if startID <= 0 {
		startID = 1000
	}
	return &Recorder{nextID: startID}
}

func takeFailure(counter *int) bool {
	if *counter < 0 {
		return true
	}
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

func (r *Recorder) Send(_ context.Context, chatID int64, text string, opts Options) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if takeFailure(&r.FailSend) {
		return 0, fmt.Errorf("recorder: send failed")
	}
	id := r.nextID
	r.nextID++
	r.Sent = append(r.Sent, SentMessage{ID: id, ChatID: chatID, Text: text, Opts: opts})
	return id, nil
}

func (r *Recorder) Edit(_ context.Context, chatID int64, messageID int, text string, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if takeFailure(&r.FailEdit) {
		return fmt.Errorf("recorder: edit failed")
	}
	r.Edited = append(r.Edited, EditedMessage{ChatID: chatID, MessageID: messageID, Text: text, Opts: opts})
	return nil
}

func (r *Recorder) Delete(_ context.Context, chatID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if takeFailure(&r.FailDelete) {
		return fmt.Errorf("recorder: delete failed")
	}
	r.Deleted = append(r.Deleted, DeletedMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

// LastSent returns the most recent send, or false when nothing was sent.
func (r *Recorder) LastSent() (SentMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return SentMessage{}, false
	}
	return r.Sent[len(r.Sent)-1], true
}
