// Package workflow implements the per-user quiz state machine: info
// registration, topic selection, the admission hand-off to the admin, and
// question sequencing with scoring. The engine is the sole session mutator;
// every transition ends with a synchronous persistence write before control
// returns to the transport.
package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"log/slog"

	"github.com/aleksashka/quiz-bot/core/logger"
	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/session"
	"github.com/aleksashka/quiz-bot/internal/transport"
)

// Callback uniques routed back into the engine.
const (
	// CallbackTopic carries a topic code picked from the topic keyboard.
	CallbackTopic = "topic"
	// CallbackAnswer carries the correctness mark of the pressed option.
	CallbackAnswer = "answer"
)

// Event is one inbound chat event, already stripped of transport specifics.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	// Text is the message body for text events.
	Text string
	// Payload is the callback data for button events.
	Payload string
	// Identity is the one-line transport identity shown to the admin.
	Identity string
}

type inputKind string

const (
	inputStart     inputKind = "start"
	inputInfo      inputKind = "info"
	inputTopic     inputKind = "topic"
	inputText      inputKind = "text"
	inputTopicPick inputKind = "topic_pick"
	inputAnswer    inputKind = "answer"
)

type dispatchKey struct {
	state session.State
	input inputKind
}

// handlerFunc processes one event for a loaded session. The returned string
// is the callback toast for button events; empty for plain acknowledgement.
type handlerFunc func(ctx context.Context, s session.Session, ev Event) (string, error)

// Config wires the engine's collaborators.
type Config struct {
	Bank      *content.Bank
	Store     session.Store
	Transport transport.Transport
	Messages  *content.Messages
	AdminID   int64
	// Rand drives answer shuffling; nil gets a time-seeded source.
	Rand *rand.Rand
}

// Engine drives the workflow. Constructed once at process start and handed
// its collaborators explicitly.
type Engine struct {
	bank    *content.Bank
	store   session.Store
	tr      transport.Transport
	track   *Tracker
	msgs    *content.Messages
	adminID int64

	rngMu sync.Mutex
	rng   *rand.Rand

	table map[dispatchKey]handlerFunc
}

// New builds the engine and its dispatch table. Combinations absent from the
// table fall to the delete-unexpected default.
func New(cfg Config) *Engine {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Engine{
		bank:    cfg.Bank,
		store:   cfg.Store,
		tr:      cfg.Transport,
		track:   NewTracker(cfg.Transport),
		msgs:    cfg.Messages,
		adminID: cfg.AdminID,
		rng:     rng,
	}
	e.table = map[dispatchKey]handlerFunc{
		{session.StateIdle, inputStart}:           e.showStart,
		{session.StateSelectingTopic, inputStart}: e.showStart,

		{session.StateIdle, inputInfo}:           e.beginInfo,
		{session.StateSelectingTopic, inputInfo}: e.resendTopicPrompt,

		{session.StateIdle, inputTopic}:           e.promptInfoFirst,
		{session.StateSelectingTopic, inputTopic}: e.showTopics,

		{session.StateAwaitingUserInfo, inputText}: e.collectUserInfo,

		{session.StateSelectingTopic, inputTopicPick}: e.pickTopic,

		{session.StateInQuiz, inputAnswer}: e.handleAnswer,
	}
	return e
}

// HandleStart shows the greeting; valid while no workflow step is pending.
func (e *Engine) HandleStart(ctx context.Context, ev Event) error {
	_, err := e.dispatch(ctx, inputStart, ev)
	return err
}

// HandleInfo begins or repeats the info registration step.
func (e *Engine) HandleInfo(ctx context.Context, ev Event) error {
	_, err := e.dispatch(ctx, inputInfo, ev)
	return err
}

// HandleTopic shows the topic keyboard when info is on file.
func (e *Engine) HandleTopic(ctx context.Context, ev Event) error {
	_, err := e.dispatch(ctx, inputTopic, ev)
	return err
}

// HandleText routes free-form text; only AwaitingUserInfo consumes it.
func (e *Engine) HandleText(ctx context.Context, ev Event) error {
	_, err := e.dispatch(ctx, inputText, ev)
	return err
}

// HandleTopicPick consumes a topic keyboard press. The returned string is
// the callback toast.
func (e *Engine) HandleTopicPick(ctx context.Context, ev Event) (string, error) {
	return e.dispatch(ctx, inputTopicPick, ev)
}

// HandleAnswer consumes an answer button press. The returned string is the
// callback toast, empty unless the topic reveals correctness.
func (e *Engine) HandleAnswer(ctx context.Context, ev Event) (string, error) {
	return e.dispatch(ctx, inputAnswer, ev)
}

// HandleUnexpected deletes an inbound message that matches no workflow step,
// keeping the transcript limited to the workflow's own prompts.
func (e *Engine) HandleUnexpected(ctx context.Context, ev Event) error {
	s, err := e.store.Get(ctx, ev.UserID)
	if err != nil {
		e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
		return nil
	}
	return e.deleteUnexpected(ctx, s, ev)
}

func (e *Engine) dispatch(ctx context.Context, kind inputKind, ev Event) (string, error) {
	s, err := e.store.Get(ctx, ev.UserID)
	if err != nil {
		logger.Error(ctx, "quiz", "session.load.fail",
			slog.Int64("user_id", ev.UserID),
			slog.String("err", err.Error()),
		)
		return "", err
	}

	h, ok := e.table[dispatchKey{s.State, kind}]
	if !ok {
		if kind == inputTopicPick || kind == inputAnswer {
			// Stale button from an earlier workflow step.
			logger.Debug(ctx, "quiz", "dispatch.stale_callback",
				slog.Int64("user_id", ev.UserID),
				slog.String("state", string(s.State)),
			)
			return e.msgs.Oops, nil
		}
		return "", e.deleteUnexpected(ctx, s, ev)
	}
	return h(ctx, s, ev)
}

func (e *Engine) showStart(ctx context.Context, s session.Session, ev Event) (string, error) {
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.Start, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	return "", nil
}

func (e *Engine) beginInfo(ctx context.Context, s session.Session, ev Event) (string, error) {
	s.State = session.StateAwaitingUserInfo
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.Info, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	logger.Debug(ctx, "quiz", "info.begin", slog.Int64("user_id", ev.UserID))
	return "", nil
}

// resendTopicPrompt handles /info when info is already on file. The stored
// info stays immutable until /finish wipes it.
func (e *Engine) resendTopicPrompt(ctx context.Context, s session.Session, ev Event) (string, error) {
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.Topic, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	return "", nil
}

func (e *Engine) collectUserInfo(ctx context.Context, s session.Session, ev Event) (string, error) {
	if !ValidUserInfo(ev.Text) {
		id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.InfoAllowedCharacters, transport.Options{})
		if err != nil {
			return "", err
		}
		e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
		e.flushAndTrack(ctx, &s, ev.ChatID, id)
		logger.Debug(ctx, "quiz", "info.rejected", slog.Int64("user_id", ev.UserID))
		return "", nil
	}

	s.UserInfo = ev.Text
	s.State = session.StateSelectingTopic
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.Topic, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	logger.Info(ctx, "quiz", "info.saved", slog.Int64("user_id", ev.UserID))
	return "", nil
}

// promptInfoFirst handles /topic before any info is registered.
func (e *Engine) promptInfoFirst(ctx context.Context, s session.Session, ev Event) (string, error) {
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.Start, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	return "", nil
}

func (e *Engine) showTopics(ctx context.Context, s session.Session, ev Event) (string, error) {
	var rows [][]transport.Button
	for _, code := range e.bank.TopicCodes() {
		t, ok := e.bank.Topic(code)
		if !ok {
			continue
		}
		rows = append(rows, []transport.Button{{
			Text:   fmt.Sprintf("%s (%d)", t.Name, t.QuestionCount),
			Unique: CallbackTopic,
			Data:   code,
		}})
	}
	id, err := e.tr.Send(ctx, ev.ChatID, e.msgs.TopicSelect, transport.Options{Keyboard: rows})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	logger.Debug(ctx, "quiz", "topic.list",
		slog.Int64("user_id", ev.UserID),
		slog.Int("topics", len(rows)),
	)
	return "", nil
}

// pickTopic moves the session to AwaitingAdmission and notifies the admin.
func (e *Engine) pickTopic(ctx context.Context, s session.Session, ev Event) (string, error) {
	topic, ok := e.bank.Topic(ev.Payload)
	if !ok {
		// A keyboard can outlive a reload that removed its topic.
		logger.Warn(ctx, "quiz", "topic.unknown",
			slog.Int64("user_id", ev.UserID),
			slog.String("topic", logger.Sanitize(ev.Payload)),
		)
		return e.msgs.Oops, nil
	}

	s.State = session.StateAwaitingAdmission
	s.Topic = topic.Code
	s.TopicName = topic.Name

	adminText := fmt.Sprintf(e.msgs.AdmitTextAdmin,
		fmt.Sprintf("%s (%s)", topic.Name, topic.Code),
		s.UserInfo,
		ev.Identity,
	)
	payload := fmt.Sprintf("%d|%s", ev.UserID, topic.Code)
	adminKB := [][]transport.Button{
		{{Text: e.msgs.AdmitButtonYes, Unique: "admit", Data: payload}},
		{{Text: e.msgs.AdmitButtonNo, Unique: "noadmit", Data: payload}},
	}
	noticeID, err := e.tr.Send(ctx, e.adminID, adminText, transport.Options{Keyboard: adminKB})
	if err != nil {
		return "", err
	}
	s.AdminNoticeID = noticeID
	s.AdminNoticeText = adminText

	userText := fmt.Sprintf(e.msgs.AdmitTextUser, topic.Name)
	id, err := e.tr.Send(ctx, ev.ChatID, userText, transport.Options{})
	if err != nil {
		return "", err
	}
	e.flushAndTrack(ctx, &s, ev.ChatID, id)
	logger.Info(ctx, "quiz", "admission.request",
		slog.Int64("user_id", ev.UserID),
		slog.String("topic", topic.Code),
	)
	return "", nil
}

// HandleCancel aborts the workflow from any state, flushes tracked messages
// and annotates the admin notice when a quiz was running. Registered info
// survives for the next run.
func (e *Engine) HandleCancel(ctx context.Context, ev Event) error {
	s, err := e.store.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	e.track.Flush(ctx, &s, ev.ChatID)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	if s.State == session.StateIdle {
		e.persist(ctx, s)
		return nil
	}
	e.abortRun(ctx, &s, ev.ChatID)
	s = session.ResetWorkflow(s)
	e.persist(ctx, s)
	logger.Info(ctx, "quiz", "workflow.cancel",
		slog.Int64("user_id", ev.UserID),
		slog.String("state", string(s.State)),
	)
	return nil
}

// HandleFinish performs the cancel cleanup and then discards the whole
// session record, including the registered info.
func (e *Engine) HandleFinish(ctx context.Context, ev Event) error {
	s, err := e.store.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	e.track.Flush(ctx, &s, ev.ChatID)
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	if s.State != session.StateIdle {
		e.abortRun(ctx, &s, ev.ChatID)
	}
	s = session.Wipe(s)
	e.persist(ctx, s)
	logger.Info(ctx, "quiz", "workflow.finish", slog.Int64("user_id", ev.UserID))
	return nil
}

// abortRun tears down the visible run state: mid-quiz admin annotation and
// the active question message.
func (e *Engine) abortRun(ctx context.Context, s *session.Session, chatID int64) {
	if s.State == session.StateInQuiz && s.AdminNoticeID != 0 {
		e.updateAdminNotice(ctx, s, s.AdminNoticeText+"\n\n"+e.msgs.TestCanceled, e.msgs.TestCanceled)
	}
	if s.QuestionMessageID != 0 {
		e.deleteMessage(ctx, chatID, s.QuestionMessageID)
	}
}

// HandleReload re-parses the question source in place. On failure the bank
// keeps serving the previous snapshot.
func (e *Engine) HandleReload(ctx context.Context, ev Event) error {
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	if err := e.bank.Reload(); err != nil {
		logger.Error(ctx, "content", "reload.fail", slog.String("err", err.Error()))
		_, _ = e.tr.Send(ctx, e.adminID, e.msgs.Oops, transport.Options{})
		return nil
	}
	logger.Info(ctx, "content", "reload.ok",
		slog.Int("topics", len(e.bank.TopicCodes())),
	)
	return nil
}

func (e *Engine) deleteUnexpected(ctx context.Context, s session.Session, ev Event) error {
	e.deleteMessage(ctx, ev.ChatID, ev.MessageID)
	logger.Debug(ctx, "quiz", "dispatch.unexpected",
		slog.Int64("user_id", ev.UserID),
		slog.String("state", string(s.State)),
	)
	return nil
}

// flushAndTrack mirrors the cleanup cycle every prompt goes through: flush
// the pending set, schedule the new prompt for later deletion, persist.
func (e *Engine) flushAndTrack(ctx context.Context, s *session.Session, chatID int64, finalID int) {
	e.track.Flush(ctx, s, chatID)
	e.track.Track(s, finalID)
	e.persist(ctx, *s)
}

func (e *Engine) persist(ctx context.Context, s session.Session) {
	if err := e.store.Set(ctx, s); err != nil {
		logger.Error(ctx, "quiz", "session.persist.fail",
			slog.Int64("user_id", s.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// deleteMessage is best effort; the message may already be gone.
func (e *Engine) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := e.tr.Delete(ctx, chatID, messageID); err != nil {
		logger.Debug(ctx, "quiz", "message.delete.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

// updateAdminNotice rewrites the admin status message in place; when the
// edit fails (the message may be too old) a fresh message carries the
// fallback text instead.
func (e *Engine) updateAdminNotice(ctx context.Context, s *session.Session, newText, fallbackText string) {
	if s.AdminNoticeID == 0 {
		return
	}
	if err := e.tr.Edit(ctx, e.adminID, s.AdminNoticeID, newText, transport.Options{}); err != nil {
		logger.Warn(ctx, "quiz", "admin_notice.edit.fail",
			slog.Int("message_id", s.AdminNoticeID),
			slog.String("err", err.Error()),
		)
		if _, serr := e.tr.Send(ctx, e.adminID, fallbackText, transport.Options{}); serr != nil {
			logger.Error(ctx, "quiz", "admin_notice.send.fail",
				slog.String("err", serr.Error()),
			)
		}
		return
	}
	s.AdminNoticeText = newText
}
