package workflow

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/session"
	"github.com/aleksashka/quiz-bot/internal/transport"
)

const (
	testUserID  = int64(7)
	testAdminID = int64(99)
)

const engineBankYAML = `
enabled_topics:
  - basics:
      name: Basics
      tags: [show-correctness]
  - plain:
      name: Plain
questions:
  - {t: basics, q: Q1, a: [a1, b1]}
  - {t: basics, q: Q2, a: [a2, b2]}
  - {t: basics, q: Q3, a: [a3, b3]}
  - {t: plain, q: P1, a: [x, y]}
`

func testMessages() *content.Messages {
	return &content.Messages{
		Start:                 "start here",
		Info:                  "type your info",
		InfoAllowedCharacters: "bad characters",
		Topic:                 "now send /topic",
		TopicSelect:           "choose a topic",
		AdmitTextAdmin:        "Request: %s\nInfo: %s\nFrom: %s\nWaiting.",
		AdmitTextUser:         "wait for admission to %s",
		AdmitButtonYes:        "Admit",
		AdmitButtonNo:         "Reject",
		AdmitYesAdmin:         "Admitted.",
		AdmitYesUser:          "you are in",
		AdmitNoAdmin:          "Rejected.",
		AdmitNoUser:           "sorry",
		AnswerCorrect:         "Correct!",
		AnswerIncorrect:       "Wrong.",
		TestEnded:             "%s: %d questions, %d correct (%d%%)",
		TestCanceled:          "Test canceled.",
		Oops:                  "oops",
	}
}

func newTestBank(t *testing.T) *content.Bank {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(engineBankYAML), 0o600); err != nil {
		t.Fatalf("write bank: %v", err)
	}
	bank, err := content.LoadBank(path)
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}
	return bank
}

func newTestEngine(t *testing.T) (*Engine, *transport.Recorder, session.Store) {
	t.Helper()
	rec := transport.NewRecorder(100)
	store := session.NewMemoryStore()
	e := New(Config{
		Bank:      newTestBank(t),
		Store:     store,
		Transport: rec,
		Messages:  testMessages(),
		AdminID:   testAdminID,
		Rand:      rand.New(rand.NewSource(42)),
	})
	return e, rec, store
}

func userEvent(msgID int) Event {
	return Event{
		UserID:    testUserID,
		ChatID:    testUserID,
		MessageID: msgID,
		Identity:  "Jane Doe aka @jane (7)",
	}
}

func mustGet(t *testing.T, store session.Store) session.Session {
	t.Helper()
	s, err := store.Get(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return s
}

func lastSentTo(t *testing.T, rec *transport.Recorder, chatID int64) transport.SentMessage {
	t.Helper()
	for i := len(rec.Sent) - 1; i >= 0; i-- {
		if rec.Sent[i].ChatID == chatID {
			return rec.Sent[i]
		}
	}
	t.Fatalf("nothing sent to chat %d", chatID)
	return transport.SentMessage{}
}

func TestInfoRegistrationFlow(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()

	if err := e.HandleInfo(ctx, userEvent(1)); err != nil {
		t.Fatalf("HandleInfo: %v", err)
	}
	s := mustGet(t, store)
	if s.State != session.StateAwaitingUserInfo {
		t.Fatalf("state = %q", s.State)
	}
	if got := lastSentTo(t, rec, testUserID).Text; got != "type your info" {
		t.Fatalf("prompt = %q", got)
	}

	// Input violating the character policy re-prompts without transition.
	ev := userEvent(2)
	ev.Text = "jane_doe"
	if err := e.HandleText(ctx, ev); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	s = mustGet(t, store)
	if s.State != session.StateAwaitingUserInfo || s.UserInfo != "" {
		t.Fatalf("invalid input must not transition: %+v", s)
	}
	if got := lastSentTo(t, rec, testUserID).Text; got != "bad characters" {
		t.Fatalf("re-prompt = %q", got)
	}

	ev = userEvent(3)
	ev.Text = "Jane Doe"
	if err := e.HandleText(ctx, ev); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	s = mustGet(t, store)
	if s.State != session.StateSelectingTopic || s.UserInfo != "Jane Doe" {
		t.Fatalf("valid input must store info: %+v", s)
	}
	if got := lastSentTo(t, rec, testUserID).Text; got != "now send /topic" {
		t.Fatalf("topic prompt = %q", got)
	}
}

func TestUnexpectedTextIsDeleted(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ev := userEvent(5)
	ev.Text = "hello there"

	if err := e.HandleText(context.Background(), ev); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if len(rec.Sent) != 0 {
		t.Fatalf("no reply expected, got %v", rec.Sent)
	}
	if len(rec.Deleted) != 1 || rec.Deleted[0].MessageID != 5 {
		t.Fatalf("inbound message must be deleted: %v", rec.Deleted)
	}
	if s := mustGet(t, store); s.State != session.StateIdle {
		t.Fatalf("state = %q", s.State)
	}
}

func TestTopicWithoutInfoReprompts(t *testing.T) {
	e, rec, store := newTestEngine(t)
	if err := e.HandleTopic(context.Background(), userEvent(1)); err != nil {
		t.Fatalf("HandleTopic: %v", err)
	}
	if got := lastSentTo(t, rec, testUserID).Text; got != "start here" {
		t.Fatalf("reply = %q", got)
	}
	if s := mustGet(t, store); s.State != session.StateIdle {
		t.Fatalf("state = %q", s.State)
	}
}

func TestTopicKeyboard(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()

	seed := session.New(testUserID)
	seed.State = session.StateSelectingTopic
	seed.UserInfo = "Jane Doe"
	if err := store.Set(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := e.HandleTopic(ctx, userEvent(1)); err != nil {
		t.Fatalf("HandleTopic: %v", err)
	}
	sent := lastSentTo(t, rec, testUserID)
	if sent.Text != "choose a topic" {
		t.Fatalf("text = %q", sent.Text)
	}
	if len(sent.Opts.Keyboard) != 2 {
		t.Fatalf("keyboard rows = %d", len(sent.Opts.Keyboard))
	}
	if sent.Opts.Keyboard[0][0].Data != "basics" || sent.Opts.Keyboard[1][0].Data != "plain" {
		t.Fatalf("keyboard codes: %+v", sent.Opts.Keyboard)
	}
	if sent.Opts.Keyboard[0][0].Text != "Basics (3)" {
		t.Fatalf("button label = %q", sent.Opts.Keyboard[0][0].Text)
	}
}

func TestPickTopicNotifiesAdmin(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()

	seed := session.New(testUserID)
	seed.State = session.StateSelectingTopic
	seed.UserInfo = "Jane Doe"
	if err := store.Set(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := userEvent(1)
	ev.Payload = "basics"
	toast, err := e.HandleTopicPick(ctx, ev)
	if err != nil {
		t.Fatalf("HandleTopicPick: %v", err)
	}
	if toast != "" {
		t.Fatalf("toast = %q", toast)
	}

	s := mustGet(t, store)
	if s.State != session.StateAwaitingAdmission || s.Topic != "basics" || s.TopicName != "Basics" {
		t.Fatalf("session after pick: %+v", s)
	}
	if s.AdminNoticeID == 0 || s.AdminNoticeText == "" {
		t.Fatalf("admin notice must be recorded: %+v", s)
	}

	notice := lastSentTo(t, rec, testAdminID)
	if !strings.Contains(notice.Text, "Basics (basics)") ||
		!strings.Contains(notice.Text, "Jane Doe") ||
		!strings.Contains(notice.Text, "@jane") {
		t.Fatalf("notice text = %q", notice.Text)
	}
	if len(notice.Opts.Keyboard) != 2 {
		t.Fatalf("decision keyboard rows = %d", len(notice.Opts.Keyboard))
	}
	if notice.Opts.Keyboard[0][0].Data != "7|basics" {
		t.Fatalf("decision payload = %q", notice.Opts.Keyboard[0][0].Data)
	}
	if wait := lastSentTo(t, rec, testUserID); wait.Text != "wait for admission to Basics" {
		t.Fatalf("user wait text = %q", wait.Text)
	}
}

func TestPickUnknownTopic(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()

	seed := session.New(testUserID)
	seed.State = session.StateSelectingTopic
	seed.UserInfo = "Jane Doe"
	if err := store.Set(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ev := userEvent(1)
	ev.Payload = "nope"
	toast, err := e.HandleTopicPick(ctx, ev)
	if err != nil {
		t.Fatalf("HandleTopicPick: %v", err)
	}
	if toast != "oops" {
		t.Fatalf("toast = %q", toast)
	}
	if s := mustGet(t, store); s.State != session.StateSelectingTopic {
		t.Fatalf("state must not change: %q", s.State)
	}
}

func seedAwaitingAdmission(t *testing.T, store session.Store) {
	t.Helper()
	s := session.New(testUserID)
	s.State = session.StateAwaitingAdmission
	s.UserInfo = "Jane Doe"
	s.Topic = "basics"
	s.TopicName = "Basics"
	s.AdminNoticeID = 50
	s.AdminNoticeText = "Request\nWaiting."
	if err := store.Set(context.Background(), s); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestStartQuizSendsFirstQuestion(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()
	seedAwaitingAdmission(t, store)

	if err := e.StartQuiz(ctx, testUserID); err != nil {
		t.Fatalf("StartQuiz: %v", err)
	}
	s := mustGet(t, store)
	if s.State != session.StateInQuiz || s.QuestionIndex != 0 || s.Score != 0 {
		t.Fatalf("session after start: %+v", s)
	}
	if !s.ShowCorrectness {
		t.Fatal("basics topic must reveal correctness")
	}
	if s.QuestionMessageID == 0 {
		t.Fatal("question message id must be recorded")
	}

	q := lastSentTo(t, rec, testUserID)
	if !strings.HasPrefix(q.Text, "Q1\n\n") {
		t.Fatalf("first question text = %q", q.Text)
	}
	if len(q.Opts.Keyboard) != 1 || len(q.Opts.Keyboard[0]) != 2 {
		t.Fatalf("answer keyboard = %+v", q.Opts.Keyboard)
	}
}

func TestAnswerAdvancesByEditingInPlace(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()
	seedAwaitingAdmission(t, store)
	if err := e.StartQuiz(ctx, testUserID); err != nil {
		t.Fatalf("StartQuiz: %v", err)
	}
	qID := mustGet(t, store).QuestionMessageID

	ev := userEvent(0)
	ev.Payload = "1"
	toast, err := e.HandleAnswer(ctx, ev)
	if err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if toast != "Correct!" {
		t.Fatalf("toast = %q", toast)
	}

	s := mustGet(t, store)
	if s.QuestionIndex != 1 || s.Score != 1 {
		t.Fatalf("cursor/score: %+v", s)
	}
	if s.QuestionMessageID != qID {
		t.Fatalf("question message must be edited in place")
	}
	if len(rec.Edited) == 0 {
		t.Fatal("expected an edit")
	}
	last := rec.Edited[len(rec.Edited)-1]
	if last.MessageID != qID || !strings.HasPrefix(last.Text, "Q2\n\n") {
		t.Fatalf("edit = %+v", last)
	}
}

func TestAnswerEditFallbackSendsFreshMessage(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()
	seedAwaitingAdmission(t, store)
	if err := e.StartQuiz(ctx, testUserID); err != nil {
		t.Fatalf("StartQuiz: %v", err)
	}
	qID := mustGet(t, store).QuestionMessageID

	rec.FailEdit = 1
	ev := userEvent(0)
	ev.Payload = "0"
	if _, err := e.HandleAnswer(ctx, ev); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}

	s := mustGet(t, store)
	if s.QuestionMessageID == qID || s.QuestionMessageID == 0 {
		t.Fatalf("fallback must record the fresh message id, got %d", s.QuestionMessageID)
	}
	if got := lastSentTo(t, rec, testUserID); !strings.HasPrefix(got.Text, "Q2\n\n") {
		t.Fatalf("fallback send = %q", got.Text)
	}
}

func runQuiz(t *testing.T, e *Engine, mark string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ev := userEvent(0)
		ev.Payload = mark
		if _, err := e.HandleAnswer(ctx, ev); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
}

func TestQuizCompletionAllCorrect(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()
	seedAwaitingAdmission(t, store)
	if err := e.StartQuiz(ctx, testUserID); err != nil {
		t.Fatalf("StartQuiz: %v", err)
	}
	qID := mustGet(t, store).QuestionMessageID

	runQuiz(t, e, "1")

	s := mustGet(t, store)
	if s.State != session.StateIdle || s.Topic != "" || s.Score != 0 || s.QuestionIndex != -1 {
		t.Fatalf("session must reset after completion: %+v", s)
	}
	if s.UserInfo != "Jane Doe" {
		t.Fatalf("user info must survive completion: %+v", s)
	}

	final := lastSentTo(t, rec, testUserID)
	if final.Text != "Basics: 3 questions, 3 correct (100%)" {
		t.Fatalf("final text = %q", final.Text)
	}

	var adminEdit *transport.EditedMessage
	for i := range rec.Edited {
		if rec.Edited[i].ChatID == testAdminID {
			adminEdit = &rec.Edited[i]
		}
	}
	if adminEdit == nil || !strings.HasSuffix(adminEdit.Text, "\n\n3/3 = 100%") {
		t.Fatalf("admin notice edit = %+v", adminEdit)
	}

	deletedQuestion := false
	for _, d := range rec.Deleted {
		if d.MessageID == qID {
			deletedQuestion = true
		}
	}
	if !deletedQuestion {
		t.Fatal("question message must be deleted on completion")
	}
}

func TestQuizCompletionAllWrong(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()
	seedAwaitingAdmission(t, store)
	if err := e.StartQuiz(ctx, testUserID); err != nil {
		t.Fatalf("StartQuiz: %v", err)
	}

	runQuiz(t, e, "0")

	if final := lastSentTo(t, rec, testUserID); final.Text != "Basics: 3 questions, 0 correct (0%)" {
		t.Fatalf("final text = %q", final.Text)
	}
	var adminEdit *transport.EditedMessage
	for i := range rec.Edited {
		if rec.Edited[i].ChatID == testAdminID {
			adminEdit = &rec.Edited[i]
		}
	}
	if adminEdit == nil || !strings.HasSuffix(adminEdit.Text, "\n\n0/3 = 0%") {
		t.Fatalf("admin notice edit = %+v", adminEdit)
	}
}

func TestCancelMidQuiz(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ctx := context.Background()

	s := session.New(testUserID)
	s.State = session.StateInQuiz
	s.UserInfo = "Jane Doe"
	s.Topic = "basics"
	s.TopicName = "Basics"
	s.QuestionIndex = 1
	s.Score = 1
	s.AdminNoticeID = 50
	s.AdminNoticeText = "Request\nWaiting."
	s.QuestionMessageID = 60
	s.PendingDeletions = []int{30, 31}
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := e.HandleCancel(ctx, userEvent(2)); err != nil {
		t.Fatalf("HandleCancel: %v", err)
	}

	got := mustGet(t, store)
	if got.State != session.StateIdle || got.Topic != "" || got.Score != 0 ||
		got.QuestionIndex != -1 || got.AdminNoticeID != 0 || got.QuestionMessageID != 0 {
		t.Fatalf("cancel must reset workflow fields: %+v", got)
	}
	if got.UserInfo != "Jane Doe" {
		t.Fatal("cancel must keep registered info")
	}

	if len(rec.Edited) != 1 || rec.Edited[0].ChatID != testAdminID ||
		!strings.HasSuffix(rec.Edited[0].Text, "\n\nTest canceled.") {
		t.Fatalf("admin annotation = %+v", rec.Edited)
	}

	want := map[int]bool{30: false, 31: false, 60: false, 2: false}
	for _, d := range rec.Deleted {
		if _, ok := want[d.MessageID]; ok {
			want[d.MessageID] = true
		}
	}
	for id, ok := range want {
		if !ok {
			t.Errorf("message %d not deleted", id)
		}
	}
}

func TestFinishWipesEverything(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()

	s := session.New(testUserID)
	s.State = session.StateSelectingTopic
	s.UserInfo = "Jane Doe"
	s.PendingDeletions = []int{30}
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := e.HandleFinish(ctx, userEvent(2)); err != nil {
		t.Fatalf("HandleFinish: %v", err)
	}
	got := mustGet(t, store)
	if got.UserInfo != "" || got.State != session.StateIdle || len(got.PendingDeletions) != 0 {
		t.Fatalf("finish must wipe the record: %+v", got)
	}
}

func TestStaleAnswerCallback(t *testing.T) {
	e, rec, store := newTestEngine(t)
	ev := userEvent(0)
	ev.Payload = "1"

	toast, err := e.HandleAnswer(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if toast != "oops" {
		t.Fatalf("toast = %q", toast)
	}
	if s := mustGet(t, store); s.State != session.StateIdle || s.Score != 0 {
		t.Fatalf("stale callback must not mutate: %+v", s)
	}
	if len(rec.Sent) != 0 || len(rec.Deleted) != 0 {
		t.Fatalf("stale callback must not touch the chat")
	}
}
