package admission

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
	"github.com/aleksashka/quiz-bot/internal/workflow"
)

const (
	testUserID  = int64(7)
	testAdminID = int64(99)
)

const testBankYAML = `
enabled_topics:
  - basics:
      name: Basics
      tags: [show-correctness]
questions:
  - {t: basics, q: Q1, a: [a1, b1]}
  - {t: basics, q: Q2, a: [a2, b2]}
  - {t: basics, q: Q3, a: [a3, b3]}
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

type quizStub struct {
	started []int64
	err     error
}

func (q *quizStub) StartQuiz(_ context.Context, userID int64) error {
	q.started = append(q.started, userID)
	return q.err
}

func newCoordinator(t *testing.T) (*Coordinator, *quizStub, *transport.Recorder, session.Store) {
	t.Helper()
	rec := transport.NewRecorder(200)
	store := session.NewMemoryStore()
	quiz := &quizStub{}
	c := New(Config{
		Store:     store,
		Transport: rec,
		Messages:  testMessages(),
		AdminID:   testAdminID,
		Quiz:      quiz,
	})
	return c, quiz, rec, store
}

func awaitingSession() session.Session {
	s := session.New(testUserID)
	s.State = session.StateAwaitingAdmission
	s.UserInfo = "Jane Doe"
	s.Topic = "basics"
	s.TopicName = "Basics"
	s.AdminNoticeID = 50
	s.AdminNoticeText = "Request: Basics (basics)\nInfo: Jane Doe\nFrom: Jane\nWaiting."
	s.PendingDeletions = []int{30}
	return s
}

func decisionFor(s session.Session, admit bool) Decision {
	return Decision{
		Admit:           admit,
		UserID:          s.UserID,
		Topic:           "basics",
		NoticeMessageID: s.AdminNoticeID,
		NoticeText:      s.AdminNoticeText,
	}
}

func TestDecideStateMismatch(t *testing.T) {
	c, quiz, rec, store := newCoordinator(t)
	ctx := context.Background()

	s := awaitingSession()
	s.State = session.StateIdle
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toast, err := c.Decide(ctx, decisionFor(s, true))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if toast != "oops" {
		t.Fatalf("toast = %q", toast)
	}
	if len(quiz.started) != 0 {
		t.Fatal("quiz must not start on mismatch")
	}

	if len(rec.Sent) != 1 || rec.Sent[0].ChatID != testAdminID {
		t.Fatalf("mismatch report: %+v", rec.Sent)
	}
	if !strings.Contains(rec.Sent[0].Text, "idle") ||
		!strings.Contains(rec.Sent[0].Text, "awaiting_admission") {
		t.Fatalf("report text = %q", rec.Sent[0].Text)
	}

	got, _ := store.Get(ctx, testUserID)
	if got.State != session.StateIdle || len(got.PendingDeletions) != 1 {
		t.Fatalf("session must not be mutated: %+v", got)
	}
}

func TestDecideTopicMismatch(t *testing.T) {
	c, quiz, rec, store := newCoordinator(t)
	ctx := context.Background()

	s := awaitingSession()
	s.Topic = "ccna"
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toast, err := c.Decide(ctx, decisionFor(s, true))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if toast != "oops" {
		t.Fatalf("toast = %q", toast)
	}
	if len(quiz.started) != 0 {
		t.Fatal("quiz must not start on mismatch")
	}
	if len(rec.Sent) != 1 || !strings.Contains(rec.Sent[0].Text, "ccna") {
		t.Fatalf("report: %+v", rec.Sent)
	}
}

func TestDecideAccept(t *testing.T) {
	c, quiz, rec, store := newCoordinator(t)
	ctx := context.Background()

	s := awaitingSession()
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toast, err := c.Decide(ctx, decisionFor(s, true))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if toast != "Admitted." {
		t.Fatalf("toast = %q", toast)
	}
	if len(quiz.started) != 1 || quiz.started[0] != testUserID {
		t.Fatalf("quiz start calls: %v", quiz.started)
	}

	if len(rec.Edited) != 1 || rec.Edited[0].MessageID != 50 {
		t.Fatalf("notice edit: %+v", rec.Edited)
	}
	if !strings.HasSuffix(rec.Edited[0].Text, "\nAdmitted.") ||
		strings.Contains(rec.Edited[0].Text, "Waiting.") {
		t.Fatalf("notice must rewrite its last line: %q", rec.Edited[0].Text)
	}

	if len(rec.Sent) != 1 || rec.Sent[0].ChatID != testUserID || rec.Sent[0].Text != "you are in" {
		t.Fatalf("user notification: %+v", rec.Sent)
	}

	// The stale prompt is flushed and the notification queued for cleanup.
	if len(rec.Deleted) != 1 || rec.Deleted[0].MessageID != 30 {
		t.Fatalf("flush: %+v", rec.Deleted)
	}

	got, _ := store.Get(ctx, testUserID)
	if !strings.HasSuffix(got.AdminNoticeText, "\nAdmitted.") {
		t.Fatalf("persisted notice text = %q", got.AdminNoticeText)
	}
	if len(got.PendingDeletions) != 1 || got.PendingDeletions[0] != rec.Sent[0].ID {
		t.Fatalf("pending deletions = %v", got.PendingDeletions)
	}
}

func TestDecideReject(t *testing.T) {
	c, quiz, rec, store := newCoordinator(t)
	ctx := context.Background()

	s := awaitingSession()
	if err := store.Set(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toast, err := c.Decide(ctx, decisionFor(s, false))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if toast != "Rejected." {
		t.Fatalf("toast = %q", toast)
	}
	if len(quiz.started) != 0 {
		t.Fatal("quiz must not start on reject")
	}

	if len(rec.Edited) != 1 || !strings.HasSuffix(rec.Edited[0].Text, "\nRejected.") {
		t.Fatalf("notice edit: %+v", rec.Edited)
	}
	if len(rec.Sent) != 1 || rec.Sent[0].Text != "sorry" {
		t.Fatalf("user notification: %+v", rec.Sent)
	}

	got, _ := store.Get(ctx, testUserID)
	if got.State != session.StateIdle || got.Topic != "" {
		t.Fatalf("reject must reset the workflow: %+v", got)
	}
	if got.UserInfo != "Jane Doe" {
		t.Fatal("registered info must survive a reject")
	}
}

// TestEndToEndQuizRun walks the full happy path with the real engine behind
// the coordinator: registration, topic request, admission and a perfect run.
func TestEndToEndQuizRun(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(testBankYAML), 0o600); err != nil {
		t.Fatalf("write bank: %v", err)
	}
	bank, err := content.LoadBank(path)
	if err != nil {
		t.Fatalf("LoadBank: %v", err)
	}

	rec := transport.NewRecorder(100)
	store := session.NewMemoryStore()
	msgs := testMessages()
	engine := workflow.New(workflow.Config{
		Bank:      bank,
		Store:     store,
		Transport: rec,
		Messages:  msgs,
		AdminID:   testAdminID,
		Rand:      rand.New(rand.NewSource(1)),
	})
	coordinator := New(Config{
		Store:     store,
		Transport: rec,
		Messages:  msgs,
		AdminID:   testAdminID,
		Quiz:      engine,
	})

	ev := func(msgID int) workflow.Event {
		return workflow.Event{
			UserID:    testUserID,
			ChatID:    testUserID,
			MessageID: msgID,
			Identity:  "Jane Doe aka @jane (7)",
		}
	}

	if err := engine.HandleInfo(ctx, ev(1)); err != nil {
		t.Fatalf("HandleInfo: %v", err)
	}
	info := ev(2)
	info.Text = "Jane Doe"
	if err := engine.HandleText(ctx, info); err != nil {
		t.Fatalf("HandleText: %v", err)
	}
	if err := engine.HandleTopic(ctx, ev(3)); err != nil {
		t.Fatalf("HandleTopic: %v", err)
	}

	pick := ev(0)
	pick.Payload = "basics"
	if _, err := engine.HandleTopicPick(ctx, pick); err != nil {
		t.Fatalf("HandleTopicPick: %v", err)
	}

	s, err := store.Get(ctx, testUserID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if s.State != session.StateAwaitingAdmission {
		t.Fatalf("state before decision = %q", s.State)
	}

	toast, err := coordinator.Decide(ctx, Decision{
		Admit:           true,
		UserID:          testUserID,
		Topic:           "basics",
		NoticeMessageID: s.AdminNoticeID,
		NoticeText:      s.AdminNoticeText,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if toast != "Admitted." {
		t.Fatalf("decision toast = %q", toast)
	}

	s, _ = store.Get(ctx, testUserID)
	if s.State != session.StateInQuiz || s.QuestionIndex != 0 {
		t.Fatalf("session after admission: %+v", s)
	}

	for i := 0; i < 3; i++ {
		answer := ev(0)
		answer.Payload = "1"
		toast, err := engine.HandleAnswer(ctx, answer)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if toast != "Correct!" {
			t.Fatalf("answer %d toast = %q", i, toast)
		}
	}

	s, _ = store.Get(ctx, testUserID)
	if s.State != session.StateIdle || s.Topic != "" || s.Score != 0 {
		t.Fatalf("session after completion: %+v", s)
	}
	if s.UserInfo != "Jane Doe" {
		t.Fatal("registered info must survive the run")
	}

	var final *transport.SentMessage
	for i := range rec.Sent {
		if rec.Sent[i].ChatID == testUserID && strings.HasPrefix(rec.Sent[i].Text, "Basics:") {
			final = &rec.Sent[i]
		}
	}
	if final == nil || final.Text != "Basics: 3 questions, 3 correct (100%)" {
		t.Fatalf("final report: %+v", final)
	}

	var notice *transport.EditedMessage
	for i := range rec.Edited {
		if rec.Edited[i].ChatID == testAdminID {
			notice = &rec.Edited[i]
		}
	}
	if notice == nil {
		t.Fatal("admin notice never updated")
	}
	if !strings.Contains(notice.Text, "Admitted.") ||
		!strings.HasSuffix(notice.Text, "\n\n3/3 = 100%") {
		t.Fatalf("admin notice = %q", notice.Text)
	}
}
