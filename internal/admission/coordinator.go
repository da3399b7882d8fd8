// Package admission bridges a user's pending quiz request to the admin's
// accept/reject decision. The decision always concerns a different user's
// session than the chat it arrives from, so the coordinator works strictly
// through the store: read, validate, then write.
package admission

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/aleksashka/quiz-bot/core/logger"
	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/session"
	"github.com/aleksashka/quiz-bot/internal/transport"
	"github.com/aleksashka/quiz-bot/internal/workflow"
)

// Callback uniques for the admin's decision buttons.
const (
	CallbackAdmit   = "admit"
	CallbackNoAdmit = "noadmit"
)

// QuizStarter delivers the first question once a user is admitted.
type QuizStarter interface {
	StartQuiz(ctx context.Context, userID int64) error
}

// Decision is one admin button press, already decoded from the callback.
type Decision struct {
	Admit  bool
	UserID int64
	Topic  string

	// NoticeMessageID and NoticeText identify the admin status message the
	// decision buttons were attached to; its last line is rewritten with
	// the outcome.
	NoticeMessageID int
	NoticeText      string
}

// Config wires the coordinator's collaborators.
type Config struct {
	Store     session.Store
	Transport transport.Transport
	Messages  *content.Messages
	AdminID   int64
	Quiz      QuizStarter
}

// Coordinator validates and applies admission decisions.
type Coordinator struct {
	store   session.Store
	tr      transport.Transport
	track   *workflow.Tracker
	msgs    *content.Messages
	adminID int64
	quiz    QuizStarter
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		store:   cfg.Store,
		tr:      cfg.Transport,
		track:   workflow.NewTracker(cfg.Transport),
		msgs:    cfg.Messages,
		adminID: cfg.AdminID,
		quiz:    cfg.Quiz,
	}
}

// Decide applies the admin's decision to the target user's session. The
// persisted state must still be exactly (AwaitingAdmission, decision topic);
// any drift, for example the user canceling meanwhile, is reported back to
// the admin and nothing is mutated. The returned string is the callback
// toast for the admin.
func (c *Coordinator) Decide(ctx context.Context, d Decision) (string, error) {
	s, err := c.store.Get(ctx, d.UserID)
	if err != nil {
		return c.msgs.Oops, err
	}

	if s.State != session.StateAwaitingAdmission {
		c.reportMismatch(ctx, d,
			fmt.Sprintf("User state is set to %s instead of %s", s.State, session.StateAwaitingAdmission))
		return c.msgs.Oops, nil
	}
	if s.Topic != d.Topic {
		c.reportMismatch(ctx, d,
			fmt.Sprintf("User topic is set to %s instead of requested %s", s.Topic, d.Topic))
		return c.msgs.Oops, nil
	}

	if d.Admit {
		return c.accept(ctx, d, s)
	}
	return c.reject(ctx, d, s)
}

func (c *Coordinator) accept(ctx context.Context, d Decision, s session.Session) (string, error) {
	newText := c.rewriteNotice(ctx, d, c.msgs.AdmitYesAdmin)
	s.AdminNoticeText = newText

	id, err := c.tr.Send(ctx, d.UserID, c.msgs.AdmitYesUser, transport.Options{})
	if err != nil {
		return "", err
	}
	c.track.Flush(ctx, &s, d.UserID)
	c.track.Track(&s, id)
	if err := c.store.Set(ctx, s); err != nil {
		return "", err
	}

	logger.Info(ctx, "admission", "admission.accept",
		slog.Int64("user_id", d.UserID),
		slog.String("topic", d.Topic),
	)
	return c.msgs.AdmitYesAdmin, c.quiz.StartQuiz(ctx, d.UserID)
}

func (c *Coordinator) reject(ctx context.Context, d Decision, s session.Session) (string, error) {
	c.rewriteNotice(ctx, d, c.msgs.AdmitNoAdmin)

	id, err := c.tr.Send(ctx, d.UserID, c.msgs.AdmitNoUser, transport.Options{})
	if err != nil {
		return "", err
	}
	s = session.ResetWorkflow(s)
	c.track.Flush(ctx, &s, d.UserID)
	c.track.Track(&s, id)
	if err := c.store.Set(ctx, s); err != nil {
		return "", err
	}

	logger.Info(ctx, "admission", "admission.reject",
		slog.Int64("user_id", d.UserID),
		slog.String("topic", d.Topic),
	)
	return c.msgs.AdmitNoAdmin, nil
}

// rewriteNotice replaces the last line of the admin notice with the decision
// outcome and returns the rewritten text. Edit failures are non-fatal: the
// decision stands even if the notice stays stale.
func (c *Coordinator) rewriteNotice(ctx context.Context, d Decision, decision string) string {
	lines := strings.Split(d.NoticeText, "\n")
	lines[len(lines)-1] = decision
	newText := strings.Join(lines, "\n")
	if d.NoticeMessageID != 0 {
		if err := c.tr.Edit(ctx, c.adminID, d.NoticeMessageID, newText, transport.Options{}); err != nil {
			logger.Warn(ctx, "admission", "notice.edit.fail",
				slog.Int("message_id", d.NoticeMessageID),
				slog.String("err", err.Error()),
			)
		}
	}
	return newText
}

// reportMismatch tells the admin about state drift without touching the
// target session.
func (c *Coordinator) reportMismatch(ctx context.Context, d Decision, text string) {
	logger.Warn(ctx, "admission", "admission.mismatch",
		slog.Int64("user_id", d.UserID),
		slog.String("topic", d.Topic),
	)
	if _, err := c.tr.Send(ctx, c.adminID, text, transport.Options{}); err != nil {
		logger.Error(ctx, "admission", "mismatch.report.fail",
			slog.String("err", err.Error()),
		)
	}
}
