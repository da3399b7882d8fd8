package workflow

import (
	"context"
	"fmt"
	"math"

	"log/slog"

	"github.com/aleksashka/quiz-bot/core/logger"
	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/session"
	"github.com/aleksashka/quiz-bot/internal/transport"
)

// StartQuiz transitions an admitted user into the quiz and delivers the
// first question. Called by the admission side for a session it has already
// validated, so the session is re-read here rather than passed in.
func (e *Engine) StartQuiz(ctx context.Context, userID int64) error {
	s, err := e.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if s.Topic == "" {
		logger.Error(ctx, "quiz", "quiz.start.no_topic", slog.Int64("user_id", userID))
		return fmt.Errorf("workflow: user %d has no topic set", userID)
	}

	// Correctness visibility is captured now and fixed for the run.
	if t, ok := e.bank.Topic(s.Topic); ok {
		s.ShowCorrectness = t.ShowCorrectness
	}
	s.State = session.StateInQuiz
	s.QuestionIndex = 0

	q, err := e.bank.QuestionAt(s.Topic, s.QuestionIndex)
	if err != nil {
		// The topic lost its questions between admission and start.
		return e.completeQuiz(ctx, &s, userID)
	}

	r := e.render(q)
	id, err := e.tr.Send(ctx, userID, r.Text, transport.Options{
		ParseMode: r.ParseMode,
		Keyboard:  [][]transport.Button{r.Buttons},
	})
	if err != nil {
		return err
	}
	s.QuestionMessageID = id
	e.persist(ctx, s)
	logger.Info(ctx, "quiz", "quiz.start",
		slog.Int64("user_id", userID),
		slog.String("topic", s.Topic),
	)
	return nil
}

// handleAnswer records the mark, advances the cursor and either edits the
// question message in place with the next question or completes the quiz.
func (e *Engine) handleAnswer(ctx context.Context, s session.Session, ev Event) (string, error) {
	correct := ev.Payload == "1"
	e.track.Flush(ctx, &s, ev.ChatID)
	if correct {
		s.Score++
	}
	s.QuestionIndex++

	toast := ""
	if s.ShowCorrectness {
		if correct {
			toast = e.msgs.AnswerCorrect
		} else {
			toast = e.msgs.AnswerIncorrect
		}
	}

	q, err := e.bank.QuestionAt(s.Topic, s.QuestionIndex)
	if err != nil {
		return toast, e.completeQuiz(ctx, &s, ev.ChatID)
	}

	r := e.render(q)
	opts := transport.Options{
		ParseMode: r.ParseMode,
		Keyboard:  [][]transport.Button{r.Buttons},
	}
	if s.QuestionMessageID != 0 {
		if editErr := e.tr.Edit(ctx, ev.ChatID, s.QuestionMessageID, r.Text, opts); editErr != nil {
			// Documented fallback: a fresh message replaces the uneditable one.
			logger.Warn(ctx, "quiz", "question.edit.fail",
				slog.Int64("user_id", ev.UserID),
				slog.String("err", editErr.Error()),
			)
			id, sendErr := e.tr.Send(ctx, ev.ChatID, r.Text, opts)
			if sendErr != nil {
				return toast, sendErr
			}
			s.QuestionMessageID = id
		}
	} else {
		id, sendErr := e.tr.Send(ctx, ev.ChatID, r.Text, opts)
		if sendErr != nil {
			return toast, sendErr
		}
		s.QuestionMessageID = id
	}

	e.persist(ctx, s)
	logger.Debug(ctx, "quiz", "quiz.answer",
		slog.Int64("user_id", ev.UserID),
		slog.Int("question_idx", s.QuestionIndex),
		slog.Int("score", s.Score),
	)
	return toast, nil
}

// completeQuiz reports the final score to the user, appends the score line
// to the admin notice, removes the question message and resets the session.
func (e *Engine) completeQuiz(ctx context.Context, s *session.Session, chatID int64) error {
	total := s.QuestionIndex
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(s.Score) / float64(total) * 100))
	}

	finalText := fmt.Sprintf(e.msgs.TestEnded, s.TopicName, total, s.Score, percent)
	if id, err := e.tr.Send(ctx, chatID, finalText, transport.Options{}); err == nil {
		e.track.Track(s, id)
	}

	scoreLine := fmt.Sprintf("%d/%d = %d%%", s.Score, total, percent)
	e.updateAdminNotice(ctx, s, s.AdminNoticeText+"\n\n"+scoreLine, scoreLine)

	if s.QuestionMessageID != 0 {
		e.deleteMessage(ctx, chatID, s.QuestionMessageID)
	}

	logger.Info(ctx, "quiz", "quiz.complete",
		slog.Int64("user_id", s.UserID),
		slog.String("topic", s.Topic),
		slog.Int("score", s.Score),
		slog.Int("percent", percent),
	)

	*s = session.ResetWorkflow(*s)
	e.persist(ctx, *s)
	return nil
}

func (e *Engine) render(q content.Question) renderedQuestion {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return renderQuestion(q, e.rng)
}
