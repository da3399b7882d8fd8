package workflow

import (
	"context"
	"log/slog"

	"github.com/aleksashka/quiz-bot/core/logger"
	"github.com/aleksashka/quiz-bot/internal/session"
	"github.com/aleksashka/quiz-bot/internal/transport"
)

// Tracker records message identifiers pending deletion in a session and
// reconciles them against transport results. Cleanup is best effort:
// messages may already be gone, so a failed delete is a warning, never an
// error for the workflow.
type Tracker struct {
	tr transport.Transport
}

// NewTracker builds a tracker over the given transport.
func NewTracker(tr transport.Transport) *Tracker {
	return &Tracker{tr: tr}
}

// Track schedules a message for later deletion. Zero IDs are ignored.
func (t *Tracker) Track(s *session.Session, messageID int) {
	if messageID == 0 {
		return
	}
	s.PendingDeletions = append(s.PendingDeletions, messageID)
}

// Flush attempts to delete every tracked message in chatID. Confirmed
// deletions leave the set; failures stay for the next flush.
func (t *Tracker) Flush(ctx context.Context, s *session.Session, chatID int64) (deleted, kept int) {
	if len(s.PendingDeletions) == 0 {
		return 0, 0
	}
	var remaining []int
	for _, id := range s.PendingDeletions {
		if err := t.tr.Delete(ctx, chatID, id); err != nil {
			remaining = append(remaining, id)
			continue
		}
		deleted++
	}
	s.PendingDeletions = remaining
	if len(remaining) > 0 {
		logger.Warn(ctx, "quiz", "cleanup.partial",
			slog.Int("deleted", deleted),
			slog.Int("kept", len(remaining)),
		)
	}
	return deleted, len(remaining)
}
