package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by the sessions table.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

type sessionRow struct {
	UserID            int64         `db:"user_id"`
	State             string        `db:"state"`
	UserInfo          string        `db:"user_info"`
	Topic             string        `db:"topic"`
	TopicName         string        `db:"topic_name"`
	ShowCorrectness   bool          `db:"show_correctness"`
	QuestionIndex     int           `db:"question_index"`
	Score             int           `db:"score"`
	PendingDeletions  pq.Int64Array `db:"pending_deletions"`
	AdminNoticeID     int           `db:"admin_notice_id"`
	AdminNoticeText   string        `db:"admin_notice_text"`
	QuestionMessageID int           `db:"question_message_id"`
}

func (p *postgresStore) Get(ctx context.Context, userID int64) (Session, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row,
		`SELECT user_id, state, user_info, topic, topic_name, show_correctness,
		        question_index, score, pending_deletions,
		        admin_notice_id, admin_notice_text, question_message_id
		 FROM sessions WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return New(userID), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get %d: %w", userID, err)
	}

	s := Session{
		UserID:            row.UserID,
		State:             State(row.State),
		UserInfo:          row.UserInfo,
		Topic:             row.Topic,
		TopicName:         row.TopicName,
		ShowCorrectness:   row.ShowCorrectness,
		QuestionIndex:     row.QuestionIndex,
		Score:             row.Score,
		AdminNoticeID:     row.AdminNoticeID,
		AdminNoticeText:   row.AdminNoticeText,
		QuestionMessageID: row.QuestionMessageID,
	}
	for _, id := range row.PendingDeletions {
		s.PendingDeletions = append(s.PendingDeletions, int(id))
	}
	if !s.State.Valid() {
		// A row written by an incompatible version is treated as idle
		// rather than poisoning the dispatch loop.
		return New(userID), nil
	}
	return s, nil
}

func (p *postgresStore) Set(ctx context.Context, s Session) error {
	pending := make(pq.Int64Array, 0, len(s.PendingDeletions))
	for _, id := range s.PendingDeletions {
		pending = append(pending, int64(id))
	}
	row := sessionRow{
		UserID:            s.UserID,
		State:             string(s.State),
		UserInfo:          s.UserInfo,
		Topic:             s.Topic,
		TopicName:         s.TopicName,
		ShowCorrectness:   s.ShowCorrectness,
		QuestionIndex:     s.QuestionIndex,
		Score:             s.Score,
		PendingDeletions:  pending,
		AdminNoticeID:     s.AdminNoticeID,
		AdminNoticeText:   s.AdminNoticeText,
		QuestionMessageID: s.QuestionMessageID,
	}
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO sessions (user_id, state, user_info, topic, topic_name,
		        show_correctness, question_index, score, pending_deletions,
		        admin_notice_id, admin_notice_text, question_message_id, updated_at)
		 VALUES (:user_id, :state, :user_info, :topic, :topic_name,
		        :show_correctness, :question_index, :score, :pending_deletions,
		        :admin_notice_id, :admin_notice_text, :question_message_id, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		        state = EXCLUDED.state,
		        user_info = EXCLUDED.user_info,
		        topic = EXCLUDED.topic,
		        topic_name = EXCLUDED.topic_name,
		        show_correctness = EXCLUDED.show_correctness,
		        question_index = EXCLUDED.question_index,
		        score = EXCLUDED.score,
		        pending_deletions = EXCLUDED.pending_deletions,
		        admin_notice_id = EXCLUDED.admin_notice_id,
		        admin_notice_text = EXCLUDED.admin_notice_text,
		        question_message_id = EXCLUDED.question_message_id,
		        updated_at = now()`, row)
	if err != nil {
		return fmt.Errorf("session: set %d: %w", s.UserID, err)
	}
	return nil
}
