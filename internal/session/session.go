// Package session defines the persisted per-user workflow state and the
// stores that keep it. The workflow engine is the sole mutator; stores only
// persist and retrieve snapshots.
package session

// State identifies the single active step of a user's workflow.
type State string

const (
	// StateIdle means no workflow is in progress.
	StateIdle State = "idle"
	// StateAwaitingUserInfo means the user was asked to type identifying info.
	StateAwaitingUserInfo State = "awaiting_user_info"
	// StateSelectingTopic means info is on file and a topic can be picked.
	StateSelectingTopic State = "selecting_topic"
	// StateAwaitingAdmission means the admin has a pending accept/reject.
	StateAwaitingAdmission State = "awaiting_admission"
	// StateInQuiz means the user is answering questions.
	StateInQuiz State = "in_quiz"
)

// Valid reports whether s is one of the five enumerated states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingUserInfo, StateSelectingTopic,
		StateAwaitingAdmission, StateInQuiz:
		return true
	}
	return false
}

// Session is the explicit per-user workflow record. Zero value plus
// QuestionIndex = -1 is a fresh idle session; use New for that.
type Session struct {
	UserID int64
	State  State

	// UserInfo is the validated free-text identity; set once, kept until
	// the session is wiped by /finish.
	UserInfo string

	// Topic fields are captured when entering admission and fixed for the
	// run, so a content reload never changes an admitted user's quiz.
	Topic           string
	TopicName       string
	ShowCorrectness bool

	// QuestionIndex is -1 before the first question is asked.
	QuestionIndex int
	Score         int

	// PendingDeletions are message IDs scheduled for best-effort removal.
	PendingDeletions []int

	AdminNoticeID     int
	AdminNoticeText   string
	QuestionMessageID int
}

// New returns a fresh idle session for the user.
func New(userID int64) Session {
	return Session{UserID: userID, State: StateIdle, QuestionIndex: -1}
}

// ResetWorkflow clears the workflow-specific fields and returns the session
// to idle. UserInfo and PendingDeletions survive: the cancel path still
// needs the deletion list to flush it, and the user should not have to
// re-register after every quiz.
func ResetWorkflow(s Session) Session {
	out := New(s.UserID)
	out.UserInfo = s.UserInfo
	out.PendingDeletions = s.PendingDeletions
	return out
}

// Wipe discards everything, including UserInfo. Used by /finish.
func Wipe(s Session) Session {
	return New(s.UserID)
}
