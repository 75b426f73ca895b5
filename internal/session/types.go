package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeoutOption is the option index submitted when the countdown expires.
const TimeoutOption = -1

// Question is one multiple-choice question. CorrectIndex stays nil until the
// server has judged an answer for it.
type Question struct {
	ID           string   `json:"questionId"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex,omitempty"`
}

// Session is a fixed, ordered run of questions created by the backend.
type Session struct {
	ID                   string     `json:"id"`
	CategoryID           string     `json:"categoryId"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
}

// Validate checks the invariants the orchestrator relies on. The number of
// questions and options is whatever the backend assigned: the standard run
// is ten questions of four options, but a backend may serve shorter runs and
// is trusted on shape. Only a run that cannot be played is rejected.
func (s Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session: missing id")
	}
	if len(s.Questions) == 0 {
		return fmt.Errorf("session %s: no questions", s.ID)
	}
	for i, q := range s.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("session %s: question %d has %d options, want at least 2", s.ID, i, len(q.Options))
		}
	}
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return fmt.Errorf("session %s: current index %d out of range", s.ID, s.CurrentQuestionIndex)
	}
	return nil
}

// AnswerRequest is sent to the backend once per question index.
type AnswerRequest struct {
	SessionID     string `json:"-"`
	QuestionIndex int    `json:"questionIndex"`
	OptionIndex   int    `json:"optionIndex"`
	ElapsedMs     int64  `json:"elapsedMs"`
}

// AnswerResult is the server's verdict for one question.
type AnswerResult struct {
	Correct      bool   `json:"correct"`
	CorrectIndex int    `json:"correctIndex"`
	Explanation  string `json:"explanation"`
}

// Result is the final outcome of a session.
type Result struct {
	SessionID            string     `json:"sessionId"`
	Score                int        `json:"score"`
	Total                int        `json:"total"`
	ElapsedMs            int64      `json:"elapsedMs"`
	Won                  bool       `json:"won"`
	EligibilityID        string     `json:"eligibilityId,omitempty"`
	EligibilityExpiresAt *time.Time `json:"eligibilityExpiresAt,omitempty"`
}

// Perfect reports whether every question was answered correctly.
func (r Result) Perfect() bool {
	return r.Total > 0 && r.Score == r.Total
}

// Backend is the remote authority for sessions.
type Backend interface {
	StartSession(ctx context.Context, categoryID string) (Session, error)
	SubmitAnswer(ctx context.Context, req AnswerRequest) (AnswerResult, error)
	CompleteSession(ctx context.Context, sessionID string) (Result, error)
}

// Phase is the orchestrator's position in the session lifecycle.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseStart      Phase = "start"
	PhaseQuestion   Phase = "question"
	PhaseFeedback   Phase = "feedback"
	PhaseCompleting Phase = "completing"
	PhaseFinished   Phase = "finished"
	PhaseAbandoned  Phase = "abandoned"
)

// Terminal reports whether no further transitions can occur.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseAbandoned
}

// Op names the external step that failed.
type Op string

const (
	OpRecover  Op = "recover"
	OpStart    Op = "start"
	OpLock     Op = "lock"
	OpAnswer   Op = "answer"
	OpComplete Op = "complete"
)

// RecoveryPolicy decides what happens when a lock record exists at mount.
type RecoveryPolicy string

const (
	// RecoverResume adopts the locked session when it belongs to the same category.
	RecoverResume RecoveryPolicy = "resume"
	// RecoverFresh discards any existing lock and starts a new session.
	RecoverFresh RecoveryPolicy = "fresh"
)

// ParseRecoveryPolicy accepts config spellings.
func ParseRecoveryPolicy(value string) (RecoveryPolicy, error) {
	switch RecoveryPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", RecoverResume:
		return RecoverResume, nil
	case RecoverFresh:
		return RecoverFresh, nil
	default:
		return "", fmt.Errorf("session: unknown recovery policy %q", value)
	}
}

var (
	ErrNoSession           = errors.New("session: no active session")
	ErrWrongQuestion       = errors.New("session: answer is for a different question")
	ErrDuplicateSubmission = errors.New("session: question already answered")
	ErrNotAcceptingAnswers = errors.New("session: not accepting answers")
	ErrInvalidOption       = errors.New("session: option out of range")
	ErrSessionInProgress   = errors.New("session: another session is in progress")
	ErrInert               = errors.New("session: orchestrator is no longer active")
)

// Feedback describes the verdict currently on screen.
type Feedback struct {
	Index     int
	Selected  int
	Result    AnswerResult
	IsTimeout bool
}

// CompletedMsg is emitted once when the session result is delivered.
type CompletedMsg struct {
	Result Result
}

// FailedMsg is emitted whenever an external call fails. The orchestrator
// does not retry on its own; see Retry and Abandon.
type FailedMsg struct {
	Op  Op
	Err error
}

// RecoveredMsg is emitted when a locked session was adopted at mount.
type RecoveredMsg struct {
	SessionID string
	Index     int
}
