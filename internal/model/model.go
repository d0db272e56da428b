package model

import (
	"context"
	"time"
)

// UserRole represents an admin user's access level.
type UserRole string

const (
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents an admin-panel user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionKind distinguishes the three question variants.
type QuestionKind string

const (
	// KindSelect is a single/multi-select question graded against a set of option keys.
	KindSelect QuestionKind = "checkbox"
	// KindMatch is an ordered-matching question graded element by element.
	KindMatch QuestionKind = "match"
	// KindText is a free-text question that always goes to manual review.
	KindText QuestionKind = "text_input"
)

// ResultStatus is the lifecycle state of a test result.
// The only transition is pending_review -> completed; both are terminal.
type ResultStatus string

const (
	StatusCompleted     ResultStatus = "completed"
	StatusPendingReview ResultStatus = "pending_review"
)

// ReviewStatus is the per-answer grading state. Auto-graded answers are
// terminal immediately; pending answers transition exactly once to one of
// the two manual states.
type ReviewStatus string

const (
	ReviewAuto            ReviewStatus = "auto"
	ReviewPending         ReviewStatus = "pending"
	ReviewManualCorrect   ReviewStatus = "manual_correct"
	ReviewManualIncorrect ReviewStatus = "manual_incorrect"
)

// Test is a container for questions, identified by a UUID.
type Test struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	IsActive  bool   `json:"isActive"`
	// HasPendingReviews is set by list queries when at least one result
	// of this test awaits manual review.
	HasPendingReviews bool `json:"hasPendingReviews"`
}

// ActiveTest is a published test as shown to respondents, with the flag
// telling whether the named respondent already passed it.
type ActiveTest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DurationMinutes  int    `json:"duration_minutes"`
	PassingScore     int    `json:"passing_score"`
	QuestionsPerTest int    `json:"questions_per_test"`
	AlreadyPassed    bool   `json:"passedStatus"`
}

// TestSettings holds per-test attempt parameters.
type TestSettings struct {
	TestID           string `json:"testId"`
	DurationMinutes  int    `json:"duration_minutes"`
	PassingScore     int    `json:"passing_score"`
	QuestionsPerTest int    `json:"questions_per_test"`
}

// Option is one selectable choice of a select-kind question. Option IDs are
// namespaced as "<questionID>-<key>"; the short key is what canonical answers
// reference.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a question definition. Once referenced by an answer it is
// treated as immutable history: deleting it severs the answer's link but
// never deletes the answer.
type Question struct {
	ID      string       `json:"id"`
	TestID  string       `json:"-"`
	Text    string       `json:"text"`
	Explain string       `json:"explain,omitempty"`
	Kind    QuestionKind `json:"type"`
	// CorrectKeys holds the canonical correct option keys for select questions.
	CorrectKeys []string `json:"correct,omitempty"`
	// MatchPrompts and MatchAnswers are index-aligned for match questions.
	MatchPrompts []string `json:"match_prompts,omitempty"`
	MatchAnswers []string `json:"match_answers,omitempty"`
	Options      []Option `json:"options,omitempty"`
}

// Result is one test-taking attempt.
type Result struct {
	ID         int64        `json:"id"`
	TestID     string       `json:"testId"`
	FIO        string       `json:"fio"`
	Score      int          `json:"score"`
	Total      int          `json:"total"`
	Percentage int          `json:"percentage"`
	Date       string       `json:"date"`
	Status     ResultStatus `json:"status"`
	Passed     bool         `json:"passed"`
}

// Answer is one graded (or deferred) answer owned by a result. QuestionID is
// empty when the question was deleted after the attempt.
type Answer struct {
	ID           int64        `json:"id"`
	ResultID     int64        `json:"resultId"`
	QuestionID   string       `json:"questionId,omitempty"`
	UserAnswer   AnswerValue  `json:"userAnswer"`
	IsCorrect    bool         `json:"isCorrect"`
	ReviewStatus ReviewStatus `json:"reviewStatus"`
}

// AnswerRecord is an answer joined to its (possibly deleted) question, as a
// protocol is built from. Question fields are empty when the question no
// longer exists.
type AnswerRecord struct {
	QuestionID   string
	QuestionText string
	Explanation  string
	Kind         QuestionKind
	CorrectKeys  []string
	MatchPrompts []string
	MatchAnswers []string
	UserAnswer   AnswerValue
	IsCorrect    bool
	ReviewStatus ReviewStatus
}

// SubmittedAnswer is the wire shape of one answer in a submission.
type SubmittedAnswer struct {
	QuestionID string   `json:"questionId"`
	AnswerIDs  []string `json:"answerIds"`
}

// Verdict is one human judgment on a pending answer.
type Verdict struct {
	AnswerID  int64 `json:"answerId"`
	IsCorrect bool  `json:"isCorrect"`
}

// PendingReview is one free-text answer awaiting manual judgment.
type PendingReview struct {
	AnswerID     int64  `json:"answerId"`
	QuestionText string `json:"questionText"`
	Explanation  string `json:"questionExplanation,omitempty"`
	UserAnswer   string `json:"userAnswer"`
}

// ProtocolEntry is the per-question breakdown of a completed result.
type ProtocolEntry struct {
	QuestionText      string       `json:"questionText"`
	ChosenAnswerText  string       `json:"chosenAnswerText"`
	CorrectAnswerText string       `json:"correctAnswerText"`
	IsCorrect         bool         `json:"isCorrect"`
	Explanation       string       `json:"explanation,omitempty"`
	Kind              QuestionKind `json:"type"`
	MatchPrompts      []string     `json:"match_prompts,omitempty"`
	ChosenMatches     []string     `json:"chosen_answers_match,omitempty"`
	CorrectMatches    []string     `json:"correct_answers_match,omitempty"`
}

// ResultSummary is the header of a protocol: the result plus test context.
type ResultSummary struct {
	TestName     string       `json:"testName"`
	FIO          string       `json:"fio"`
	Score        int          `json:"score"`
	Total        int          `json:"total"`
	Percentage   int          `json:"percentage"`
	Date         string       `json:"date"`
	Status       ResultStatus `json:"status"`
	Passed       bool         `json:"passed"`
	PassingScore int          `json:"passingScore"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Addr          string
	Lang          string
	SecureCookies bool
}
