package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is the authenticated caller, resolved at the transport boundary.
type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Quiz is owned by the teacher who created it.
type Quiz struct {
	QuizID      string
	OwnerID     string
	Title       string
	Description string
	Active      bool
	// TimeLimit bounds how long answers are accepted after an attempt starts. Zero means no limit.
	TimeLimit   time.Duration
	QuestionIDs []string
	CreateTime  time.Time
	UpdateTime  time.Time
}

// OwnedBy reports whether the identity may manage the quiz.
func (q *Quiz) OwnedBy(who Identity) bool {
	return who.IsAdmin() || (who.UserID != "" && who.UserID == q.OwnerID)
}

// DefaultPoints is the value of a question created without explicit points.
var DefaultPoints = decimal.NewFromInt(1)

type Question struct {
	QuestionID string
	QuizID     string
	Prompt     string
	Choices    []string
	// Correct is the set of choice indexes that make up the right answer.
	Correct  []int
	Points   decimal.Decimal
	Position int
}

// MultiSelect reports whether the question expects more than one choice.
func (q *Question) MultiSelect() bool { return len(q.Correct) > 1 }

// View strips the answer key.
func (q *Question) View() QuestionView {
	return QuestionView{
		QuestionID:  q.QuestionID,
		Prompt:      q.Prompt,
		Choices:     slices.Clone(q.Choices),
		Points:      q.Points,
		Position:    q.Position,
		MultiSelect: q.MultiSelect(),
	}
}

// QuestionView is what a student sees of a question.
type QuestionView struct {
	QuestionID  string
	Prompt      string
	Choices     []string
	Points      decimal.Decimal
	Position    int
	MultiSelect bool
}

// Selection is the set of choice indexes submitted for one question.
type Selection []int

// Normalize returns a sorted copy without duplicates.
func (s Selection) Normalize() Selection {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// Equal compares two selections as sets.
func (s Selection) Equal(o Selection) bool {
	return slices.Equal(s.Normalize(), o.Normalize())
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Attempt is one student's run through a quiz.
type Attempt struct {
	AttemptID    string
	QuizID       string
	StudentID    string
	Status       AttemptStatus
	Answers      map[string]Selection
	StartTime    time.Time
	CompleteTime *time.Time
	Score        *decimal.Decimal
	MaxScore     *decimal.Decimal
}

func (a *Attempt) InProgress() bool { return a.Status == AttemptInProgress }

// Deadline returns when answers stop being accepted, or the zero time if there is no limit.
func (a *Attempt) Deadline(limit time.Duration) time.Time {
	if limit <= 0 {
		return time.Time{}
	}
	return a.StartTime.Add(limit)
}

// ScoreResult is the outcome of scoring an attempt.
type ScoreResult struct {
	RawScore  decimal.Decimal
	MaxScore  decimal.Decimal
	Questions []QuestionResult
}

// Correctness lists whether each question was answered correctly, in quiz order.
func (r ScoreResult) Correctness() []bool {
	out := make([]bool, 0, len(r.Questions))
	for _, q := range r.Questions {
		out = append(out, q.Correct)
	}
	return out
}

type QuestionResult struct {
	QuestionID string
	Answered   bool
	Correct    bool
	Awarded    decimal.Decimal
	Points     decimal.Decimal
}

// Leaderboard lists students by their best completed score on a quiz, highest first.
type Leaderboard struct {
	QuizID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	StudentID string
	Score     float64
}
