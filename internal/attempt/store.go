// Package attempt defines persistence for quiz attempts.
package attempt

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
)

// Store is the only mutator of attempt state. Implementations serialize
// mutations on the same attempt id and report failures as typed errors:
// errors.CodeNotFound, errors.CodeInvalidState and errors.CodeConflict.
type Store interface {
	// CreateAttempt starts a new in-progress attempt. With singleInProgress set it
	// fails with CodeConflict when the student already has an unfinished attempt on the quiz.
	CreateAttempt(ctx context.Context, req CreateRequest) (*domain.Attempt, error)

	// RecordAnswer stores sel for the question, replacing any earlier selection.
	// The question must belong to the attempt's quiz and the attempt must be in progress.
	RecordAnswer(ctx context.Context, attemptID, questionID string, sel domain.Selection) error

	// MarkComplete moves the attempt to completed and stores its score in one step.
	MarkComplete(ctx context.Context, req CompleteRequest) (*domain.Attempt, error)

	GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error)
	ListAttempts(ctx context.Context, f Filter) ([]domain.Attempt, error)
	CountAttempts(ctx context.Context, quizID string) (int, error)
}

type CreateRequest struct {
	StudentID        string
	QuizID           string
	SingleInProgress bool
	StartTime        time.Time
}

type CompleteRequest struct {
	AttemptID    string
	Score        decimal.Decimal
	MaxScore     decimal.Decimal
	CompleteTime time.Time
}

// Filter narrows ListAttempts; empty fields match everything.
type Filter struct {
	QuizID    string
	StudentID string
	Status    domain.AttemptStatus
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a *domain.Attempt) bool {
	return (f.QuizID == "" || f.QuizID == a.QuizID) &&
		(f.StudentID == "" || f.StudentID == a.StudentID) &&
		(f.Status == "" || f.Status == a.Status)
}
