package catalog

import (
	"context"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
)

// Store persists quizzes and their questions. Implementations return
// errors.CodeNotFound for unknown quiz or question ids.
type Store interface {
	CreateQuiz(ctx context.Context, q *domain.Quiz) error
	UpdateQuiz(ctx context.Context, q *domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, f ListFilter) ([]domain.Quiz, error)

	// AddQuestion appends the question to its quiz and sets its Position.
	AddQuestion(ctx context.Context, q *domain.Question) error
	UpdateQuestion(ctx context.Context, q *domain.Question) error
	DeleteQuestion(ctx context.Context, quizID, questionID string) error
	// GetQuestions returns the quiz's questions ordered by position.
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

type ListFilter struct {
	OwnerID    string
	ActiveOnly bool
}

// AttemptCounter reports how many attempts reference a quiz.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, quizID string) (int, error)
}
