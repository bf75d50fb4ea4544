package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

const (
	minChoices = 2
	maxChoices = 26
)

type Config struct {
	Store    Store
	Attempts AttemptCounter
	// Locker must be the one the lifecycle controller uses so question edits
	// and attempt starts on the same quiz cannot interleave.
	Locker *attempt.Locker
	Now    func() time.Time
}

// Service is the quiz catalog. Reads hide inactive quizzes from everyone but their
// owner; writes are restricted to the owner.
type Service struct {
	store    Store
	attempts AttemptCounter
	locker   *attempt.Locker
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		attempts: c.Attempts,
		locker:   c.Locker,
		now:      c.Now,
	}
	if s.locker == nil {
		s.locker = attempt.NewLocker()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetQuiz returns the quiz if it exists and is visible to who.
func (s *Service) GetQuiz(ctx context.Context, who domain.Identity, quizID string) (*domain.Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if !visible(q, who) {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}

	return q, nil
}

// GetQuestions returns the questions of a visible quiz in order, including the answer key.
func (s *Service) GetQuestions(ctx context.Context, who domain.Identity, quizID string) ([]domain.Question, error) {
	if _, err := s.GetQuiz(ctx, who, quizID); err != nil {
		return nil, err
	}

	return s.store.GetQuestions(ctx, quizID)
}

type ListQuizzesRequest struct {
	OwnerID string
}

func (s *Service) ListQuizzes(ctx context.Context, who domain.Identity, req ListQuizzesRequest) ([]domain.Quiz, error) {
	qs, err := s.store.ListQuizzes(ctx, ListFilter{OwnerID: req.OwnerID})
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(qs, func(q domain.Quiz) bool {
		return !visible(&q, who)
	}), nil
}

type CreateQuizRequest struct {
	Title       string
	Description string
	Active      bool
	TimeLimit   time.Duration
}

func (s *Service) CreateQuiz(ctx context.Context, who domain.Identity, req CreateQuizRequest) (*domain.Quiz, error) {
	if who.Role != domain.RoleTeacher && !who.IsAdmin() {
		return nil, errors.Forbidden("only teachers can create quizzes")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.InvalidArgument("title is required")
	}
	if req.TimeLimit < 0 {
		return nil, errors.InvalidArgument("time limit must not be negative")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	now := s.now().UTC()
	q := &domain.Quiz{
		QuizID:      id.String(),
		OwnerID:     who.UserID,
		Title:       title,
		Description: req.Description,
		Active:      req.Active,
		TimeLimit:   req.TimeLimit,
		CreateTime:  now,
		UpdateTime:  now,
	}

	if err := s.store.CreateQuiz(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

// UpdateQuizRequest changes quiz metadata; nil fields are left untouched.
type UpdateQuizRequest struct {
	QuizID      string
	Title       *string
	Description *string
	Active      *bool
	TimeLimit   *time.Duration
}

// UpdateQuiz edits metadata only, which stays allowed after attempts exist.
func (s *Service) UpdateQuiz(ctx context.Context, who domain.Identity, req UpdateQuizRequest) (*domain.Quiz, error) {
	q, err := s.ownedQuiz(ctx, who, req.QuizID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, errors.InvalidArgument("title is required")
		}
		q.Title = title
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if req.Active != nil {
		q.Active = *req.Active
	}
	if req.TimeLimit != nil {
		if *req.TimeLimit < 0 {
			return nil, errors.InvalidArgument("time limit must not be negative")
		}
		q.TimeLimit = *req.TimeLimit
	}
	q.UpdateTime = s.now().UTC()

	if err := s.store.UpdateQuiz(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

type AddQuestionRequest struct {
	QuizID  string
	Prompt  string
	Choices []string
	Correct []int
	Points  decimal.Decimal
}

func (s *Service) AddQuestion(ctx context.Context, who domain.Identity, req AddQuestionRequest) (*domain.Question, error) {
	unlock := s.locker.LockQuiz(req.QuizID)
	defer unlock()

	if _, err := s.editableQuiz(ctx, who, req.QuizID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}

	q := &domain.Question{
		QuestionID: id.String(),
		QuizID:     req.QuizID,
		Prompt:     req.Prompt,
		Choices:    req.Choices,
		Correct:    req.Correct,
		Points:     req.Points,
	}
	if err := normalizeQuestion(q); err != nil {
		return nil, err
	}

	if err := s.store.AddQuestion(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

type UpdateQuestionRequest struct {
	QuizID     string
	QuestionID string
	Prompt     string
	Choices    []string
	Correct    []int
	Points     decimal.Decimal
}

func (s *Service) UpdateQuestion(ctx context.Context, who domain.Identity, req UpdateQuestionRequest) (*domain.Question, error) {
	unlock := s.locker.LockQuiz(req.QuizID)
	defer unlock()

	if _, err := s.editableQuiz(ctx, who, req.QuizID); err != nil {
		return nil, err
	}

	q := &domain.Question{
		QuestionID: req.QuestionID,
		QuizID:     req.QuizID,
		Prompt:     req.Prompt,
		Choices:    req.Choices,
		Correct:    req.Correct,
		Points:     req.Points,
	}
	if err := normalizeQuestion(q); err != nil {
		return nil, err
	}

	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

type DeleteQuestionRequest struct {
	QuizID     string
	QuestionID string
}

func (s *Service) DeleteQuestion(ctx context.Context, who domain.Identity, req DeleteQuestionRequest) error {
	unlock := s.locker.LockQuiz(req.QuizID)
	defer unlock()

	if _, err := s.editableQuiz(ctx, who, req.QuizID); err != nil {
		return err
	}

	return s.store.DeleteQuestion(ctx, req.QuizID, req.QuestionID)
}

func (s *Service) ownedQuiz(ctx context.Context, who domain.Identity, quizID string) (*domain.Quiz, error) {
	q, err := s.GetQuiz(ctx, who, quizID)
	if err != nil {
		return nil, err
	}

	if !q.OwnedBy(who) {
		return nil, errors.Forbidden("quiz is owned by another user: quiz=%s", quizID)
	}

	return q, nil
}

// editableQuiz returns the quiz if who owns it and no attempt references it yet.
// Callers hold the quiz lock until their write is done.
func (s *Service) editableQuiz(ctx context.Context, who domain.Identity, quizID string) (*domain.Quiz, error) {
	q, err := s.ownedQuiz(ctx, who, quizID)
	if err != nil {
		return nil, err
	}

	if s.attempts == nil {
		return q, nil
	}

	n, err := s.attempts.CountAttempts(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if n > 0 {
		return nil, errors.InvalidState("questions are frozen once a quiz has attempts: quiz=%s attempts=%d", quizID, n)
	}

	return q, nil
}

func normalizeQuestion(q *domain.Question) error {
	q.Prompt = strings.TrimSpace(q.Prompt)
	if q.Prompt == "" {
		return errors.InvalidArgument("prompt is required")
	}

	if len(q.Choices) < minChoices || len(q.Choices) > maxChoices {
		return errors.InvalidArgument("a question needs between %d and %d choices, got %d", minChoices, maxChoices, len(q.Choices))
	}

	correct := domain.Selection(q.Correct).Normalize()
	if len(correct) == 0 {
		return errors.InvalidArgument("at least one correct choice is required")
	}
	for _, c := range correct {
		if c < 0 || c >= len(q.Choices) {
			return errors.InvalidArgument("correct choice %d is out of range", c)
		}
	}
	q.Correct = correct

	switch {
	case q.Points.IsNegative():
		return errors.InvalidArgument("points must not be negative")
	case q.Points.IsZero():
		q.Points = domain.DefaultPoints
	}

	return nil
}

func visible(q *domain.Quiz, who domain.Identity) bool {
	return q.Active || q.OwnedBy(who)
}
