// Package memory keeps quizzes and attempts in process memory. It backs local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

var (
	_ catalog.Store = (*Store)(nil)
	_ attempt.Store = (*Store)(nil)
)

// Store implements catalog.Store and attempt.Store. A single mutex guards all
// state, so every mutation on an attempt is serialized.
type Store struct {
	mu        sync.RWMutex
	quizzes   map[string]*domain.Quiz
	questions map[string]*domain.Question
	attempts  map[string]*domain.Attempt
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]*domain.Quiz),
		questions: make(map[string]*domain.Question),
		attempts:  make(map[string]*domain.Attempt),
	}
}

func (s *Store) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.QuizID]; ok {
		return errors.Conflict("quiz already exists: quiz=%s", q.QuizID)
	}

	c := cloneQuiz(q)
	c.QuestionIDs = nil
	s.quizzes[q.QuizID] = c
	return nil
}

func (s *Store) UpdateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.quizzes[q.QuizID]
	if !ok {
		return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
	}

	cur.Title = q.Title
	cur.Description = q.Description
	cur.Active = q.Active
	cur.TimeLimit = q.TimeLimit
	cur.UpdateTime = q.UpdateTime
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}

	return cloneQuiz(q), nil
}

func (s *Store) ListQuizzes(_ context.Context, f catalog.ListFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if f.OwnerID != "" && q.OwnerID != f.OwnerID {
			continue
		}
		if f.ActiveOnly && !q.Active {
			continue
		}
		out = append(out, *cloneQuiz(q))
	}

	slices.SortFunc(out, func(a, b domain.Quiz) int {
		return a.CreateTime.Compare(b.CreateTime)
	})
	return out, nil
}

func (s *Store) AddQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.quizzes[q.QuizID]
	if !ok {
		return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
	}

	q.Position = len(quiz.QuestionIDs)
	quiz.QuestionIDs = append(quiz.QuestionIDs, q.QuestionID)
	s.questions[q.QuestionID] = cloneQuestion(q)
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.questions[q.QuestionID]
	if !ok || cur.QuizID != q.QuizID {
		return errors.NotFound("question not found: quiz=%s question=%s", q.QuizID, q.QuestionID)
	}

	q.Position = cur.Position
	s.questions[q.QuestionID] = cloneQuestion(q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, quizID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.questions[questionID]
	if !ok || cur.QuizID != quizID {
		return errors.NotFound("question not found: quiz=%s question=%s", quizID, questionID)
	}

	delete(s.questions, questionID)
	quiz := s.quizzes[quizID]
	quiz.QuestionIDs = slices.DeleteFunc(quiz.QuestionIDs, func(id string) bool { return id == questionID })
	for i, id := range quiz.QuestionIDs {
		s.questions[id].Position = i
	}
	return nil
}

func (s *Store) GetQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}

	out := make([]domain.Question, 0, len(quiz.QuestionIDs))
	for _, id := range quiz.QuestionIDs {
		out = append(out, *cloneQuestion(s.questions[id]))
	}
	return out, nil
}

func (s *Store) CreateAttempt(_ context.Context, req attempt.CreateRequest) (*domain.Attempt, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[req.QuizID]; !ok {
		return nil, errors.NotFound("quiz not found: quiz=%s", req.QuizID)
	}

	if req.SingleInProgress {
		for _, a := range s.attempts {
			if a.QuizID == req.QuizID && a.StudentID == req.StudentID && a.InProgress() {
				return nil, errors.Conflict("student already has an attempt in progress: quiz=%s attempt=%s", req.QuizID, a.AttemptID)
			}
		}
	}

	a := &domain.Attempt{
		AttemptID: id.String(),
		QuizID:    req.QuizID,
		StudentID: req.StudentID,
		Status:    domain.AttemptInProgress,
		Answers:   make(map[string]domain.Selection),
		StartTime: req.StartTime,
	}
	s.attempts[a.AttemptID] = a

	return cloneAttempt(a), nil
}

func (s *Store) RecordAnswer(_ context.Context, attemptID, questionID string, sel domain.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return errors.NotFound("attempt not found: attempt=%s", attemptID)
	}
	if !a.InProgress() {
		return errors.InvalidState("attempt is not in progress: attempt=%s status=%s", attemptID, a.Status)
	}

	q, ok := s.questions[questionID]
	if !ok || q.QuizID != a.QuizID {
		return errors.NotFound("question not found in quiz: quiz=%s question=%s", a.QuizID, questionID)
	}

	a.Answers[questionID] = sel.Normalize()
	return nil
}

func (s *Store) MarkComplete(_ context.Context, req attempt.CompleteRequest) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[req.AttemptID]
	if !ok {
		return nil, errors.NotFound("attempt not found: attempt=%s", req.AttemptID)
	}
	if !a.InProgress() {
		return nil, errors.InvalidState("attempt is already completed: attempt=%s", req.AttemptID)
	}

	completed, score, maxScore := req.CompleteTime, req.Score, req.MaxScore
	a.Status = domain.AttemptCompleted
	a.CompleteTime = &completed
	a.Score = &score
	a.MaxScore = &maxScore

	return cloneAttempt(a), nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, errors.NotFound("attempt not found: attempt=%s", attemptID)
	}

	return cloneAttempt(a), nil
}

func (s *Store) ListAttempts(_ context.Context, f attempt.Filter) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if f.Match(a) {
			out = append(out, *cloneAttempt(a))
		}
	}

	slices.SortFunc(out, func(a, b domain.Attempt) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return out, nil
}

func (s *Store) CountAttempts(_ context.Context, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func cloneQuiz(q *domain.Quiz) *domain.Quiz {
	c := *q
	c.QuestionIDs = slices.Clone(q.QuestionIDs)
	return &c
}

func cloneQuestion(q *domain.Question) *domain.Question {
	c := *q
	c.Choices = slices.Clone(q.Choices)
	c.Correct = slices.Clone(q.Correct)
	return &c
}

func cloneAttempt(a *domain.Attempt) *domain.Attempt {
	c := *a
	c.Answers = make(map[string]domain.Selection, len(a.Answers))
	for k, v := range a.Answers {
		c.Answers[k] = slices.Clone(v)
	}
	return &c
}
