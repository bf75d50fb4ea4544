// Package storetest holds behaviour tests shared by every store implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

// Store is what every backend provides.
type Store interface {
	catalog.Store
	attempt.Store
}

// Run exercises the catalog and attempt contracts against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{name: "quiz round trip", fn: testQuizRoundTrip},
		{name: "questions keep their order", fn: testQuestionOrder},
		{name: "unknown ids are not found", fn: testNotFound},
		{name: "single in-progress attempt per student", fn: testSingleInProgress},
		{name: "unlimited attempts when policy is off", fn: testUnlimitedAttempts},
		{name: "answers overwrite and normalize", fn: testRecordAnswer},
		{name: "answer to a foreign question is not found", fn: testForeignQuestion},
		{name: "complete is terminal", fn: testCompleteTerminal},
		{name: "list and count attempts", fn: testListAttempts},
		{name: "concurrent answers on one attempt all land", fn: testConcurrentAnswers},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.fn(t, newStore(t))
		})
	}
}

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func seedQuiz(t *testing.T, s Store, quizID string, questions int) []domain.Question {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateQuiz(ctx, &domain.Quiz{
		QuizID:     quizID,
		OwnerID:    "teacher-1",
		Title:      "Quiz " + quizID,
		Active:     true,
		TimeLimit:  10 * time.Minute,
		CreateTime: t0,
		UpdateTime: t0,
	}))

	out := make([]domain.Question, 0, questions)
	for i := 0; i < questions; i++ {
		q := &domain.Question{
			QuestionID: quizID + "-q" + string(rune('1'+i)),
			QuizID:     quizID,
			Prompt:     "prompt",
			Choices:    []string{"A", "B", "C", "D"},
			Correct:    []int{i % 4},
			Points:     decimal.NewFromInt(int64(i + 1)),
		}
		require.NoError(t, s.AddQuestion(ctx, q))
		out = append(out, *q)
	}
	return out
}

func start(t *testing.T, s Store, quizID, studentID string) *domain.Attempt {
	t.Helper()
	a, err := s.CreateAttempt(context.Background(), attempt.CreateRequest{
		StudentID:        studentID,
		QuizID:           quizID,
		SingleInProgress: true,
		StartTime:        t0,
	})
	require.NoError(t, err)
	return a
}

func testQuizRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 2)

	q, err := s.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", q.OwnerID)
	assert.True(t, q.Active)
	assert.Equal(t, 10*time.Minute, q.TimeLimit)
	assert.True(t, t0.Equal(q.CreateTime))
	assert.Equal(t, []string{"quiz-1-q1", "quiz-1-q2"}, q.QuestionIDs)

	q.Title = "Renamed"
	q.Active = false
	require.NoError(t, s.UpdateQuiz(ctx, q))

	q, err = s.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", q.Title)
	assert.False(t, q.Active)

	err = s.CreateQuiz(ctx, &domain.Quiz{QuizID: "quiz-1", OwnerID: "x", Title: "dup", CreateTime: t0, UpdateTime: t0})
	assert.True(t, errors.Is(err, errors.CodeConflict), "got %v", err)

	list, err := s.ListQuizzes(ctx, catalog.ListFilter{OwnerID: "teacher-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.ListQuizzes(ctx, catalog.ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testQuestionOrder(t *testing.T, s Store) {
	ctx := context.Background()
	seeded := seedQuiz(t, s, "quiz-1", 3)

	qs, err := s.GetQuestions(ctx, "quiz-1")
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for i, q := range qs {
		assert.Equal(t, seeded[i].QuestionID, q.QuestionID)
		assert.Equal(t, i, q.Position)
		assert.True(t, seeded[i].Points.Equal(q.Points))
		assert.Equal(t, seeded[i].Correct, q.Correct)
		assert.Equal(t, seeded[i].Choices, q.Choices)
	}

	require.NoError(t, s.DeleteQuestion(ctx, "quiz-1", seeded[0].QuestionID))

	qs, err = s.GetQuestions(ctx, "quiz-1")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, seeded[1].QuestionID, qs[0].QuestionID)
	assert.Equal(t, 0, qs[0].Position)
	assert.Equal(t, 1, qs[1].Position)

	upd := qs[1]
	upd.Prompt = "changed"
	upd.Correct = []int{3}
	require.NoError(t, s.UpdateQuestion(ctx, &upd))
	assert.Equal(t, 1, upd.Position)

	qs, err = s.GetQuestions(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "changed", qs[1].Prompt)
	assert.Equal(t, []int{3}, qs[1].Correct)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 1)

	_, err := s.GetQuiz(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "GetQuiz: %v", err)

	_, err = s.GetQuestions(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "GetQuestions: %v", err)

	err = s.DeleteQuestion(ctx, "quiz-1", "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "DeleteQuestion: %v", err)

	err = s.UpdateQuiz(ctx, &domain.Quiz{QuizID: "nope", Title: "x", UpdateTime: t0})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "UpdateQuiz: %v", err)

	_, err = s.GetAttempt(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "GetAttempt: %v", err)

	err = s.RecordAnswer(ctx, "nope", "quiz-1-q1", domain.Selection{0})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "RecordAnswer: %v", err)

	_, err = s.MarkComplete(ctx, attempt.CompleteRequest{AttemptID: "nope", CompleteTime: t0})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "MarkComplete: %v", err)

	_, err = s.CreateAttempt(ctx, attempt.CreateRequest{StudentID: "s1", QuizID: "nope", StartTime: t0})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "CreateAttempt: %v", err)
}

func testSingleInProgress(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 1)

	first := start(t, s, "quiz-1", "student-1")
	assert.Equal(t, domain.AttemptInProgress, first.Status)

	_, err := s.CreateAttempt(ctx, attempt.CreateRequest{StudentID: "student-1", QuizID: "quiz-1", SingleInProgress: true, StartTime: t0})
	assert.True(t, errors.Is(err, errors.CodeConflict), "got %v", err)

	// Another student is unaffected.
	start(t, s, "quiz-1", "student-2")

	_, err = s.MarkComplete(ctx, attempt.CompleteRequest{AttemptID: first.AttemptID, Score: decimal.Zero, MaxScore: decimal.NewFromInt(1), CompleteTime: t0})
	require.NoError(t, err)

	start(t, s, "quiz-1", "student-1")
}

func testUnlimitedAttempts(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 1)

	for i := 0; i < 3; i++ {
		_, err := s.CreateAttempt(ctx, attempt.CreateRequest{StudentID: "student-1", QuizID: "quiz-1", StartTime: t0})
		require.NoError(t, err)
	}

	n, err := s.CountAttempts(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testRecordAnswer(t *testing.T, s Store) {
	ctx := context.Background()
	qs := seedQuiz(t, s, "quiz-1", 2)
	a := start(t, s, "quiz-1", "student-1")

	require.NoError(t, s.RecordAnswer(ctx, a.AttemptID, qs[0].QuestionID, domain.Selection{0}))
	require.NoError(t, s.RecordAnswer(ctx, a.AttemptID, qs[0].QuestionID, domain.Selection{1}))
	require.NoError(t, s.RecordAnswer(ctx, a.AttemptID, qs[1].QuestionID, domain.Selection{3, 1, 3}))

	got, err := s.GetAttempt(ctx, a.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Selection{
		qs[0].QuestionID: {1},
		qs[1].QuestionID: {1, 3},
	}, got.Answers)
	assert.Equal(t, "student-1", got.StudentID)
	assert.Nil(t, got.Score)
	assert.Nil(t, got.CompleteTime)
}

func testForeignQuestion(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 1)
	other := seedQuiz(t, s, "quiz-2", 1)
	a := start(t, s, "quiz-1", "student-1")

	err := s.RecordAnswer(ctx, a.AttemptID, other[0].QuestionID, domain.Selection{0})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func testCompleteTerminal(t *testing.T, s Store) {
	ctx := context.Background()
	qs := seedQuiz(t, s, "quiz-1", 1)
	a := start(t, s, "quiz-1", "student-1")

	done, err := s.MarkComplete(ctx, attempt.CompleteRequest{
		AttemptID:    a.AttemptID,
		Score:        decimal.NewFromInt(1),
		MaxScore:     decimal.NewFromInt(3),
		CompleteTime: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, done.Status)
	require.NotNil(t, done.Score)
	require.NotNil(t, done.MaxScore)
	require.NotNil(t, done.CompleteTime)
	assert.True(t, decimal.NewFromInt(1).Equal(*done.Score))
	assert.True(t, decimal.NewFromInt(3).Equal(*done.MaxScore))
	assert.True(t, t0.Add(time.Minute).Equal(*done.CompleteTime))

	_, err = s.MarkComplete(ctx, attempt.CompleteRequest{
		AttemptID:    a.AttemptID,
		Score:        decimal.NewFromInt(3),
		MaxScore:     decimal.NewFromInt(3),
		CompleteTime: t0.Add(2 * time.Minute),
	})
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "got %v", err)

	err = s.RecordAnswer(ctx, a.AttemptID, qs[0].QuestionID, domain.Selection{0})
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "got %v", err)

	got, err := s.GetAttempt(ctx, a.AttemptID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(*got.Score), "score must not be overwritten")
}

func testListAttempts(t *testing.T, s Store) {
	ctx := context.Background()
	seedQuiz(t, s, "quiz-1", 1)
	seedQuiz(t, s, "quiz-2", 1)

	a1 := start(t, s, "quiz-1", "student-1")
	start(t, s, "quiz-1", "student-2")
	start(t, s, "quiz-2", "student-1")

	_, err := s.MarkComplete(ctx, attempt.CompleteRequest{AttemptID: a1.AttemptID, Score: decimal.Zero, MaxScore: decimal.NewFromInt(1), CompleteTime: t0})
	require.NoError(t, err)

	byQuiz, err := s.ListAttempts(ctx, attempt.Filter{QuizID: "quiz-1"})
	require.NoError(t, err)
	assert.Len(t, byQuiz, 2)

	byStudent, err := s.ListAttempts(ctx, attempt.Filter{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Len(t, byStudent, 2)

	completed, err := s.ListAttempts(ctx, attempt.Filter{Status: domain.AttemptCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, a1.AttemptID, completed[0].AttemptID)

	n, err := s.CountAttempts(ctx, "quiz-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountAttempts(ctx, "quiz-3")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConcurrentAnswers(t *testing.T, s Store) {
	ctx := context.Background()
	qs := seedQuiz(t, s, "quiz-1", 4)
	a := start(t, s, "quiz-1", "student-1")

	var wg sync.WaitGroup
	for _, q := range qs {
		wg.Add(1)
		go func(questionID string) {
			defer wg.Done()
			assert.NoError(t, s.RecordAnswer(ctx, a.AttemptID, questionID, domain.Selection{2}))
		}(q.QuestionID)
	}
	wg.Wait()

	got, err := s.GetAttempt(ctx, a.AttemptID)
	require.NoError(t, err)
	assert.Len(t, got.Answers, len(qs))
}
