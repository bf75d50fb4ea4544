package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/memory"
)

var (
	teacher  = domain.Identity{UserID: "teacher-1", Role: domain.RoleTeacher}
	stranger = domain.Identity{UserID: "teacher-2", Role: domain.RoleTeacher}
	student  = domain.Identity{UserID: "student-1", Role: domain.RoleStudent}
	admin    = domain.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
)

func newService(t *testing.T) (*catalog.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return catalog.NewService(catalog.Config{
		Store:    store,
		Attempts: store,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	}), store
}

func TestService_CreateQuiz(t *testing.T) {
	tests := map[string]struct {
		who     domain.Identity
		req     catalog.CreateQuizRequest
		wantErr errors.Code
	}{
		"teacher creates": {
			who: teacher,
			req: catalog.CreateQuizRequest{Title: "  Kanji N5 ", Active: true},
		},
		"admin creates": {
			who: admin,
			req: catalog.CreateQuizRequest{Title: "Kana"},
		},
		"student is forbidden": {
			who:     student,
			req:     catalog.CreateQuizRequest{Title: "Mine"},
			wantErr: errors.CodeForbidden,
		},
		"blank title": {
			who:     teacher,
			req:     catalog.CreateQuizRequest{Title: "   "},
			wantErr: errors.CodeInvalidArgument,
		},
		"negative time limit": {
			who:     teacher,
			req:     catalog.CreateQuizRequest{Title: "Timed", TimeLimit: -time.Second},
			wantErr: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, _ := newService(t)

			q, err := svc.CreateQuiz(context.Background(), tt.who, tt.req)
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, q.QuizID)
			assert.Equal(t, tt.who.UserID, q.OwnerID)
			assert.NotContains(t, q.Title, " K")
		})
	}
}

func TestService_Visibility(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	draft, err := svc.CreateQuiz(ctx, teacher, catalog.CreateQuizRequest{Title: "Draft"})
	require.NoError(t, err)
	live, err := svc.CreateQuiz(ctx, teacher, catalog.CreateQuizRequest{Title: "Live", Active: true})
	require.NoError(t, err)

	_, err = svc.GetQuiz(ctx, student, draft.QuizID)
	assert.True(t, errors.Is(err, errors.CodeNotFound), "inactive quiz must look missing to students")

	_, err = svc.GetQuestions(ctx, stranger, draft.QuizID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	for _, who := range []domain.Identity{teacher, admin} {
		got, err := svc.GetQuiz(ctx, who, draft.QuizID)
		require.NoError(t, err)
		assert.Equal(t, "Draft", got.Title)
	}

	got, err := svc.GetQuiz(ctx, student, live.QuizID)
	require.NoError(t, err)
	assert.Equal(t, "Live", got.Title)

	list, err := svc.ListQuizzes(ctx, student, catalog.ListQuizzesRequest{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live.QuizID, list[0].QuizID)

	list, err = svc.ListQuizzes(ctx, teacher, catalog.ListQuizzesRequest{OwnerID: teacher.UserID})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_UpdateQuiz(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	q, err := svc.CreateQuiz(ctx, teacher, catalog.CreateQuizRequest{Title: "Old", Active: true})
	require.NoError(t, err)

	title := "New"
	_, err = svc.UpdateQuiz(ctx, stranger, catalog.UpdateQuizRequest{QuizID: q.QuizID, Title: &title})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	active := false
	limit := 10 * time.Minute
	got, err := svc.UpdateQuiz(ctx, teacher, catalog.UpdateQuizRequest{QuizID: q.QuizID, Title: &title, Active: &active, TimeLimit: &limit})
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.False(t, got.Active)
	assert.Equal(t, limit, got.TimeLimit)

	_, err = svc.GetQuiz(ctx, student, q.QuizID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_AddQuestion(t *testing.T) {
	tests := map[string]struct {
		req        catalog.AddQuestionRequest
		wantErr    errors.Code
		wantPoints decimal.Decimal
		wantKey    []int
	}{
		"single choice with default points": {
			req:        catalog.AddQuestionRequest{Prompt: "いぬ?", Choices: []string{"dog", "cat"}, Correct: []int{0}},
			wantPoints: decimal.NewFromInt(1),
			wantKey:    []int{0},
		},
		"multi select key is normalized": {
			req:        catalog.AddQuestionRequest{Prompt: "Pick vowels", Choices: []string{"a", "k", "i"}, Correct: []int{2, 0, 2}, Points: decimal.NewFromInt(3)},
			wantPoints: decimal.NewFromInt(3),
			wantKey:    []int{0, 2},
		},
		"missing prompt": {
			req:     catalog.AddQuestionRequest{Choices: []string{"a", "b"}, Correct: []int{0}},
			wantErr: errors.CodeInvalidArgument,
		},
		"too few choices": {
			req:     catalog.AddQuestionRequest{Prompt: "?", Choices: []string{"a"}, Correct: []int{0}},
			wantErr: errors.CodeInvalidArgument,
		},
		"correct out of range": {
			req:     catalog.AddQuestionRequest{Prompt: "?", Choices: []string{"a", "b"}, Correct: []int{2}},
			wantErr: errors.CodeInvalidArgument,
		},
		"no correct choice": {
			req:     catalog.AddQuestionRequest{Prompt: "?", Choices: []string{"a", "b"}},
			wantErr: errors.CodeInvalidArgument,
		},
		"negative points": {
			req:     catalog.AddQuestionRequest{Prompt: "?", Choices: []string{"a", "b"}, Correct: []int{1}, Points: decimal.NewFromInt(-1)},
			wantErr: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t)

			quiz, err := svc.CreateQuiz(ctx, teacher, catalog.CreateQuizRequest{Title: "Q", Active: true})
			require.NoError(t, err)

			tt.req.QuizID = quiz.QuizID
			q, err := svc.AddQuestion(ctx, teacher, tt.req)
			if tt.wantErr != 0 {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantPoints.Equal(q.Points), "points %s", q.Points)
			assert.Equal(t, tt.wantKey, q.Correct)

			qs, err := svc.GetQuestions(ctx, student, quiz.QuizID)
			require.NoError(t, err)
			require.Len(t, qs, 1)
			assert.Equal(t, q.QuestionID, qs[0].QuestionID)
		})
	}
}

func TestService_QuestionsFrozenOnceAttempted(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	quiz, err := svc.CreateQuiz(ctx, teacher, catalog.CreateQuizRequest{Title: "Q", Active: true})
	require.NoError(t, err)
	q, err := svc.AddQuestion(ctx, teacher, catalog.AddQuestionRequest{QuizID: quiz.QuizID, Prompt: "?", Choices: []string{"a", "b"}, Correct: []int{0}})
	require.NoError(t, err)

	_, err = svc.AddQuestion(ctx, stranger, catalog.AddQuestionRequest{QuizID: quiz.QuizID, Prompt: "?", Choices: []string{"a", "b"}, Correct: []int{0}})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = store.CreateAttempt(ctx, attempt.CreateRequest{StudentID: student.UserID, QuizID: quiz.QuizID, StartTime: time.Now()})
	require.NoError(t, err)

	_, err = svc.AddQuestion(ctx, teacher, catalog.AddQuestionRequest{QuizID: quiz.QuizID, Prompt: "?", Choices: []string{"a", "b"}, Correct: []int{0}})
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "got %v", err)

	_, err = svc.UpdateQuestion(ctx, teacher, catalog.UpdateQuestionRequest{QuizID: quiz.QuizID, QuestionID: q.QuestionID, Prompt: "!", Choices: []string{"a", "b"}, Correct: []int{1}})
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "got %v", err)

	err = svc.DeleteQuestion(ctx, teacher, catalog.DeleteQuestionRequest{QuizID: quiz.QuizID, QuestionID: q.QuestionID})
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "got %v", err)

	title := "Renamed"
	_, err = svc.UpdateQuiz(ctx, teacher, catalog.UpdateQuizRequest{QuizID: quiz.QuizID, Title: &title})
	assert.NoError(t, err, "metadata stays editable")
}
