package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

// Wire messages shared by the HTTP API and the gRPC service. Choices travel as
// letters, "A" being the first choice of a question.

type (
	Attempt struct {
		AttemptID    string              `json:"attempt_id"`
		QuizID       string              `json:"quiz_id"`
		StudentID    string              `json:"student_id"`
		Status       string              `json:"status"`
		Answers      map[string][]string `json:"answers"`
		StartTime    time.Time           `json:"start_time"`
		CompleteTime *time.Time          `json:"complete_time,omitempty"`
		Score        *decimal.Decimal    `json:"score,omitempty"`
		MaxScore     *decimal.Decimal    `json:"max_score,omitempty"`
	}

	QuestionView struct {
		QuestionID  string          `json:"question_id"`
		Prompt      string          `json:"prompt"`
		Choices     []string        `json:"choices"`
		Points      decimal.Decimal `json:"points"`
		Position    int             `json:"position"`
		MultiSelect bool            `json:"multi_select"`
	}

	// Question includes the answer key and is only shown to the quiz owner.
	Question struct {
		QuestionView
		Correct []string `json:"correct"`
	}

	QuestionResult struct {
		QuestionID string          `json:"question_id"`
		Answered   bool            `json:"answered"`
		Correct    bool            `json:"correct"`
		Awarded    decimal.Decimal `json:"awarded"`
		Points     decimal.Decimal `json:"points"`
	}

	Quiz struct {
		QuizID           string    `json:"quiz_id"`
		OwnerID          string    `json:"owner_id"`
		Title            string    `json:"title"`
		Description      string    `json:"description"`
		Active           bool      `json:"active"`
		TimeLimitSeconds int64     `json:"time_limit_seconds"`
		QuestionIDs      []string  `json:"question_ids"`
		CreateTime       time.Time `json:"create_time"`
		UpdateTime       time.Time `json:"update_time"`
	}

	Leaderboard struct {
		QuizID  string             `json:"quiz_id"`
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		StudentID string `json:"student_id"`
		Score     string `json:"score"`
	}
)

type (
	StartAttemptRequest struct {
		QuizID string `json:"quiz_id" binding:"required"`
	}

	StartAttemptResponse struct {
		Attempt       Attempt      `json:"attempt"`
		FirstQuestion QuestionView `json:"first_question"`
		QuestionCount int          `json:"question_count"`
	}

	SubmitAnswerRequest struct {
		AttemptID  string   `json:"attempt_id"`
		QuestionID string   `json:"question_id" binding:"required"`
		Choices    []string `json:"choices" binding:"required,min=1,dive,required"`
	}

	SubmitAnswerResponse struct {
		OK bool `json:"ok"`
	}

	CompleteAttemptRequest struct {
		AttemptID string `json:"attempt_id"`
	}

	CompleteAttemptResponse struct {
		Attempt                Attempt          `json:"attempt"`
		Score                  decimal.Decimal  `json:"score"`
		MaxScore               decimal.Decimal  `json:"max_score"`
		PerQuestionCorrectness []bool           `json:"per_question_correctness"`
		Questions              []QuestionResult `json:"questions"`
	}

	GetAttemptRequest struct {
		AttemptID string `json:"attempt_id"`
	}

	GetAttemptResponse struct {
		Attempt Attempt `json:"attempt"`
	}

	ListAttemptsRequest struct {
		QuizID    string `form:"quiz_id" json:"quiz_id"`
		StudentID string `form:"student_id" json:"student_id"`
		Status    string `form:"status" json:"status" binding:"omitempty,oneof=in_progress completed"`
	}

	ListAttemptsResponse struct {
		Attempts []Attempt `json:"attempts"`
	}

	GetLeaderboardRequest struct {
		QuizID string `json:"quiz_id"`
		Limit  int    `form:"limit" json:"limit" binding:"gte=0"`
	}

	GetLeaderboardResponse struct {
		Leaderboard Leaderboard `json:"leaderboard"`
	}
)

type (
	createQuizRequest struct {
		Title            string `json:"title" binding:"required"`
		Description      string `json:"description"`
		Active           bool   `json:"active"`
		TimeLimitSeconds int64  `json:"time_limit_seconds" binding:"gte=0,lte=31536000"`
	}

	updateQuizRequest struct {
		Title            *string `json:"title"`
		Description      *string `json:"description"`
		Active           *bool   `json:"active"`
		TimeLimitSeconds *int64  `json:"time_limit_seconds" binding:"omitempty,gte=0,lte=31536000"`
	}

	questionRequest struct {
		Prompt  string          `json:"prompt" binding:"required"`
		Choices []string        `json:"choices" binding:"required,min=2"`
		Correct []string        `json:"correct" binding:"required,min=1"`
		Points  decimal.Decimal `json:"points"`
	}
)

func choiceLetter(i int) string {
	return string(rune('A' + i))
}

func lettersOf(sel []int) []string {
	out := make([]string, 0, len(sel))
	for _, i := range sel {
		out = append(out, choiceLetter(i))
	}
	return out
}

// parseChoices converts letters to choice indexes. Letters are case-insensitive.
func parseChoices(letters []string) (domain.Selection, error) {
	sel := make(domain.Selection, 0, len(letters))
	for _, l := range letters {
		l = strings.ToUpper(strings.TrimSpace(l))
		if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
			return nil, errors.InvalidArgument("choice %q is not a letter A-Z", l)
		}
		sel = append(sel, int(l[0]-'A'))
	}
	return sel, nil
}

func toAttempt(a *domain.Attempt) Attempt {
	answers := make(map[string][]string, len(a.Answers))
	for q, sel := range a.Answers {
		answers[q] = lettersOf(sel)
	}

	return Attempt{
		AttemptID:    a.AttemptID,
		QuizID:       a.QuizID,
		StudentID:    a.StudentID,
		Status:       string(a.Status),
		Answers:      answers,
		StartTime:    a.StartTime,
		CompleteTime: a.CompleteTime,
		Score:        a.Score,
		MaxScore:     a.MaxScore,
	}
}

func toQuestionView(v domain.QuestionView) QuestionView {
	return QuestionView{
		QuestionID:  v.QuestionID,
		Prompt:      v.Prompt,
		Choices:     v.Choices,
		Points:      v.Points,
		Position:    v.Position,
		MultiSelect: v.MultiSelect,
	}
}

func toQuestion(q *domain.Question) Question {
	return Question{
		QuestionView: toQuestionView(q.View()),
		Correct:      lettersOf(q.Correct),
	}
}

func toQuiz(q *domain.Quiz) Quiz {
	ids := q.QuestionIDs
	if ids == nil {
		ids = []string{}
	}

	return Quiz{
		QuizID:           q.QuizID,
		OwnerID:          q.OwnerID,
		Title:            q.Title,
		Description:      q.Description,
		Active:           q.Active,
		TimeLimitSeconds: int64(q.TimeLimit / time.Second),
		QuestionIDs:      ids,
		CreateTime:       q.CreateTime,
		UpdateTime:       q.UpdateTime,
	}
}

func toLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{
		QuizID:  l.QuizID,
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		out.Entries = append(out.Entries, LeaderboardEntry{
			StudentID: e.StudentID,
			Score:     decimal.NewFromFloat(e.Score).String(),
		})
	}
	return out
}

func toCompleteResponse(a *domain.Attempt, r domain.ScoreResult) *CompleteAttemptResponse {
	questions := make([]QuestionResult, 0, len(r.Questions))
	for _, q := range r.Questions {
		questions = append(questions, QuestionResult{
			QuestionID: q.QuestionID,
			Answered:   q.Answered,
			Correct:    q.Correct,
			Awarded:    q.Awarded,
			Points:     q.Points,
		})
	}

	return &CompleteAttemptResponse{
		Attempt:                toAttempt(a),
		Score:                  r.RawScore,
		MaxScore:               r.MaxScore,
		PerQuestionCorrectness: r.Correctness(),
		Questions:              questions,
	}
}
