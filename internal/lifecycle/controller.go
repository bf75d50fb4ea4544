// Package lifecycle drives a quiz attempt from start to completion.
//
// An attempt is implicitly NotStarted until Start creates it in progress;
// Complete moves it to completed, which is terminal. Answer and Complete on the
// same attempt are serialized, so a completion never scores a stale answer set
// and an attempt is never scored twice.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/scoring"
)

// Catalog is the read side of the quiz catalog. catalog.Store satisfies it.
type Catalog interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// Policy holds the rules the source system left open.
type Policy struct {
	// SingleInProgress allows at most one unfinished attempt per student and quiz.
	SingleInProgress bool
	// AllowResubmit lets a student change an answer before completing.
	AllowResubmit bool
}

func DefaultPolicy() Policy {
	return Policy{
		SingleInProgress: true,
		AllowResubmit:    true,
	}
}

type Config struct {
	Catalog  Catalog
	Attempts attempt.Store
	EventBus *event.Bus
	Locker   *attempt.Locker
	Policy   Policy
	Now      func() time.Time
}

type Controller struct {
	catalog  Catalog
	attempts attempt.Store
	eb       *event.Bus
	locker   *attempt.Locker
	policy   Policy
	now      func() time.Time
}

func NewController(c Config) *Controller {
	ctl := &Controller{
		catalog:  c.Catalog,
		attempts: c.Attempts,
		eb:       c.EventBus,
		locker:   c.Locker,
		policy:   c.Policy,
		now:      c.Now,
	}
	if ctl.locker == nil {
		ctl.locker = attempt.NewLocker()
	}
	if ctl.now == nil {
		ctl.now = time.Now
	}
	return ctl
}

type StartRequest struct {
	QuizID string
}

type StartResponse struct {
	Attempt       *domain.Attempt
	FirstQuestion domain.QuestionView
	QuestionCount int
}

// Start opens a new attempt for the calling student on an active quiz.
func (c *Controller) Start(ctx context.Context, who domain.Identity, req StartRequest) (*StartResponse, error) {
	if who.Role != domain.RoleStudent || who.UserID == "" {
		return nil, errors.Forbidden("only students can start attempts")
	}

	quiz, err := c.catalog.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if !quiz.Active {
		return nil, errors.NotFound("quiz not found: quiz=%s", req.QuizID)
	}

	unlock := c.locker.LockQuiz(req.QuizID)
	defer unlock()

	questions, err := c.catalog.GetQuestions(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.InvalidState("quiz has no questions: quiz=%s", req.QuizID)
	}

	a, err := c.attempts.CreateAttempt(ctx, attempt.CreateRequest{
		StudentID:        who.UserID,
		QuizID:           req.QuizID,
		SingleInProgress: c.policy.SingleInProgress,
		StartTime:        c.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "lifecycle: attempt started", "attempt", a.AttemptID, "quiz", a.QuizID, "student", a.StudentID)
	c.publish(ctx, domain.EventAttemptStarted{Attempt: *a})

	return &StartResponse{
		Attempt:       a,
		FirstQuestion: questions[0].View(),
		QuestionCount: len(questions),
	}, nil
}

type AnswerRequest struct {
	AttemptID  string
	QuestionID string
	Selection  domain.Selection
}

// Answer records the caller's choice for one question of their in-progress attempt.
func (c *Controller) Answer(ctx context.Context, who domain.Identity, req AnswerRequest) error {
	unlock := c.locker.Lock(req.AttemptID)
	defer unlock()

	a, err := c.ownAttempt(ctx, who, req.AttemptID)
	if err != nil {
		return err
	}
	if !a.InProgress() {
		return errors.InvalidState("attempt is not in progress: attempt=%s status=%s", a.AttemptID, a.Status)
	}

	quiz, err := c.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	if deadline := a.Deadline(quiz.TimeLimit); !deadline.IsZero() && c.now().After(deadline) {
		return errors.InvalidState("time limit expired at %s: attempt=%s", deadline.Format(time.RFC3339), a.AttemptID)
	}

	questions, err := c.catalog.GetQuestions(ctx, a.QuizID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	i := slices.IndexFunc(questions, func(q domain.Question) bool { return q.QuestionID == req.QuestionID })
	if i < 0 {
		return errors.NotFound("question not found in quiz: quiz=%s question=%s", a.QuizID, req.QuestionID)
	}

	sel, err := validateSelection(&questions[i], req.Selection)
	if err != nil {
		return err
	}

	if _, answered := a.Answers[req.QuestionID]; answered && !c.policy.AllowResubmit {
		return errors.InvalidState("question already answered: attempt=%s question=%s", a.AttemptID, req.QuestionID)
	}

	return c.attempts.RecordAnswer(ctx, a.AttemptID, req.QuestionID, sel)
}

type CompleteRequest struct {
	AttemptID string
}

type CompleteResponse struct {
	Attempt *domain.Attempt
	Result  domain.ScoreResult
}

// Complete scores the caller's in-progress attempt and closes it.
func (c *Controller) Complete(ctx context.Context, who domain.Identity, req CompleteRequest) (*CompleteResponse, error) {
	unlock := c.locker.Lock(req.AttemptID)
	defer unlock()

	a, err := c.ownAttempt(ctx, who, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if !a.InProgress() {
		return nil, errors.InvalidState("attempt is already completed: attempt=%s", a.AttemptID)
	}

	questions, err := c.catalog.GetQuestions(ctx, a.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	res := scoring.Score(questions, a.Answers)

	done, err := c.attempts.MarkComplete(ctx, attempt.CompleteRequest{
		AttemptID:    a.AttemptID,
		Score:        res.RawScore,
		MaxScore:     res.MaxScore,
		CompleteTime: c.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "lifecycle: attempt completed",
		"attempt", done.AttemptID,
		"quiz", done.QuizID,
		"student", done.StudentID,
		"score", res.RawScore.String(),
		"max_score", res.MaxScore.String(),
	)
	c.publish(ctx, domain.EventAttemptCompleted{Attempt: *done, Result: res})

	return &CompleteResponse{
		Attempt: done,
		Result:  res,
	}, nil
}

type GetRequest struct {
	AttemptID string
}

// Get returns an attempt to its student, the quiz owner or an admin.
func (c *Controller) Get(ctx context.Context, who domain.Identity, req GetRequest) (*domain.Attempt, error) {
	a, err := c.attempts.GetAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if a.StudentID == who.UserID || who.IsAdmin() {
		return a, nil
	}

	if who.Role == domain.RoleTeacher {
		quiz, err := c.catalog.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return nil, err
		}
		if quiz.OwnedBy(who) {
			return a, nil
		}
	}

	return nil, errors.Forbidden("attempt belongs to another user: attempt=%s", req.AttemptID)
}

type ListRequest struct {
	QuizID    string
	StudentID string
	Status    domain.AttemptStatus
}

// List returns attempts visible to who. Students only see their own attempts;
// teachers must name a quiz they own.
func (c *Controller) List(ctx context.Context, who domain.Identity, req ListRequest) ([]domain.Attempt, error) {
	f := attempt.Filter{
		QuizID:    req.QuizID,
		StudentID: req.StudentID,
		Status:    req.Status,
	}

	switch who.Role {
	case domain.RoleAdmin:
	case domain.RoleStudent:
		if f.StudentID != "" && f.StudentID != who.UserID {
			return nil, errors.Forbidden("students can only list their own attempts")
		}
		f.StudentID = who.UserID
	case domain.RoleTeacher:
		if f.QuizID == "" {
			return nil, errors.InvalidArgument("quiz_id is required")
		}
		quiz, err := c.catalog.GetQuiz(ctx, f.QuizID)
		if err != nil {
			return nil, err
		}
		if !quiz.OwnedBy(who) {
			return nil, errors.Forbidden("quiz is owned by another user: quiz=%s", f.QuizID)
		}
	default:
		return nil, errors.Forbidden("unknown role %q", who.Role)
	}

	return c.attempts.ListAttempts(ctx, f)
}

// ownAttempt loads the attempt and checks the caller started it.
func (c *Controller) ownAttempt(ctx context.Context, who domain.Identity, attemptID string) (*domain.Attempt, error) {
	a, err := c.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	if who.UserID == "" || a.StudentID != who.UserID {
		return nil, errors.Forbidden("attempt belongs to another user: attempt=%s", attemptID)
	}

	return a, nil
}

func (c *Controller) publish(ctx context.Context, e event.Event) {
	if c.eb != nil {
		c.eb.Publish(ctx, e)
	}
}

func validateSelection(q *domain.Question, sel domain.Selection) (domain.Selection, error) {
	sel = sel.Normalize()
	if len(sel) == 0 {
		return nil, errors.InvalidArgument("at least one choice is required: question=%s", q.QuestionID)
	}

	for _, c := range sel {
		if c < 0 || c >= len(q.Choices) {
			return nil, errors.InvalidArgument("choice %d is out of range: question=%s", c, q.QuestionID)
		}
	}

	if len(sel) > 1 && !q.MultiSelect() {
		return nil, errors.InvalidArgument("question accepts a single choice: question=%s", q.QuestionID)
	}

	return sel, nil
}
