package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

const selectAttempt = `
SELECT attempt_id, quiz_id, student_id, status, start_time, complete_time, score, max_score
FROM attempts`

// CreateAttempt takes a transaction-scoped advisory lock on (quiz, student) so two
// concurrent starts cannot both pass the in-progress check.
func (s *Store) CreateAttempt(ctx context.Context, req attempt.CreateRequest) (*domain.Attempt, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	a := &domain.Attempt{
		AttemptID: id.String(),
		QuizID:    req.QuizID,
		StudentID: req.StudentID,
		Status:    domain.AttemptInProgress,
		Answers:   make(map[string]domain.Selection),
		StartTime: req.StartTime,
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if req.SingleInProgress {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, req.QuizID+":"+req.StudentID); err != nil {
				return fmt.Errorf("lock student quiz: %w", err)
			}

			var existing string
			err := tx.QueryRow(ctx, `SELECT attempt_id FROM attempts WHERE quiz_id = $1 AND student_id = $2 AND status = $3 LIMIT 1;`,
				req.QuizID, req.StudentID, domain.AttemptInProgress).Scan(&existing)
			switch {
			case err == nil:
				return errors.Conflict("student already has an attempt in progress: quiz=%s attempt=%s", req.QuizID, existing)
			case !stderrors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("find attempt in progress: %w", err)
			}
		}

		const stmt = `
INSERT INTO attempts (attempt_id, quiz_id, student_id, status, start_time)
VALUES ($1, $2, $3, $4, $5);`

		_, err := tx.Exec(ctx, stmt, a.AttemptID, a.QuizID, a.StudentID, a.Status, a.StartTime)
		if pgErrCode(err) == codeForeignKeyViolation {
			return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", req.QuizID), errors.WithCause(err))
		}
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Store) RecordAnswer(ctx context.Context, attemptID, questionID string, sel domain.Selection) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var (
			quizID string
			status domain.AttemptStatus
		)
		err := tx.QueryRow(ctx, `SELECT quiz_id, status FROM attempts WHERE attempt_id = $1 FOR UPDATE;`, attemptID).Scan(&quizID, &status)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFound("attempt not found: attempt=%s", attemptID)
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}

		if status != domain.AttemptInProgress {
			return errors.InvalidState("attempt is not in progress: attempt=%s status=%s", attemptID, status)
		}

		var belongs bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questions WHERE question_id = $1 AND quiz_id = $2);`, questionID, quizID).Scan(&belongs); err != nil {
			return fmt.Errorf("check question: %w", err)
		}
		if !belongs {
			return errors.NotFound("question not found in quiz: quiz=%s question=%s", quizID, questionID)
		}

		const stmt = `
INSERT INTO attempt_answers (attempt_id, question_id, selection, answer_time)
VALUES ($1, $2, $3, now())
ON CONFLICT (attempt_id, question_id) DO UPDATE SET selection = EXCLUDED.selection, answer_time = EXCLUDED.answer_time;`

		if _, err := tx.Exec(ctx, stmt, attemptID, questionID, []int(sel.Normalize())); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}

		return nil
	})
}

func (s *Store) MarkComplete(ctx context.Context, req attempt.CompleteRequest) (*domain.Attempt, error) {
	const stmt = `
UPDATE attempts SET status = $2, complete_time = $3, score = $4, max_score = $5
WHERE attempt_id = $1 AND status = $6;`

	tag, err := s.db.Exec(ctx, stmt, req.AttemptID, domain.AttemptCompleted, req.CompleteTime, req.Score, req.MaxScore, domain.AttemptInProgress)
	if err != nil {
		return nil, fmt.Errorf("complete attempt: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetAttempt(ctx, req.AttemptID); err != nil {
			return nil, err
		}
		return nil, errors.InvalidState("attempt is already completed: attempt=%s", req.AttemptID)
	}

	return s.GetAttempt(ctx, req.AttemptID)
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	as, err := s.queryAttempts(ctx, selectAttempt+` WHERE attempt_id = $1;`, attemptID)
	if err != nil {
		return nil, err
	}
	if len(as) == 0 {
		return nil, errors.NotFound("attempt not found: attempt=%s", attemptID)
	}

	return &as[0], nil
}

func (s *Store) ListAttempts(ctx context.Context, f attempt.Filter) ([]domain.Attempt, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.QuizID != "" {
		add("quiz_id", f.QuizID)
	}
	if f.StudentID != "" {
		add("student_id", f.StudentID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}

	stmt := selectAttempt
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY start_time DESC;"

	return s.queryAttempts(ctx, stmt, args...)
}

func (s *Store) CountAttempts(ctx context.Context, quizID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM attempts WHERE quiz_id = $1;`, quizID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) queryAttempts(ctx context.Context, stmt string, args ...any) ([]domain.Attempt, error) {
	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}

	as, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Attempt, error) {
		var (
			a               domain.Attempt
			score, maxScore decimal.NullDecimal
		)
		if err := r.Scan(&a.AttemptID, &a.QuizID, &a.StudentID, &a.Status, &a.StartTime, &a.CompleteTime, &score, &maxScore); err != nil {
			return domain.Attempt{}, err
		}
		if score.Valid {
			a.Score = &score.Decimal
		}
		if maxScore.Valid {
			a.MaxScore = &maxScore.Decimal
		}
		a.Answers = make(map[string]domain.Selection)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan attempts: %w", err)
	}

	if len(as) == 0 {
		return as, nil
	}

	if err := s.loadAnswers(ctx, as); err != nil {
		return nil, err
	}

	return as, nil
}

func (s *Store) loadAnswers(ctx context.Context, as []domain.Attempt) error {
	ids := make([]string, 0, len(as))
	index := make(map[string]int, len(as))
	for i, a := range as {
		ids = append(ids, a.AttemptID)
		index[a.AttemptID] = i
	}

	rows, err := s.db.Query(ctx, `SELECT attempt_id, question_id, selection FROM attempt_answers WHERE attempt_id = ANY($1);`, ids)
	if err != nil {
		return fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attemptID, questionID string
			sel                   []int
		)
		if err := rows.Scan(&attemptID, &questionID, &sel); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		as[index[attemptID]].Answers[questionID] = sel
	}

	return rows.Err()
}
