package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

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
		StartTime: req.StartTime.UTC(),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE quiz_id = ?`, req.QuizID).Scan(&exists)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("quiz not found: quiz=%s", req.QuizID)
		}
		if err != nil {
			return err
		}

		if req.SingleInProgress {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT attempt_id FROM attempts WHERE quiz_id = ? AND student_id = ? AND status = ? LIMIT 1`,
				req.QuizID, req.StudentID, string(domain.AttemptInProgress),
			).Scan(&existing)
			switch {
			case err == nil:
				return errors.Conflict("student already has an attempt in progress: quiz=%s attempt=%s", req.QuizID, existing)
			case !stderrors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO attempts (attempt_id, quiz_id, student_id, status, start_time_unix)
			 VALUES (?, ?, ?, ?, ?)`,
			a.AttemptID, a.QuizID, a.StudentID, string(a.Status), a.StartTime.UnixNano(),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Store) RecordAnswer(ctx context.Context, attemptID, questionID string, sel domain.Selection) error {
	selJSON, err := encodeJSON(sel.Normalize())
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var quizID, status string
		err := tx.QueryRowContext(ctx, `SELECT quiz_id, status FROM attempts WHERE attempt_id = ?`, attemptID).Scan(&quizID, &status)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("attempt not found: attempt=%s", attemptID)
		}
		if err != nil {
			return err
		}

		if domain.AttemptStatus(status) != domain.AttemptInProgress {
			return errors.InvalidState("attempt is not in progress: attempt=%s status=%s", attemptID, status)
		}

		var belongs int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE question_id = ? AND quiz_id = ?`, questionID, quizID).Scan(&belongs)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("question not found in quiz: quiz=%s question=%s", quizID, questionID)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, selection_json, answer_time_unix)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE SET selection_json = excluded.selection_json, answer_time_unix = excluded.answer_time_unix`,
			attemptID, questionID, selJSON, time.Now().UTC().UnixNano(),
		)
		return err
	})
}

func (s *Store) MarkComplete(ctx context.Context, req attempt.CompleteRequest) (*domain.Attempt, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM attempts WHERE attempt_id = ?`, req.AttemptID).Scan(&status)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("attempt not found: attempt=%s", req.AttemptID)
		}
		if err != nil {
			return err
		}

		if domain.AttemptStatus(status) != domain.AttemptInProgress {
			return errors.InvalidState("attempt is already completed: attempt=%s", req.AttemptID)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE attempts SET status = ?, complete_time_unix = ?, score = ?, max_score = ?
			 WHERE attempt_id = ?`,
			string(domain.AttemptCompleted), req.CompleteTime.UnixNano(), req.Score.String(), req.MaxScore.String(), req.AttemptID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return s.GetAttempt(ctx, req.AttemptID)
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	as, err := s.queryAttempts(ctx, `WHERE attempt_id = ?`, attemptID)
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
	if f.QuizID != "" {
		where = append(where, "quiz_id = ?")
		args = append(args, f.QuizID)
	}
	if f.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	return s.queryAttempts(ctx, clause, args...)
}

func (s *Store) CountAttempts(ctx context.Context, quizID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE quiz_id = ?`, quizID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) queryAttempts(ctx context.Context, clause string, args ...any) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, quiz_id, student_id, status, start_time_unix, complete_time_unix, score, max_score
		 FROM attempts `+clause+`
		 ORDER BY start_time_unix DESC, attempt_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			a               domain.Attempt
			status          string
			startNs         int64
			completeNs      sql.NullInt64
			score, maxScore decimal.NullDecimal
		)
		if err := rows.Scan(&a.AttemptID, &a.QuizID, &a.StudentID, &status, &startNs, &completeNs, &score, &maxScore); err != nil {
			return nil, err
		}
		a.Status = domain.AttemptStatus(status)
		a.StartTime = time.Unix(0, startNs).UTC()
		if completeNs.Valid {
			t := time.Unix(0, completeNs.Int64).UTC()
			a.CompleteTime = &t
		}
		a.Score = nullDecimal(score)
		a.MaxScore = nullDecimal(maxScore)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		answers, err := s.answers(ctx, out[i].AttemptID)
		if err != nil {
			return nil, err
		}
		out[i].Answers = answers
	}

	return out, nil
}

func (s *Store) answers(ctx context.Context, attemptID string) (map[string]domain.Selection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id, selection_json FROM attempt_answers WHERE attempt_id = ?`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Selection)
	for rows.Next() {
		var (
			questionID, selJSON string
			sel                 domain.Selection
		)
		if err := rows.Scan(&questionID, &selJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(selJSON), &sel); err != nil {
			return nil, fmt.Errorf("decode selection: attempt=%s question=%s: %w", attemptID, questionID, err)
		}
		out[questionID] = sel
	}

	return out, rows.Err()
}
