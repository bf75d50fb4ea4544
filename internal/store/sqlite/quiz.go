package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

func (s *Store) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quizzes (quiz_id, owner_id, title, description, active, time_limit_ms, create_time_unix, update_time_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.QuizID, q.OwnerID, q.Title, q.Description, q.Active, q.TimeLimit.Milliseconds(), q.CreateTime.UnixNano(), q.UpdateTime.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errors.Conflict("quiz already exists: quiz=%s", q.QuizID)
	}

	return nil
}

func (s *Store) UpdateQuiz(ctx context.Context, q *domain.Quiz) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET title = ?, description = ?, active = ?, time_limit_ms = ?, update_time_unix = ?
		 WHERE quiz_id = ?`,
		q.Title, q.Description, q.Active, q.TimeLimit.Milliseconds(), q.UpdateTime.UnixNano(), q.QuizID,
	)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
	}

	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	qs, err := s.queryQuizzes(ctx, `WHERE quiz_id = ?`, quizID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}

	return &qs[0], nil
}

func (s *Store) ListQuizzes(ctx context.Context, f catalog.ListFilter) ([]domain.Quiz, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.ActiveOnly {
		where = append(where, "active = 1")
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	return s.queryQuizzes(ctx, clause, args...)
}

func (s *Store) queryQuizzes(ctx context.Context, clause string, args ...any) ([]domain.Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT quiz_id, owner_id, title, description, active, time_limit_ms, create_time_unix, update_time_unix
		 FROM quizzes `+clause+`
		 ORDER BY create_time_unix, quiz_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		var (
			q                  domain.Quiz
			limitMs            int64
			createNs, updateNs int64
		)
		if err := rows.Scan(&q.QuizID, &q.OwnerID, &q.Title, &q.Description, &q.Active, &limitMs, &createNs, &updateNs); err != nil {
			return nil, err
		}
		q.TimeLimit = time.Duration(limitMs) * time.Millisecond
		q.CreateTime = time.Unix(0, createNs).UTC()
		q.UpdateTime = time.Unix(0, updateNs).UTC()
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		ids, err := s.questionIDs(ctx, out[i].QuizID)
		if err != nil {
			return nil, err
		}
		out[i].QuestionIDs = ids
	}

	return out, nil
}

func (s *Store) questionIDs(ctx context.Context, quizID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id FROM questions WHERE quiz_id = ? ORDER BY position`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AddQuestion(ctx context.Context, q *domain.Question) error {
	choices, err := encodeJSON(q.Choices)
	if err != nil {
		return err
	}
	correct, err := encodeJSON(q.Correct)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE quiz_id = ?`, q.QuizID).Scan(&exists)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
		}
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE quiz_id = ?`, q.QuizID).Scan(&q.Position); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (question_id, quiz_id, prompt, choices_json, correct_json, points, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.QuestionID, q.QuizID, q.Prompt, choices, correct, q.Points.String(), q.Position,
		)
		return err
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	choices, err := encodeJSON(q.Choices)
	if err != nil {
		return err
	}
	correct, err := encodeJSON(q.Correct)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT position FROM questions WHERE question_id = ? AND quiz_id = ?`, q.QuestionID, q.QuizID).Scan(&q.Position)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("question not found: quiz=%s question=%s", q.QuizID, q.QuestionID)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE questions SET prompt = ?, choices_json = ?, correct_json = ?, points = ?
			 WHERE question_id = ?`,
			q.Prompt, choices, correct, q.Points.String(), q.QuestionID,
		)
		return err
	})
}

func (s *Store) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var pos int
		err := tx.QueryRowContext(ctx, `SELECT position FROM questions WHERE question_id = ? AND quiz_id = ?`, questionID, quizID).Scan(&pos)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFound("question not found: quiz=%s question=%s", quizID, questionID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE question_id = ?`, questionID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE questions SET position = position - 1 WHERE quiz_id = ? AND position > ?`, quizID, pos)
		return err
	})
}

func (s *Store) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT question_id, quiz_id, prompt, choices_json, correct_json, points, position
		 FROM questions
		 WHERE quiz_id = ?
		 ORDER BY position`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q                        domain.Question
			choicesJSON, correctJSON string
		)
		if err := rows.Scan(&q.QuestionID, &q.QuizID, &q.Prompt, &choicesJSON, &correctJSON, &q.Points, &q.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(choicesJSON), &q.Choices); err != nil {
			return nil, fmt.Errorf("decode choices: question=%s: %w", q.QuestionID, err)
		}
		if err := json.Unmarshal([]byte(correctJSON), &q.Correct); err != nil {
			return nil, fmt.Errorf("decode correct: question=%s: %w", q.QuestionID, err)
		}
		out = append(out, q)
	}

	return out, rows.Err()
}
