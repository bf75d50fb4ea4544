package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

const selectQuiz = `
SELECT q.quiz_id, q.owner_id, q.title, q.description, q.active, q.time_limit_ms, q.create_time, q.update_time,
	COALESCE(array_agg(qs.question_id ORDER BY qs.position) FILTER (WHERE qs.question_id IS NOT NULL), '{}') AS question_ids
FROM quizzes q
LEFT JOIN questions qs ON qs.quiz_id = q.quiz_id`

func (s *Store) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, owner_id, title, description, active, time_limit_ms, create_time, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := s.db.Exec(ctx, stmt, q.QuizID, q.OwnerID, q.Title, q.Description, q.Active, q.TimeLimit.Milliseconds(), q.CreateTime, q.UpdateTime)
	if pgErrCode(err) == codeUniqueViolation {
		return errors.New(errors.CodeConflict, errors.WithMessagef("quiz already exists: quiz=%s", q.QuizID), errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	return nil
}

func (s *Store) UpdateQuiz(ctx context.Context, q *domain.Quiz) error {
	const stmt = `
UPDATE quizzes SET title = $2, description = $3, active = $4, time_limit_ms = $5, update_time = $6
WHERE quiz_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, q.QuizID, q.Title, q.Description, q.Active, q.TimeLimit.Milliseconds(), q.UpdateTime)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
	}

	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	rows, err := s.db.Query(ctx, selectQuiz+` WHERE q.quiz_id = $1 GROUP BY q.quiz_id;`, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanQuiz)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	return &q, nil
}

func (s *Store) ListQuizzes(ctx context.Context, f catalog.ListFilter) ([]domain.Quiz, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("q.owner_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "q.active")
	}

	stmt := selectQuiz
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " GROUP BY q.quiz_id ORDER BY q.create_time;"

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	return pgx.CollectRows(rows, scanQuiz)
}

func scanQuiz(r pgx.CollectableRow) (domain.Quiz, error) {
	var (
		q       domain.Quiz
		limitMs int64
	)
	if err := r.Scan(&q.QuizID, &q.OwnerID, &q.Title, &q.Description, &q.Active, &limitMs, &q.CreateTime, &q.UpdateTime, &q.QuestionIDs); err != nil {
		return domain.Quiz{}, err
	}
	q.TimeLimit = time.Duration(limitMs) * time.Millisecond
	return q, nil
}

func (s *Store) AddQuestion(ctx context.Context, q *domain.Question) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM quizzes WHERE quiz_id = $1 FOR UPDATE;`, q.QuizID).Scan(&exists)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFound("quiz not found: quiz=%s", q.QuizID)
		}
		if err != nil {
			return fmt.Errorf("lock quiz: %w", err)
		}

		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM questions WHERE quiz_id = $1;`, q.QuizID).Scan(&q.Position); err != nil {
			return fmt.Errorf("next position: %w", err)
		}

		const stmt = `
INSERT INTO questions (question_id, quiz_id, prompt, choices, correct, points, position)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

		if _, err := tx.Exec(ctx, stmt, q.QuestionID, q.QuizID, q.Prompt, q.Choices, q.Correct, q.Points, q.Position); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		return nil
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	const stmt = `
UPDATE questions SET prompt = $3, choices = $4, correct = $5, points = $6
WHERE question_id = $1 AND quiz_id = $2
RETURNING position;`

	err := s.db.QueryRow(ctx, stmt, q.QuestionID, q.QuizID, q.Prompt, q.Choices, q.Correct, q.Points).Scan(&q.Position)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("question not found: quiz=%s question=%s", q.QuizID, q.QuestionID)
	}
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}

	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var pos int
		err := tx.QueryRow(ctx, `DELETE FROM questions WHERE question_id = $1 AND quiz_id = $2 RETURNING position;`, questionID, quizID).Scan(&pos)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.NotFound("question not found: quiz=%s question=%s", quizID, questionID)
		}
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE questions SET position = position - 1 WHERE quiz_id = $1 AND position > $2;`, quizID, pos); err != nil {
			return fmt.Errorf("shift positions: %w", err)
		}

		return nil
	})
}

func (s *Store) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE quiz_id = $1);`, quizID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check quiz: %w", err)
	}
	if !exists {
		return nil, errors.NotFound("quiz not found: quiz=%s", quizID)
	}

	const stmt = `
SELECT question_id, quiz_id, prompt, choices, correct, points, position
FROM questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := r.Scan(&q.QuestionID, &q.QuizID, &q.Prompt, &q.Choices, &q.Correct, &q.Points, &q.Position)
		return q, err
	})
}
