// Package scoring computes the score of a quiz attempt from its recorded answers.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
)

// Score grades answers against the quiz's answer key. Each question is worth its
// points on an exact set match and nothing otherwise; unanswered questions count
// as incorrect. Questions are reported in the order given.
func Score(questions []domain.Question, answers map[string]domain.Selection) domain.ScoreResult {
	res := domain.ScoreResult{
		RawScore:  decimal.Zero,
		MaxScore:  decimal.Zero,
		Questions: make([]domain.QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		points := Points(q)
		qr := domain.QuestionResult{
			QuestionID: q.QuestionID,
			Awarded:    decimal.Zero,
			Points:     points,
		}

		if sel, ok := answers[q.QuestionID]; ok && len(sel) > 0 {
			qr.Answered = true
			qr.Correct = len(q.Correct) > 0 && sel.Equal(q.Correct)
		}

		if qr.Correct {
			qr.Awarded = points
			res.RawScore = res.RawScore.Add(points)
		}
		res.MaxScore = res.MaxScore.Add(points)
		res.Questions = append(res.Questions, qr)
	}

	return res
}

// Points returns the question's value, falling back to the default for unset or negative points.
func Points(q domain.Question) decimal.Decimal {
	if q.Points.IsZero() || q.Points.IsNegative() {
		return domain.DefaultPoints
	}
	return q.Points
}
