package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
)

const defaultCacheTTL = 5 * time.Minute

type CacheConfig struct {
	Store  Store
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

// CachedStore is a read-through Redis cache in front of a Store. Quizzes and
// question lists are cached; every write through it evicts the quiz's keys.
// Redis failures fall back to the underlying store.
type CachedStore struct {
	Store

	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCachedStore(c CacheConfig) *CachedStore {
	s := &CachedStore{
		Store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}
	return s
}

func (s *CachedStore) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	var q domain.Quiz
	if s.get(ctx, s.quizKey(quizID), &q) {
		return &q, nil
	}

	res, err := s.Store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	s.set(ctx, s.quizKey(quizID), res)
	return res, nil
}

func (s *CachedStore) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var qs []domain.Question
	if s.get(ctx, s.questionsKey(quizID), &qs) {
		return qs, nil
	}

	res, err := s.Store.GetQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	s.set(ctx, s.questionsKey(quizID), res)
	return res, nil
}

func (s *CachedStore) UpdateQuiz(ctx context.Context, q *domain.Quiz) error {
	defer s.evict(ctx, q.QuizID)
	return s.Store.UpdateQuiz(ctx, q)
}

func (s *CachedStore) AddQuestion(ctx context.Context, q *domain.Question) error {
	defer s.evict(ctx, q.QuizID)
	return s.Store.AddQuestion(ctx, q)
}

func (s *CachedStore) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	defer s.evict(ctx, q.QuizID)
	return s.Store.UpdateQuestion(ctx, q)
}

func (s *CachedStore) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	defer s.evict(ctx, quizID)
	return s.Store.DeleteQuestion(ctx, quizID, questionID)
}

func (s *CachedStore) get(ctx context.Context, key string, v any) bool {
	b, err := s.redis.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		slog.WarnContext(ctx, "catalog: cache get failed", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal(b, v); err != nil {
		slog.WarnContext(ctx, "catalog: cache decode failed", "key", key, "error", err)
		return false
	}

	return true
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.WarnContext(ctx, "catalog: cache encode failed", "key", key, "error", err)
		return
	}

	if err := s.redis.Set(ctx, key, b, s.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "catalog: cache set failed", "key", key, "error", err)
	}
}

func (s *CachedStore) evict(ctx context.Context, quizID string) {
	if err := s.redis.Del(ctx, s.quizKey(quizID), s.questionsKey(quizID)).Err(); err != nil {
		slog.WarnContext(ctx, "catalog: cache evict failed", "quiz", quizID, "error", err)
	}
}

func (s *CachedStore) quizKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", s.prefix, quizID)
}

func (s *CachedStore) questionsKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:questions", s.prefix, quizID)
}
