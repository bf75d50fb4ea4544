package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/memory"
)

func makeCachedStore(t *testing.T) (*catalog.CachedStore, *memory.Store, *miniredis.Miniredis) {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: rs.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	store := memory.NewStore()
	return catalog.NewCachedStore(catalog.CacheConfig{
		Store:  store,
		Redis:  rc,
		Prefix: "quiz-test",
		TTL:    time.Minute,
	}), store, rs
}

func seed(t *testing.T, s catalog.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.CreateQuiz(ctx, &domain.Quiz{QuizID: "qz1", OwnerID: "teacher-1", Title: "Kana", Active: true}))
	require.NoError(t, s.AddQuestion(ctx, &domain.Question{
		QuestionID: "q1",
		QuizID:     "qz1",
		Prompt:     "あ?",
		Choices:    []string{"a", "i"},
		Correct:    []int{0},
		Points:     domain.DefaultPoints,
	}))
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cs, store, rs := makeCachedStore(t)
	seed(t, store)

	q, err := cs.GetQuiz(ctx, "qz1")
	require.NoError(t, err)
	assert.Equal(t, "Kana", q.Title)
	assert.True(t, rs.Exists("quiz-test:quiz:qz1"))

	qs, err := cs.GetQuestions(ctx, "qz1")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.True(t, rs.Exists("quiz-test:quiz:qz1:questions"))

	// A write that bypasses the cache is invisible until the key expires.
	q.Title = "Changed underneath"
	require.NoError(t, store.UpdateQuiz(ctx, q))

	cached, err := cs.GetQuiz(ctx, "qz1")
	require.NoError(t, err)
	assert.Equal(t, "Kana", cached.Title)

	rs.FastForward(2 * time.Minute)

	fresh, err := cs.GetQuiz(ctx, "qz1")
	require.NoError(t, err)
	assert.Equal(t, "Changed underneath", fresh.Title)
}

func TestCachedStore_WritesEvict(t *testing.T) {
	ctx := context.Background()
	cs, store, rs := makeCachedStore(t)
	seed(t, store)

	_, err := cs.GetQuiz(ctx, "qz1")
	require.NoError(t, err)
	_, err = cs.GetQuestions(ctx, "qz1")
	require.NoError(t, err)

	require.NoError(t, cs.AddQuestion(ctx, &domain.Question{
		QuestionID: "q2",
		QuizID:     "qz1",
		Prompt:     "い?",
		Choices:    []string{"a", "i"},
		Correct:    []int{1},
		Points:     domain.DefaultPoints,
	}))
	assert.False(t, rs.Exists("quiz-test:quiz:qz1"))
	assert.False(t, rs.Exists("quiz-test:quiz:qz1:questions"))

	qs, err := cs.GetQuestions(ctx, "qz1")
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestCachedStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	cs, store, rs := makeCachedStore(t)
	seed(t, store)

	rs.Close()

	q, err := cs.GetQuiz(ctx, "qz1")
	require.NoError(t, err, "cache failures fall back to the store")
	assert.Equal(t, "Kana", q.Title)
}
