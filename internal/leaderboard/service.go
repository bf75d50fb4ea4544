package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	// pendingTTL releases a trailing publish claimed by an instance that died.
	pendingTTL = 5 * publishInterval
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service ranks students per quiz by their best completed attempt.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string

	wg   sync.WaitGroup
	done chan struct{}
	stop sync.Once
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		done:   make(chan struct{}),
	}

	s.eb.Subscribe(domain.EventNameAttemptCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordCompletion(ctx, e.(domain.EventAttemptCompleted))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
	// Limit caps the number of entries. Zero returns everyone.
	Limit int
}

// GetLeaderboard returns the students of a quiz ordered by best score, highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	stop := int64(-1)
	if req.Limit > 0 {
		stop = int64(req.Limit) - 1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.QuizID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%s", req.QuizID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: z.Member.(string),
			Score:     z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// RecordCompletion keeps the student's best score for the quiz. A lower score
// from a later attempt leaves the entry untouched.
func (s *Service) RecordCompletion(ctx context.Context, e domain.EventAttemptCompleted) error {
	a := e.Attempt

	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(a.QuizID), redis.Z{
		Score:  e.Result.RawScore.InexactFloat64(),
		Member: a.StudentID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, a)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per quiz
// and interval. Completions arrive in bursts when a class finishes together: the
// first one publishes right away, later ones in the same window are folded into
// a single trailing publish.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, a domain.Attempt) error {
	// SetNX keeps several instances from publishing the same window twice.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(a.QuizID), completeMillis(a), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, a)
	}

	pending, err := s.redis.SetNX(ctx, s.getLeaderboardPendingKey(a.QuizID), completeMillis(a), pendingTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx pending: %w", err)
	}

	if pending {
		s.wg.Add(1)
		go s.publishTrailing(context.WithoutCancel(ctx), a)
	}

	return nil
}

// publishTrailing waits out the window, or until Stop, then publishes the
// leaderboard as it stands.
func (s *Service) publishTrailing(ctx context.Context, a domain.Attempt) {
	defer s.wg.Done()

	select {
	case <-time.After(publishInterval):
	case <-s.done:
	}

	if err := s.redis.Del(ctx, s.getLeaderboardPendingKey(a.QuizID)).Err(); err != nil {
		slog.ErrorContext(ctx, "leaderboard: clear pending publish failed", "quiz", a.QuizID, "error", err)
	}

	if err := s.publishLeaderboard(ctx, a); err != nil {
		slog.ErrorContext(ctx, "leaderboard: trailing publish failed", "quiz", a.QuizID, "error", err)
	}
}

// Stop flushes pending trailing publishes. Call it before stopping the event bus.
func (s *Service) Stop() {
	s.stop.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Service) publishLeaderboard(ctx context.Context, a domain.Attempt) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: a.QuizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%s: %w", a.QuizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.getLeaderboardTimeKey(a.QuizID), completeMillis(a), publishInterval).Err()
}

func (s *Service) getLeaderboardKey(quizID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, quizID)
}

func (s *Service) getLeaderboardPendingKey(quizID string) string {
	return fmt.Sprintf("%s:%s:pending", s.prefix, quizID)
}

func (s *Service) getLeaderboardTimeKey(quizID string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, quizID)
}

func completeMillis(a domain.Attempt) int64 {
	if a.CompleteTime == nil {
		return time.Now().UnixMilli()
	}
	return a.CompleteTime.UnixMilli()
}
