package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
)

const maxConcurrent = 100

// Notification is the payload published on a user's channel.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated sends the new ranking to every student on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(&e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.StudentID, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishAttemptCompleted sends the result to the student who completed the attempt.
func (a *API) PublishAttemptCompleted(ctx context.Context, e domain.EventAttemptCompleted) error {
	return a.publishNotification(ctx, e.Attempt.StudentID, e.Name(), toCompleteResponse(&e.Attempt, e.Result))
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %w", event, err)
	}

	return a.redis.Publish(ctx, a.userChannel(user), b).Err()
}

func (a *API) userChannel(user string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, user)
}
