package domain

const (
	EventNameAttemptStarted     = "attempt.started"
	EventNameAttemptCompleted   = "attempt.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventAttemptStarted struct {
	Attempt Attempt
}

func (EventAttemptStarted) Name() string { return EventNameAttemptStarted }

type EventAttemptCompleted struct {
	Attempt Attempt
	Result  ScoreResult
}

func (EventAttemptCompleted) Name() string { return EventNameAttemptCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
