package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/auth"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/leaderboard"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/lifecycle"
)

type Config struct {
	GRPC        grpc.ServiceRegistrar
	HTTP        gin.IRouter
	Auth        *auth.Authenticator
	EventBus    *event.Bus
	Catalog     *catalog.Service
	Lifecycle   *lifecycle.Controller
	Leaderboard *leaderboard.Service
	// Redis receives user notifications. Nil disables them.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	cs  *catalog.Service
	lc  *lifecycle.Controller
	ls  *leaderboard.Service
	eb  *event.Bus
	ath *auth.Authenticator

	redis  Redis
	prefix string
}

var _ AttemptServiceServer = (*API)(nil)

func New(c Config) *API {
	a := &API{
		cs:     c.Catalog,
		lc:     c.Lifecycle,
		ls:     c.Leaderboard,
		eb:     c.EventBus,
		ath:    c.Auth,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// gRPC APIs
	if c.GRPC != nil {
		RegisterAttemptServiceServer(c.GRPC, a)
	}

	// HTTP APIs
	if c.HTTP != nil {
		a.registerRoutes(c.HTTP)
	}

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameAttemptCompleted, func(ctx context.Context, e event.Event) error {
			return a.PublishAttemptCompleted(ctx, e.(domain.EventAttemptCompleted))
		})
	}

	return a
}

func (a *API) StartAttempt(ctx context.Context, req *StartAttemptRequest) (*StartAttemptResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	res, err := a.lc.Start(ctx, who, lifecycle.StartRequest{
		QuizID: req.QuizID,
	})
	if err != nil {
		return nil, err
	}

	return &StartAttemptResponse{
		Attempt:       toAttempt(res.Attempt),
		FirstQuestion: toQuestionView(res.FirstQuestion),
		QuestionCount: res.QuestionCount,
	}, nil
}

func (a *API) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	sel, err := parseChoices(req.Choices)
	if err != nil {
		return nil, err
	}

	if err := a.lc.Answer(ctx, who, lifecycle.AnswerRequest{
		AttemptID:  req.AttemptID,
		QuestionID: req.QuestionID,
		Selection:  sel,
	}); err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{OK: true}, nil
}

func (a *API) CompleteAttempt(ctx context.Context, req *CompleteAttemptRequest) (*CompleteAttemptResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	res, err := a.lc.Complete(ctx, who, lifecycle.CompleteRequest{
		AttemptID: req.AttemptID,
	})
	if err != nil {
		return nil, err
	}

	return toCompleteResponse(res.Attempt, res.Result), nil
}

func (a *API) GetAttempt(ctx context.Context, req *GetAttemptRequest) (*GetAttemptResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	at, err := a.lc.Get(ctx, who, lifecycle.GetRequest{
		AttemptID: req.AttemptID,
	})
	if err != nil {
		return nil, err
	}

	return &GetAttemptResponse{Attempt: toAttempt(at)}, nil
}

func (a *API) ListAttempts(ctx context.Context, req *ListAttemptsRequest) (*ListAttemptsResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	as, err := a.lc.List(ctx, who, lifecycle.ListRequest{
		QuizID:    req.QuizID,
		StudentID: req.StudentID,
		Status:    domain.AttemptStatus(req.Status),
	})
	if err != nil {
		return nil, err
	}

	resp := &ListAttemptsResponse{
		Attempts: make([]Attempt, 0, len(as)),
	}
	for i := range as {
		resp.Attempts = append(resp.Attempts, toAttempt(&as[i]))
	}

	return resp, nil
}

func (a *API) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	who, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	if a.ls == nil {
		return nil, errors.NotFound("leaderboard is not enabled")
	}

	if _, err := a.cs.GetQuiz(ctx, who, req.QuizID); err != nil {
		return nil, err
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{
		QuizID: req.QuizID,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResponse{Leaderboard: toLeaderboard(l)}, nil
}

// UnaryErrorInterceptor turns every returned error into a typed error so
// clients always receive a known status code. Internal causes are logged, not sent.
func UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		e := errors.Convert(err)
		if e.Code == errors.CodeInternal {
			slog.ErrorContext(ctx, "api: internal error", "method", info.FullMethod, "error", err)
		}
		return nil, e
	}
}

func identity(ctx context.Context) (domain.Identity, error) {
	who, ok := auth.FromContext(ctx)
	if !ok {
		return domain.Identity{}, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing identity"))
	}
	return who, nil
}

func seconds(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
