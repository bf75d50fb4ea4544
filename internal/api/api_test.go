package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/api"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/auth"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/leaderboard"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/lifecycle"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/memory"
)

var (
	teacher = domain.Identity{UserID: "teacher-1", Role: domain.RoleTeacher}
	alice   = domain.Identity{UserID: "alice", Role: domain.RoleStudent}
	bob     = domain.Identity{UserID: "bob", Role: domain.RoleStudent}
)

type testServer struct {
	engine *gin.Engine
	client *api.AttemptServiceClient
	auth   *auth.Authenticator
	store  *memory.Store
	eb     *event.Bus
	redis  redis.UniversalClient
}

type serverOption func(t *testing.T, s *testServer, c *api.Config)

// withRedis enables the leaderboard and user notifications on a miniredis instance.
func withRedis() serverOption {
	return func(t *testing.T, s *testServer, c *api.Config) {
		rs := miniredis.RunT(t)
		s.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
		t.Cleanup(func() { _ = s.redis.Close() })

		c.Leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.redis,
			Prefix:   "quiz",
		})
		c.Redis = s.redis
		c.PubsubPrefix = "quiz"
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		engine: gin.New(),
		auth:   auth.New(auth.Config{Secret: "test-secret"}),
		store:  memory.NewStore(),
		eb:     event.NewBus(),
	}

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		api.UnaryErrorInterceptor(),
		s.auth.UnaryServerInterceptor(),
	))

	locker := attempt.NewLocker()
	c := api.Config{
		GRPC: gs,
		HTTP: s.engine,
		Auth: s.auth,
		Catalog: catalog.NewService(catalog.Config{
			Store:    s.store,
			Attempts: s.store,
			Locker:   locker,
		}),
		Lifecycle: lifecycle.NewController(lifecycle.Config{
			Catalog:  s.store,
			Attempts: s.store,
			EventBus: s.eb,
			Locker:   locker,
			Policy:   lifecycle.DefaultPolicy(),
		}),
		EventBus: s.eb,
	}
	for _, o := range opts {
		o(t, s, &c)
	}
	api.New(c)

	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	s.client = api.NewAttemptServiceClient(conn)

	t.Cleanup(s.eb.Stop)
	return s
}

func (s *testServer) token(t *testing.T, who domain.Identity) string {
	t.Helper()
	tok, err := s.auth.Issue(who)
	require.NoError(t, err)
	return tok
}

func (s *testServer) ctx(t *testing.T, who domain.Identity) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+s.token(t, who))
}

// do sends an HTTP request as who and decodes the JSON response into out when out is not nil.
func (s *testServer) do(t *testing.T, who *domain.Identity, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, *who))
	}

	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
	}
	return rec.Code
}

// seedQuiz authors an active two-question quiz over HTTP: question 1 is worth 1
// point with answer A, question 2 is worth 2 points with answer A.
func (s *testServer) seedQuiz(t *testing.T) (quizID string, questionIDs []string) {
	t.Helper()

	var quiz api.Quiz
	code := s.do(t, &teacher, http.MethodPost, "/quizzes", map[string]any{"title": "Hiragana", "active": true}, &quiz)
	require.Equal(t, http.StatusCreated, code)

	for _, points := range []string{"1", "2"} {
		var q api.Question
		code := s.do(t, &teacher, http.MethodPost, "/quizzes/"+quiz.QuizID+"/questions", map[string]any{
			"prompt":  "Which is あ?",
			"choices": []string{"a", "i", "u", "e"},
			"correct": []string{"A"},
			"points":  points,
		}, &q)
		require.Equal(t, http.StatusCreated, code)
		questionIDs = append(questionIDs, q.QuestionID)
	}

	return quiz.QuizID, questionIDs
}
