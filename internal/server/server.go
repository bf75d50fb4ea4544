package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/api"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/attempt"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/auth"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/leaderboard"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/lifecycle"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/memory"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/postgres"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/store/sqlite"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/telemetry"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

func (c RedisConfig) Enabled() bool { return len(c.Addrs) > 0 }

type Config struct {
	HTTP struct {
		Port        int32
		CORSOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Auth struct {
		Secret string
		Issuer string
		TTL    time.Duration
	}

	Policy struct {
		SingleInProgress bool
		AllowResubmit    bool
	}

	Storage struct {
		// Driver is one of memory, sqlite or postgres.
		Driver string
	}

	SQLite struct {
		Path string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	// Redis sections are optional; an empty Addrs disables the feature.
	Redis struct {
		Cache struct {
			RedisConfig `mapstructure:",squash"`
			TTL         time.Duration
		}

		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}
}

// DefaultConfig runs everything in process: memory storage, no Redis features.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.CORSOrigins = []string{"http://localhost:3000"}
	c.GRPC.Port = 8081
	c.Auth.Issuer = "quiz-attempts"
	c.Auth.TTL = 8 * time.Hour
	c.Policy.SingleInProgress = true
	c.Policy.AllowResubmit = true
	c.Storage.Driver = DriverMemory
	c.SQLite.Path = "quiz.db"
	c.Redis.Cache.Prefix = "quiz"
	c.Redis.Cache.TTL = 5 * time.Minute
	c.Redis.Leaderboard.Prefix = "quiz"
	c.Redis.Pubsub.Prefix = "quiz"
	return c
}

func (c Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Postgres.Addr == "" || c.Postgres.Name == "" {
			return errors.New("postgres.addr and postgres.name are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	return nil
}

type store interface {
	catalog.Store
	attempt.Store
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics
	reg     *prometheus.Registry

	infra struct {
		redis struct {
			cache       redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		sqlite   *sqlite.Store
		store    store
	}

	service struct {
		catalog     *catalog.Service
		lifecycle   *lifecycle.Controller
		leaderboard *leaderboard.Service
	}

	auth   *auth.Authenticator
	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	s := &Server{c: c}

	s.reg = prometheus.NewRegistry()
	s.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = telemetry.NewMetrics(s.reg)

	s.eb = event.NewBus(event.WithFailureHook(s.metrics.EventHandlerFailed))
	s.metrics.Subscribe(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(c RedisConfig) (redis.UniversalClient, error) {
		if !c.Enabled() {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect(s.c.Redis.Cache.RedisConfig)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch s.c.Storage.Driver {
	case DriverPostgres:
		pc := s.c.Postgres
		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		st := postgres.NewStore(postgres.Config{DB: db})
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}

		s.infra.postgres = db
		s.infra.store = st

	case DriverSQLite:
		st, err := sqlite.Open(ctx, s.c.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}

		s.infra.sqlite = st
		s.infra.store = st

	default:
		s.infra.store = memory.NewStore()
	}

	slog.InfoContext(ctx, "server: storage ready", "driver", s.c.Storage.Driver)
	return nil
}

func (s *Server) initService() {
	var quizzes catalog.Store = s.infra.store
	if s.infra.redis.cache != nil {
		quizzes = catalog.NewCachedStore(catalog.CacheConfig{
			Store:  s.infra.store,
			Redis:  s.infra.redis.cache,
			Prefix: s.c.Redis.Cache.Prefix,
			TTL:    s.c.Redis.Cache.TTL,
		})
	}

	locker := attempt.NewLocker()

	s.service.catalog = catalog.NewService(catalog.Config{
		Store:    quizzes,
		Attempts: s.infra.store,
		Locker:   locker,
	})

	s.service.lifecycle = lifecycle.NewController(lifecycle.Config{
		Catalog:  quizzes,
		Attempts: s.infra.store,
		EventBus: s.eb,
		Locker:   locker,
		Policy: lifecycle.Policy{
			SingleInProgress: s.c.Policy.SingleInProgress,
			AllowResubmit:    s.c.Policy.AllowResubmit,
		},
	})

	if s.infra.redis.leaderboard != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis.leaderboard,
			Prefix:   s.c.Redis.Leaderboard.Prefix,
		})
	}
}

func (s *Server) initAPI() {
	s.auth = auth.New(auth.Config{
		Secret: s.c.Auth.Secret,
		Issuer: s.c.Auth.Issuer,
		TTL:    s.c.Auth.TTL,
	})

	e := gin.New()
	e.Use(gin.Recovery(), telemetry.GinLogger())
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	pprof.Register(e, "/debug/pprof")

	s.health = health.NewServer()
	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(
		api.UnaryErrorInterceptor(),
		s.auth.UnaryServerInterceptor(
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_Watch_FullMethodName,
		),
	))
	healthpb.RegisterHealthServer(s.grpc, s.health)

	var pubsub api.Redis
	if s.infra.redis.pubsub != nil {
		pubsub = s.infra.redis.pubsub
	}

	api.New(api.Config{
		GRPC:         s.grpc,
		HTTP:         e,
		Auth:         s.auth,
		EventBus:     s.eb,
		Catalog:      s.service.catalog,
		Lifecycle:    s.service.lifecycle,
		Leaderboard:  s.service.leaderboard,
		Redis:        pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr: fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler: cors.Handler(cors.Options{
			AllowedOrigins: s.c.HTTP.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		})(e),
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if s.service.leaderboard != nil {
		s.service.leaderboard.Stop()
	}
	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"cache":       s.infra.redis.cache,
		"leaderboard": s.infra.redis.leaderboard,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "client", name, "error", err)
		}
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	if s.infra.sqlite != nil {
		if err := s.infra.sqlite.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close sqlite failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
