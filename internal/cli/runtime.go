package cli

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quizpoint/internal/app"
	"quizpoint/internal/auth"
	"quizpoint/internal/config"
	"quizpoint/internal/infra/memory"
	"quizpoint/internal/infra/postgres"
	redisinfra "quizpoint/internal/infra/redis"
	"quizpoint/internal/transport/rest"
)

// runtime holds the wired collaborators shared by the commands.
type runtime struct {
	cfg     config.Config
	tokens  *auth.TokenSession
	client  *rest.Client
	service *app.QuizService
	closers []func()
}

func loadConfig(configPath string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if token != "" {
		cfg.API.Token = token
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newRuntimeWithConfig(ctx, cfg)
}

func newRuntimeWithConfig(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	rt.tokens = auth.NewTokenSession(cfg.API.Token)
	httpClient := &http.Client{Timeout: config.TTLDuration(cfg.API.Timeout, 15*time.Second)}
	rt.client = rest.NewClient(cfg.API.BaseURL, httpClient, rt.tokens)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
	}
	return rt.finish(redisClient, pool), nil
}

func (rt *runtime) finish(redisClient *redis.Client, pool *pgxpool.Pool) *runtime {
	cfg := rt.cfg
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	journalTTL := config.TTLDuration(cfg.Session.JournalTTL, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))

	var quizRepo app.QuizRepository
	var journal app.AnswerJournal
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, rt.client, quizTTL)
		journal = redisinfra.NewJournal(redisClient, journalTTL)
	} else {
		quizRepo = memory.NewQuizRepository(rt.client, quizTTL)
		journal = memory.NewJournal()
	}

	var archive app.ResultArchive = memory.NewArchive()
	if pool != nil {
		archive = postgres.NewResultStore(pool)
	}

	opts := app.Options{
		Tick:            config.TTLDuration(cfg.Session.Tick, time.Second),
		AutosaveTimeout: config.TTLDuration(cfg.Session.AutosaveTimeout, 10*time.Second),
		Logger:          log.Default(),
		Journal:         journal,
		Archive:         archive,
	}
	rt.service = app.NewQuizService(rt.client, rt.tokens, quizRepo, opts)
	return rt
}

// Close releases pools and clients.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
