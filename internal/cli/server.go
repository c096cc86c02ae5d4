package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
	"github.com/4-gent/phisherman/internal/config"
	"github.com/4-gent/phisherman/internal/infra/memory"
	pgloader "github.com/4-gent/phisherman/internal/infra/postgres"
	redisinfra "github.com/4-gent/phisherman/internal/infra/redis"
	transport "github.com/4-gent/phisherman/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.TopicLoader = memory.NewStaticTopicLoader(memory.DefaultTopics())
	if pool != nil {
		loader = pgloader.NewTopicLoader(pool)
	}

	topicTTL := config.Duration(cfg.Quiz.TopicTTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, topicTTL)
	} else {
		bank = memory.NewQuestionBank(loader, topicTTL)
	}

	idleTTL := config.Duration(cfg.Quiz.IdleTTL, 30*time.Minute)
	sweepInterval := config.Duration(cfg.Quiz.SweepInterval, time.Minute)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()

	var store app.SessionStore
	if redisClient != nil {
		rs := redisinfra.NewSessionStore(redisClient, idleTTL, log)
		rs.StartSweeper(sweepCtx, sweepInterval)
		store = rs
	} else {
		ms := memory.NewSessionStore(idleTTL, log)
		ms.StartSweeper(sweepCtx, sweepInterval)
		store = ms
	}

	penalty := 10
	if cfg.Quiz.Penalty != nil {
		penalty = *cfg.Quiz.Penalty
	}
	policy := app.Policy{
		Questions:       config.IntOr(cfg.Quiz.Questions, 10),
		Reward:          config.IntOr(cfg.Quiz.Reward, 10),
		Penalty:         penalty,
		QuestionSeconds: cfg.Quiz.QuestionSeconds,
		AnswerGrace:     config.Duration(cfg.Quiz.AnswerGrace, 2*time.Second),
		EnforceDeadline: cfg.Quiz.EnforceDeadline,
	}

	engine := app.NewEngine(store, bank, policy, log)
	wsHandler := transport.NewWSHandler(engine, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
