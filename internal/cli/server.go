package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/config"
	"studyhub-quiz-service/internal/domain"
	"studyhub-quiz-service/internal/infra/detector"
	"studyhub-quiz-service/internal/infra/memory"
	pgstore "studyhub-quiz-service/internal/infra/postgres"
	redisstore "studyhub-quiz-service/internal/infra/redis"
	"studyhub-quiz-service/internal/logger"
	transport "studyhub-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var redisClient *redislib.Client
	if cfg.Redis.Addr != "" {
		redisClient = redislib.NewClient(&redislib.Options{
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

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = pgstore.NewQuestionLoader(pool)
	}

	cacheTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var questionRepo app.QuestionRepository
	if redisClient != nil {
		questionRepo = redisstore.NewQuestionRepository(redisClient, loader, cacheTTL)
	} else {
		questionRepo = memory.NewQuestionRepository(loader, cacheTTL)
	}

	var resultStore app.ResultStore
	if pool != nil {
		resultStore = pgstore.NewResultStore(pool)
	} else {
		store := memory.NewResultStore()
		store.AddUser(domain.User{ID: "demo-user", Name: "Demo User", Email: "demo@studyhub.local", JoinedAt: time.Now()})
		resultStore = store
	}

	budget := config.Duration(cfg.Quiz.Duration, 20*time.Minute)
	var registry app.AttemptRegistry
	if redisClient != nil {
		registry = redisstore.NewAttemptRegistry(redisClient, budget+time.Minute)
	} else {
		registry = memory.NewAttemptRegistry()
	}

	var faceDetector app.FaceDetector
	if cfg.Detector.URL != "" {
		faceDetector = detector.NewHTTPClient(cfg.Detector.URL, config.Duration(cfg.Detector.Timeout, 5*time.Second))
	}

	quiz := app.NewQuizService(questionRepo, cfg.QuizMaxQuestions())
	results := app.NewResultService(resultStore)
	auth := transport.NewAuth(cfg.Auth.JWTSecret)

	rest := transport.NewRestHandler(quiz, results, auth, log)
	ws := transport.NewAttemptWSHandler(quiz, results, registry, auth, faceDetector, transport.ProctorSettings{
		Budget:           budget,
		ViolationLimit:   cfg.ViolationLimit(),
		FacePollInterval: config.Duration(cfg.Proctor.FacePollInterval, 1200*time.Millisecond),
	}, log)

	mux := http.NewServeMux()
	rest.Register(mux)
	mux.HandleFunc("/ws/attempt", ws.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: attempt websockets outlive any sane value
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
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

// sampleQuestions is the demo bank used when no database is configured.
func sampleQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"math": {
			{Subject: "math", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, Answer: "4"},
			{Subject: "math", Text: "What is 9 * 3?", Options: []string{"27", "21", "24", "18"}, Answer: "27"},
			{Subject: "math", Text: "What is the square root of 144?", Options: []string{"10", "11", "12", "14"}, Answer: "12"},
		},
		"science": {
			{Subject: "science", Text: "What planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, Answer: "Mars"},
			{Subject: "science", Text: "What gas do plants absorb from the atmosphere?", Options: []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Hydrogen"}, Answer: "Carbon dioxide"},
		},
	}
}
