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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	pgstore "quizroom-service/internal/infra/postgres"
	redisstore "quizroom-service/internal/infra/redis"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var directory app.ParticipantDirectory = memory.NewStaticDirectory(sampleRosters())
	var opts []app.Option
	if pool != nil {
		pgLoader := pgstore.NewQuizLoader(pool)
		loader = pgLoader
		directory = pgstore.NewDirectory(pool)
		opts = append(opts, app.WithStatusUpdater(pgLoader))
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	quizRepo := memory.NewQuizCache(loader, quizTTL)

	var rooms app.RoomRepository = memory.NewRoomStore()
	if redisClient != nil {
		rooms = redisstore.NewRoomStore(redisClient, redisTTL)
		opts = append(opts, app.WithLeaderboardStore(redisstore.NewLeaderboardStore(redisClient, redisTTL)))
	}

	if cfg.Scoring.Decay > 0 || cfg.Scoring.MinFraction > 0 {
		policy := app.DefaultScorePolicy()
		if cfg.Scoring.Decay > 0 {
			policy.Decay = cfg.Scoring.Decay
		}
		if cfg.Scoring.MinFraction > 0 {
			policy.MinFraction = cfg.Scoring.MinFraction
		}
		opts = append(opts, app.WithScorePolicy(policy))
	}
	if cfg.Room.SendBuffer > 0 {
		opts = append(opts, app.WithSendBuffer(cfg.Room.SendBuffer))
	}

	service := app.NewRoomService(rooms, quizRepo, directory, logger, opts...)

	var auth transport.TokenValidator = transport.AllowAll{}
	if cfg.Admin.JWTSecret != "" {
		auth = transport.NewJWTValidator(cfg.Admin.JWTSecret)
	}
	wsHandler := transport.NewWSHandler(service, auth, logger)
	restHandler := transport.NewRestHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", restHandler.Leaderboard)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz room coordinator")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// end rooms first so clients see quiz_ended before the listener dies
	service.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes provides demo content when no authoring store is
// configured; swap in the postgres loader for production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"DEMO01": {
			Code:  "DEMO01",
			Title: "Demo quiz",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Prompt:        "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectOption: 1,
					TimeLimitSec:  20,
					BasePoints:    1000,
				},
				{
					ID:            "q2",
					Prompt:        "Which planet is closest to the sun?",
					Options:       []string{"Venus", "Earth", "Mercury"},
					CorrectOption: 2,
					TimeLimitSec:  20,
					BasePoints:    1000,
				},
			},
		},
	}
}

func sampleRosters() map[string][]domain.Participant {
	return map[string][]domain.Participant{
		"DEMO01": {
			{ID: "p1", Name: "Alice", AvatarSeed: "seed-a"},
			{ID: "p2", Name: "Bob", AvatarSeed: "seed-b"},
		},
	}
}
