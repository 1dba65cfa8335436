package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"teamchat/internal/channel"
	"teamchat/internal/config"
	"teamchat/internal/db"
	"teamchat/internal/dm"
	"teamchat/internal/httpx"
	"teamchat/internal/message"
	"teamchat/internal/middleware"
	"teamchat/internal/realtime"
	"teamchat/internal/upload"
	"teamchat/internal/user"
	"teamchat/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	database, err := db.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Conn.Close()

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database ready")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	cancelPing()
	logger.Info().Msg("redis ready")

	// Repositories and services.
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	workspaceRepo := workspace.NewRepository(database.Conn)
	workspaceService := workspace.NewService(workspaceRepo, userRepo)
	workspaceHandler := workspace.NewHandler(workspaceService)

	channelRepo := channel.NewRepository(database.Conn)
	channelService := channel.NewService(channelRepo, workspaceRepo)
	channelHandler := channel.NewHandler(channelService)

	messageRepo := message.NewRepository(database.Conn)
	messageService := message.NewService(messageRepo, workspaceRepo)
	messageHandler := message.NewHandler(messageService)

	dmRepo := dm.NewRepository(database.Conn)
	dmService := dm.NewService(dmRepo, userExists{repo: userRepo})
	dmHandler := dm.NewHandler(dmService)

	uploadHandler := upload.NewHandler(cfg.UploadDir, cfg.MaxFileSize, logger)
	if err := uploadHandler.EnsureDir(); err != nil {
		logger.Fatal().Err(err).Msg("failed to create upload directory")
	}

	// Realtime hub with a Redis relay so every instance sees every event.
	relay := realtime.NewRelay(rdb, logger)
	hub := realtime.NewHub(relay, logger)
	go hub.Run()
	go relay.Run(context.Background(), hub)

	messageService.SetBroadcaster(hub)

	presence := realtime.NewPresence(rdb)
	gateway := realtime.NewGateway(hub, presence, messageService, userService,
		memberships{workspaces: workspaceRepo, channels: channelRepo},
		channelRepo, logger)

	auth := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/uploads/*", uploadHandler.Serve())

	r.Post("/auth/register", userHandler.Register)
	r.Post("/auth/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		r.Get("/auth/me", userHandler.GetMe)
		r.Put("/auth/me", userHandler.UpdateProfile)
		r.Get("/users", userHandler.ListUsers)
		r.Get("/users/search", userHandler.SearchUsers)

		r.Post("/workspaces", workspaceHandler.Create)
		r.Get("/workspaces", workspaceHandler.List)
		r.Get("/workspaces/{workspaceId}", workspaceHandler.Get)
		r.Put("/workspaces/{workspaceId}", workspaceHandler.Update)
		r.Post("/workspaces/{workspaceId}/invite", workspaceHandler.Invite)

		r.Post("/channels/workspace/{workspaceId}", channelHandler.Create)
		r.Get("/channels/workspace/{workspaceId}", channelHandler.List)
		r.Get("/channels/{channelId}", channelHandler.Get)
		r.Put("/channels/{channelId}", channelHandler.Update)
		r.Post("/channels/{channelId}/join", channelHandler.Join)
		r.Post("/channels/{channelId}/leave", channelHandler.Leave)
		r.Post("/channels/{channelId}/read", messageHandler.MarkRead)

		r.Post("/messages/channel/{channelId}", messageHandler.Send)
		r.Get("/messages/channel/{channelId}", messageHandler.List)
		r.Get("/messages/{messageId}/replies", messageHandler.Replies)
		r.Put("/messages/{messageId}", messageHandler.Update)
		r.Delete("/messages/{messageId}", messageHandler.Delete)
		r.Post("/messages/{messageId}/reactions", messageHandler.AddReaction)
		r.Delete("/messages/{messageId}/reactions", messageHandler.RemoveReaction)
		r.Get("/search/messages", messageHandler.Search)

		r.Post("/dm/conversations", dmHandler.CreateConversation)
		r.Get("/dm/conversations", dmHandler.ListConversations)
		r.Get("/dm/conversations/{conversationId}", dmHandler.GetConversation)
		r.Post("/dm/conversations/{conversationId}/messages", dmHandler.SendMessage)
		r.Get("/dm/conversations/{conversationId}/messages", dmHandler.ListMessages)
		r.Put("/dm/messages/{messageId}", dmHandler.UpdateMessage)
		r.Delete("/dm/messages/{messageId}", dmHandler.DeleteMessage)
		r.Get("/search/dm", dmHandler.Search)

		r.Post("/upload", uploadHandler.Upload)
		r.Post("/upload/multiple", uploadHandler.UploadMultiple)

		r.Get("/ws", gateway.ServeWS)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// userExists adapts the user repository to the participant check the
// direct-message service needs.
type userExists struct {
	repo *user.Repository
}

func (u userExists) Exists(ctx context.Context, userID string) (bool, error) {
	found, err := u.repo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

// memberships combines workspace and channel membership lookups for the
// gateway's connect-time subscriptions.
type memberships struct {
	workspaces *workspace.Repository
	channels   *channel.Repository
}

func (m memberships) WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return m.workspaces.WorkspaceIDsForUser(ctx, userID)
}

func (m memberships) ChannelIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return m.channels.ChannelIDsForUser(ctx, userID)
}
