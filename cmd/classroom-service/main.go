package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	intDatabase "liveclass-backend/internal/database"
	meetingHandler "liveclass-backend/internal/handler/http/meeting"
	pushHandler "liveclass-backend/internal/handler/http/push"
	webhookHandler "liveclass-backend/internal/handler/http/webhook"
	wsHandler "liveclass-backend/internal/handler/ws"
	"liveclass-backend/internal/media/livekit"
	"liveclass-backend/internal/middleware"
	"liveclass-backend/internal/repository/postgres"
	redisRepo "liveclass-backend/internal/repository/redis"
	"liveclass-backend/internal/service/activity"
	meetingService "liveclass-backend/internal/service/meeting"
	"liveclass-backend/internal/service/monitor"
	"liveclass-backend/internal/service/notification"
	"liveclass-backend/pkg/config"
	"liveclass-backend/pkg/constants"
	pkgDatabase "liveclass-backend/pkg/database"
	"liveclass-backend/pkg/jwt"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/metrics"
	"liveclass-backend/pkg/push"
)

func main() {
	// Local development reads a .env file; deployments use the environment
	_ = godotenv.Load()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 2. Connect to PostgreSQL
	db, err := pkgDatabase.NewPostgresDB(ctx, &pkgDatabase.PostgresConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", zap.String("database", cfg.Database.Database))

	meetingRepo := postgres.NewMeetingRepository(db.Pool)

	// 3. Initialize Redis with degraded mode support
	redisDB := intDatabase.NewRedisDB(&cfg.Redis, appMetrics)
	defer redisDB.Close()
	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable, starting in degraded mode", zap.Error(err))
	}
	redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)

	// 4. Initialize push and notifications
	pushProvider, err := push.NewProvider(ctx, push.ProviderType(cfg.Push.Provider))
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	pushSvc := push.NewService(pushProvider, redisRepo.NewPushTokenRepository(redisDB))
	notifier := notification.NewService(pushSvc, redisRepo.NewPublisher(redisDB), meetingRepo, appMetrics)

	// 5. Initialize the media server adapters
	rooms := livekit.NewRoomProvider(cfg.LiveKit)
	tokens := livekit.NewTokenIssuer(cfg.LiveKit)
	receiver := livekit.NewWebhookReceiver(cfg.LiveKit)

	// 6. Initialize services
	recorder := activity.NewRecorder(meetingRepo, cfg.Session.DedupWindow,
		activity.WithPersistTimeout(cfg.Session.PersistTimeout),
		activity.WithMetrics(appMetrics))

	meetingSvc := meetingService.NewService(rooms, tokens, meetingRepo, recorder, notifier)

	roomMonitor := monitor.New(monitor.Config{
		MaxActiveSlots: cfg.Session.MaxActiveSlots,
		DedupWindow:    cfg.Session.DedupWindow,
		PersistTimeout: cfg.Session.PersistTimeout,
	}, meetingRepo, redisRepo.NewPresenceRepository(redisDB), recorder, appMetrics)

	// 7. Initialize handlers
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.AccessTokenTTL)
	meetingHdlr := meetingHandler.NewHandler(meetingSvc, roomMonitor)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	webhookHdlr := webhookHandler.NewHandler(receiver, roomMonitor, appMetrics)
	stateHub := wsHandler.NewStateHub(roomMonitor, meetingSvc, cfg.Server.AllowedOrigins, wsHandler.DefaultMaxConnections, appMetrics)

	// 8. Setup Gin Router
	router := gin.New()
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// LiveKit authenticates webhooks with its own signed payload
	router.POST("/v1/livekit/webhook", webhookHdlr.Receive)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.POST("/classes/:classId/meetings", middleware.RequireRole("teacher", "admin"), meetingHdlr.CreateMeeting)

		meetings := v1.Group("/meetings/:roomId")
		meetings.GET("/validate", meetingHdlr.ValidateRoom)
		meetings.POST("/token", meetingHdlr.IssueToken)
		meetings.POST("/end", meetingHdlr.EndMeeting)
		meetings.GET("/state", meetingHdlr.GetState)
		meetings.GET("/ws", stateHub.ServeWS)

		pushTokens := v1.Group("/push/tokens")
		pushTokens.POST("", pushHdlr.RegisterToken)
		pushTokens.DELETE("", pushHdlr.UnregisterToken)
		pushTokens.DELETE("/all", pushHdlr.UnregisterAllTokens)
	}

	// 9. Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Classroom service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stateHub.Close()
	roomMonitor.Close()

	logger.Info("Server exited")
}
