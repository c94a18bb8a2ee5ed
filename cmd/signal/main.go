package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"huddle/internal/core/domain"
	"huddle/internal/core/services"
	httphandlers "huddle/internal/handlers/http"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	repositories "huddle/internal/infrastructure/repositories"
	signalinfra "huddle/internal/infrastructure/signal"
	webrtcinfra "huddle/internal/infrastructure/webrtc"
	"huddle/pkg/config"
	"huddle/pkg/logger"
)

// Standalone voice signaling: presence, mailboxes and push, without chat.
// Point it at the same Redis as the main server to share voice state.
func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/huddle/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger, logErr := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if logErr != nil {
		zapLogger, _ = logger.New("info")
	}
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("could not load config, using defaults", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	metricsService := services.NewMetricsService(collector)

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	events := repoFactory.CreateEventBus(uuid.NewString())
	locks := repoFactory.LockManager()

	voicePresence := services.NewPresenceRegistry(
		services.VoiceRegistry,
		repoFactory.CreatePresenceStore(services.VoiceRegistry),
		cfg.Voice.ActiveWindow,
		metricsService,
		log,
	)
	var voiceOpts []services.Option
	if events != nil {
		voiceOpts = append(voiceOpts, services.WithEventPublisher(events))
	}
	voiceService := services.NewVoiceService(
		voicePresence,
		repoFactory.CreateMailboxStore(time.Now),
		cfg.Voice.MailboxIdleTTL,
		metricsService,
		log,
		voiceOpts...,
	)
	if events != nil {
		go func() {
			if err := events.Subscribe(ctx, voiceService.ApplyEvent); err != nil && ctx.Err() == nil {
				log.Errorw("voice event subscription stopped", "error", err)
			}
		}()
	}

	sessionService := services.NewSessionService(cfg.Session.Secret, cfg.Session.TTL)
	identity := middleware.NewIdentityResolver(domain.IdentityMode(cfg.Session.Identity))

	iceServers := webrtcinfra.ICEServers(cfg.WebRTC.ICEServers)
	if err := webrtcinfra.ValidateICEServers(iceServers); err != nil {
		log.Warnw("configured ICE servers rejected, using defaults", "error", err)
		iceServers = webrtcinfra.DefaultICEServers
	}

	wsLimiter := middleware.NewWebSocketLimiter(cfg)
	wsServer := signalinfra.NewWebSocketServer(
		voiceService,
		identity,
		wsLimiter,
		collector,
		signalinfra.Config{
			PingInterval:      cfg.Signal.PingInterval,
			PongTimeout:       cfg.Signal.PongTimeout,
			WriteTimeout:      cfg.Signal.WriteTimeout,
			MaxMessageSize:    cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
			MessagesPerSecond: cfg.RateLimiting.WebSocket.MessagesPerSecond,
			Burst:             cfg.RateLimiting.WebSocket.Burst,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
		},
		log,
	)

	go services.RunJanitor(ctx, "voice", cfg.Voice.PruneInterval,
		locks.Exclusive("janitor:voice", cfg.Voice.PruneInterval, voiceService.Sweep), log)
	go services.RunJanitor(ctx, "ws_limiter", time.Minute, func(context.Context) error {
		wsLimiter.EvictIdle(10 * time.Minute)
		return nil
	}, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.AccessLogMiddleware(logger.NewContextLogger(zapLogger), collector),
		middleware.CORSMiddleware(cfg.Server.AllowedOrigins, log),
		middleware.ErrorHandlerMiddleware(log),
	)
	router.NoRoute(middleware.NotFoundHandler)

	sessions := middleware.SessionMiddleware(sessionService)
	api := router.Group("/api", sessions)
	httphandlers.NewSessionHandler(sessionService).SetupRoutes(api)
	httphandlers.NewVoiceHandler(voiceService, identity, iceServers).SetupRoutes(api)
	httphandlers.NewStatsHandler(metricsService, wsServer).SetupRoutes(api)

	router.GET("/ws/voice", sessions, wsServer.HandleVoice)

	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(checkCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"push_connections": wsServer.ConnectedCount(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:        cfg.Signal.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting huddle signaling server on %s", cfg.Signal.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Signaling server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	cancel()
	wsServer.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signaling server shutdown", "error", err)
		srv.Close()
	}
	log.Info("huddle signaling server stopped")
}
