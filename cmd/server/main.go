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
	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/core/services"
	httphandlers "huddle/internal/handlers/http"
	backupinfra "huddle/internal/infrastructure/backup"
	"huddle/internal/infrastructure/media"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/reliability"
	repositories "huddle/internal/infrastructure/repositories"
	signalinfra "huddle/internal/infrastructure/signal"
	webrtcinfra "huddle/internal/infrastructure/webrtc"
	"huddle/pkg/backup"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/retry"
	"huddle/pkg/tracing"
)

func main() {
	startTime := time.Now()

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

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing disabled", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Monitoring
	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	metricsService := services.NewMetricsService(collector)

	// Storage
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	channels, messages, err := repoFactory.CreateChatStore(ctx)
	if err != nil {
		log.Fatalw("failed to open chat store", "error", err)
	}
	store := reliability.NewStoreWrapper(
		channels,
		messages,
		retry.Config{
			MaxAttempts:  cfg.Storage.Retry.MaxAttempts,
			InitialDelay: cfg.Storage.Retry.InitialDelay,
			MaxDelay:     cfg.Storage.Retry.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		circuitbreaker.Config{
			FailureThreshold:    cfg.Storage.CircuitBreaker.MaxFailures,
			SuccessThreshold:    2,
			Timeout:             cfg.Storage.CircuitBreaker.ResetTimeout,
			MaxRequestsHalfOpen: 1,
		},
		log,
	)

	instanceID := uuid.NewString()
	events := repoFactory.CreateEventBus(instanceID)
	locks := repoFactory.LockManager()

	// Services
	channelPresence := services.NewPresenceRegistry(
		services.ChannelRegistry,
		repoFactory.CreatePresenceStore(services.ChannelRegistry),
		cfg.Presence.ChannelTTL,
		metricsService,
		log,
	)
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

	chatService := services.NewCachedChatService(
		services.NewChatService(
			store.Channels(),
			store.Messages(),
			channelPresence,
			services.NewContentRenderer(),
			services.ChatConfig{
				HistoryLimit: cfg.Chat.HistoryLimit,
				DefaultChannel: domain.Channel{
					Name:        cfg.Chat.DefaultChannel.Name,
					Icon:        cfg.Chat.DefaultChannel.Icon,
					Description: cfg.Chat.DefaultChannel.Description,
				},
			},
			metricsService,
			log,
		),
		cfg.Chat.ChannelCacheTTL,
	)
	if cfg.Backup.Enabled && cfg.Backup.RestoreOnEmpty {
		restoreFromBackup(ctx, cfg, store, log)
	}
	if err := chatService.EnsureDefaultChannel(ctx); err != nil {
		log.Fatalw("failed to seed default channel", "error", err)
	}

	sessionService := services.NewSessionService(cfg.Session.Secret, cfg.Session.TTL)
	identity := middleware.NewIdentityResolver(domain.IdentityMode(cfg.Session.Identity))

	fileStore, err := media.NewFileStore(cfg.Media.Dir, cfg.Media.URLPrefix, cfg.Media.MaxBytes)
	if err != nil {
		log.Fatalw("failed to create media store", "error", err)
	}

	iceServers := webrtcinfra.ICEServers(cfg.WebRTC.ICEServers)
	if err := webrtcinfra.ValidateICEServers(iceServers); err != nil {
		log.Warnw("configured ICE servers rejected, using defaults", "error", err)
		iceServers = webrtcinfra.DefaultICEServers
	}

	// Push delivery
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

	// Background janitors
	go services.RunJanitor(ctx, "channel_presence", cfg.Presence.SweepInterval,
		locks.Exclusive("janitor:channel_presence", cfg.Presence.SweepInterval, services.PresenceSweeper(channelPresence)), log)
	go services.RunJanitor(ctx, "voice", cfg.Voice.PruneInterval,
		locks.Exclusive("janitor:voice", cfg.Voice.PruneInterval, voiceService.Sweep), log)
	go services.RunJanitor(ctx, "ws_limiter", time.Minute, func(context.Context) error {
		wsLimiter.EvictIdle(10 * time.Minute)
		return nil
	}, log)
	if cfg.Chat.ChannelCacheTTL > 0 {
		go services.RunJanitor(ctx, "channel_cache", cfg.Chat.ChannelCacheTTL, func(context.Context) error {
			chatService.Purge()
			return nil
		}, log)
	}

	if cfg.Backup.Enabled {
		backupService, err := newBackupService(cfg)
		if err != nil {
			log.Fatalw("failed to open backup storage", "error", err)
		}
		scheduler := backupinfra.NewScheduler(backupService, store.Channels(), store.Messages(), backupinfra.Config{
			Interval:           cfg.Backup.Interval,
			RetentionDays:      cfg.Backup.RetentionDays,
			MessagesPerChannel: cfg.Backup.MessagesPerChannel,
		}, log)
		go scheduler.Start(ctx)
	}

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddStoreCheck(repoFactory, cfg.Monitoring.HealthCheckInterval, 2*time.Second)
	healthChecker.AddBreakerCheck(func() bool {
		state := store.State()
		collector.SetStoreBreakerState(int(state))
		return state == circuitbreaker.StateOpen
	}, cfg.Monitoring.HealthCheckInterval)
	healthChecker.StartBackgroundChecks(ctx)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestIDMiddleware(),
		middleware.AccessLogMiddleware(logger.NewContextLogger(zapLogger), collector),
		middleware.CORSMiddleware(cfg.Server.AllowedOrigins, log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)
	router.NoRoute(middleware.NotFoundHandler)

	sessions := middleware.SessionMiddleware(sessionService)

	api := router.Group("/api", sessions)
	httphandlers.NewSessionHandler(sessionService).SetupRoutes(api)
	httphandlers.NewVoiceHandler(voiceService, identity, iceServers).SetupRoutes(api)
	httphandlers.NewChatHandler(chatService, fileStore, identity, cfg.Media.MaxBytes).SetupRoutes(api)
	httphandlers.NewStatsHandler(metricsService, wsServer).WithChannelCache(chatService).SetupRoutes(api)

	router.GET("/ws/voice", sessions, wsServer.HandleVoice)
	fileStore.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"checks":    healthChecker.LastStatus().Checks,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.CheckAll(checkCtx)
		if status.Status != monitoring.StatusHealthy {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting huddle server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down huddle server...")
	cancel()
	wsServer.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error shutting down tracer", "error", err)
		}
	}

	log.Info("huddle server stopped")
}

func newBackupService(cfg *config.Config) (*backup.BackupService, error) {
	storage, err := backup.NewFileStorage(cfg.Backup.Dir)
	if err != nil {
		return nil, err
	}
	return backup.NewBackupService(storage, "1"), nil
}

func restoreFromBackup(ctx context.Context, cfg *config.Config, store *reliability.StoreWrapper, log *zap.SugaredLogger) {
	backupService, err := newBackupService(cfg)
	if err != nil {
		log.Warnw("backup storage unavailable, skipping restore", "error", err)
		return
	}
	restored, err := backupinfra.NewRestoreService(backupService, store.Channels(), store.Messages(), log).RestoreLatestIfEmpty(ctx)
	if err != nil {
		log.Errorw("restore from backup failed", "error", err)
		return
	}
	if restored {
		log.Info("chat history restored from latest backup")
	}
}
