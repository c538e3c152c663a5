package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/sms-widget-gateway/internal/carriers"
	"github.com/nimasrn/sms-widget-gateway/internal/config"
	"github.com/nimasrn/sms-widget-gateway/internal/handlers"
	"github.com/nimasrn/sms-widget-gateway/internal/outbox"
	"github.com/nimasrn/sms-widget-gateway/internal/queue"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/internal/services"
	xhttp "github.com/nimasrn/sms-widget-gateway/pkg/http"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
	"github.com/nimasrn/sms-widget-gateway/pkg/prom"
	"github.com/nimasrn/sms-widget-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	if err = logger.Configure(config.Get().LogEnv, config.Get().LogLevel); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CORSMiddleware(config.Get().AllowedOrigins()))
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(config.Get().HttpRequestTimeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConfig(), writeConfig(), pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if config.Get().MetricsAddr != "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		if err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to create prometheus metrics", "error", err)
			return
		}
		go prom.ListenAndServer(config.Get().MetricsAddr, config.Get().MetricsURI)
	}

	tenantRepo := repository.NewTenantRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)

	receiptConfig := outbox.DefaultReceiptConfig()
	receiptConfig.LockTTL = config.Get().OutboxLockTTL
	receiptConfig.ReceiptTTL = config.Get().OutboxReceiptTTL
	flusher := outbox.NewFlusher(tenantRepo, outboxRepo, outbox.FlusherConfig{
		BatchSize: config.Get().OutboxBatchSize,
		Timeout:   config.Get().OutboxWebhookTimeout,
	}).WithReceipts(outbox.NewReceipts(redisAdap, receiptConfig))

	var dispatcher services.Dispatcher
	switch config.Get().OutboxDispatch {
	case config.DispatchQueue:
		q, err := queue.NewQueue(ctx, redisAdap, queue.QueueConfig{
			Name:              config.Get().QueueName,
			ConsumerGroup:     config.Get().QueueConsumerGroup,
			ConsumerName:      "api",
			MaxRetries:        config.Get().QueueMaxRetries,
			VisibilityTimeout: config.Get().QueueVisibilityTimeout,
			PollInterval:      config.Get().QueuePollInterval,
			BatchSize:         config.Get().QueueBatchSize,
			MaxLen:            config.Get().QueueMaxLen,
			EnableDLQ:         config.Get().QueueEnableDLQ,
		})
		if err != nil {
			logger.Error("failed creating queue", "error", err)
			return
		}
		dispatcher = outbox.NewQueueDispatcher(ctx, q)
	default:
		local := outbox.NewLocalDispatcher(flusher.Flush, config.Get().OutboxWorkers, config.Get().OutboxBuffer)
		local.Start(ctx)
		defer local.Stop()
		dispatcher = local
	}

	// services
	carrierRegistry := carriers.NewRegistryFromConfig(config.Get())
	messageService := services.NewMessageService(
		tenantRepo, threadRepo, messageRepo, outboxRepo, db,
		carrierRegistry,
		dispatcher,
	).WithFallbackSender(config.Get().TwilioFrom)
	readService := services.NewReadService(tenantRepo, threadRepo, messageRepo, directoryRepo)
	auth := services.NewBearerAuth(config.Get().ApiAuthSecret)

	// v1 handlers
	g := s.Router.Group("/api/v1")
	handlers.RegisterMessageRoutes(g, handlers.NewMessageHandler(messageService, auth))
	handlers.RegisterReadRoutes(g, handlers.NewReadHandler(readService))
	handlers.RegisterEventsRoutes(g, handlers.NewEventsHandler(flusher, auth))
	handlers.RegisterCarriersRoutes(g, handlers.NewCarriersHandler(carrierRegistry, auth))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"postgres": db.Ping,
		"redis":    redisAdap.Ping,
	}))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

func readConfig() pg.Config {
	return pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
}

func writeConfig() pg.Config {
	return pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
