package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/sms-widget-gateway/internal/config"
	"github.com/nimasrn/sms-widget-gateway/internal/outbox"
	"github.com/nimasrn/sms-widget-gateway/internal/processor"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
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
	logger.Info("starting processor", "version", version, "commit", commit, "date", date)

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	tenantRepo := repository.NewTenantRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	receiptConfig := outbox.DefaultReceiptConfig()
	receiptConfig.LockTTL = config.Get().OutboxLockTTL
	receiptConfig.ReceiptTTL = config.Get().OutboxReceiptTTL
	flusher := outbox.NewFlusher(tenantRepo, outboxRepo, outbox.FlusherConfig{
		BatchSize: config.Get().OutboxBatchSize,
		Timeout:   config.Get().OutboxWebhookTimeout,
	}).WithReceipts(outbox.NewReceipts(redisAdap, receiptConfig))

	service := processor.NewProcessorService(redisAdap, config.Get(), processor.NewFlushProcessor(flusher), outboxRepo)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	metricsAddr := config.Get().MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go func() {
		prom.ListenAndServer(metricsAddr, config.Get().MetricsURI)
	}()

	if err = service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	select {
	case <-c:
		service.Stop()
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
