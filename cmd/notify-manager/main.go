// cmd/notify-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"school-notify/internal/channels"
	"school-notify/internal/common/aws"
	"school-notify/internal/common/config"
	"school-notify/internal/common/database"
	httpclient "school-notify/internal/common/http"
	"school-notify/internal/common/logger"
	"school-notify/internal/common/observability"
	"school-notify/internal/dispatch"
	"school-notify/internal/engine"
	"school-notify/internal/notification"
	"school-notify/internal/receipt"
	"school-notify/internal/recipient"
	"school-notify/internal/scheduler"
	"school-notify/internal/store"
	"school-notify/internal/template"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notify manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("notify-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (engagement event index) ---
	var receiptSink receipt.EventSink = receipt.NoopSink{}
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Warn("elasticsearch unavailable, engagement events will not be indexed", zap.Error(err))
		} else {
			receiptSink = receipt.NewElasticsearchSink(esClient, cfg.Database.Elasticsearch.Index)
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Channel senders ---
	var senders []channels.Sender

	if config.IsChannelEnabled(cfg, "in_app") {
		senders = append(senders, channels.NewInAppSender(redis, cfg.InApp.ChannelPrefix, log))
	}

	if config.IsChannelEnabled(cfg, "email") {
		sesClient, err := aws.NewSESClient(ctx, cfg.Email.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		senders = append(senders, channels.NewEmailSender(sesClient, cfg.Email.FromEmail, log))
	}

	if config.IsChannelEnabled(cfg, "sms") {
		snsClient, err := aws.NewSNSClient(ctx, cfg.SMS.AWSRegion)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		senders = append(senders, channels.NewSMSSender(snsClient, cfg.SMS.SenderID, log))
	}

	if config.IsChannelEnabled(cfg, "push") {
		pushHTTP := httpclient.NewClient(config.GetDuration(config.GetChannelConfig(cfg, "push").TimeoutMs))
		senders = append(senders, channels.NewPushSender(pushHTTP, cfg.Push.GatewayURL, cfg.Push.APIKey, log))
	}

	zapLog.Info("Channel senders initialized", zap.Int("channels", len(senders)))

	// --- Engine wiring ---
	directory := recipient.NewPostgresDirectory(pg.DB)
	resolver := recipient.NewResolver(directory, log)

	dispatcher := dispatch.NewDispatcher(
		senders,
		directory,
		dispatch.NewRedisDedup(redis.Client, 0),
		dispatch.FromAppConfig(cfg),
		log,
	)

	var views notification.ViewCounter = notification.LifetimeViews{}
	if cfg.Analytics.ViewCounting == "window" {
		views = notification.WindowedViews{Window: 24 * time.Hour}
	}

	eng := engine.New(engine.Deps{
		Templates:  template.NewStore(pg.DB, log),
		Store:      store.NewNotificationStore(pg.DB, log),
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Tracker:    receipt.NewTracker(receiptSink, log),
		Obs:        obs,
		Views:      views,
		Logger:     log,
	})

	// --- Scheduler ---
	schedCtx, stopSched := context.WithCancel(ctx)
	sched := scheduler.New(eng, cfg.Scheduler, log)
	go sched.Run(schedCtx)

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		zapLog.Info("Health/Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	stopSched()

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zapLog.Warn("scheduler did not drain within shutdown timeout")
	}

	zapLog.Info("Notify manager stopped gracefully")
}
