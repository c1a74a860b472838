// cmd/pipeline-manager/main.go
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

	"lending-pipeline/internal/common/aws"
	"lending-pipeline/internal/common/config"
	"lending-pipeline/internal/common/database"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/common/observability"
	"lending-pipeline/internal/outbox"
	"lending-pipeline/internal/store"
	"lending-pipeline/internal/workers/notification"
	"lending-pipeline/internal/workers/stage"
)

// complianceAmountLimit is the stand-in credit ceiling for the compliance
// decision until the real screening service is integrated.
const complianceAmountLimit = 1_000_000

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

	zapLog.Info("Starting pipeline manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init AWS clients with retry ---
	var snsClient *aws.SNSClient
	err = retryWithBackoff(func() error {
		var err error
		snsClient, err = aws.NewSNSClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
		return err
	}, 10, 2*time.Second, zapLog, "SNS client initialization")

	if err != nil {
		zapLog.Fatal("sns client failed after retries", zap.Error(err))
	}

	var sqsClient aws.SQSAPI
	err = retryWithBackoff(func() error {
		var err error
		sqsClient, err = aws.NewSQSClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
		return err
	}, 10, 2*time.Second, zapLog, "SQS client initialization")

	if err != nil {
		zapLog.Fatal("sqs client failed after retries", zap.Error(err))
	}
	zapLog.Info("AWS clients initialized successfully")

	// --- Stores ---
	outboxStore := store.NewOutboxStore(pg.DB)
	transitions := store.NewTransitionStore(pg.DB)

	// --- Outbox relay: LISTEN/NOTIFY fast path + pending sweep backstop ---
	relay := outbox.NewRelay(outboxStore, snsClient, cfg.AWS.SNS.TopicARN, log)

	listener, err := pg.NewListener(cfg.Relay.Channel, func(eventID string) {
		if err := relay.HandleNotification(ctx, eventID); err != nil {
			log.Error("relay notification failed", map[string]interface{}{
				"eventId": eventID,
				"error":   err,
			})
		}
	})
	if err != nil {
		zapLog.Fatal("outbox listener failed", zap.Error(err))
	}
	defer listener.Close()
	zapLog.Info("Outbox listener attached", zap.String("channel", cfg.Relay.Channel))

	sweeper := outbox.NewSweeper(
		relay,
		outboxStore,
		config.GetDuration(cfg.Relay.SweepIntervalMS),
		config.GetDuration(cfg.Relay.SweepMinAgeMS),
		cfg.Relay.SweepBatchSize,
		log,
	)
	go sweeper.Run(ctx)

	consumerOpts := aws.ConsumerOptions{
		WaitTimeSeconds:   cfg.AWS.SQS.WaitTimeSeconds,
		MaxMessages:       cfg.AWS.SQS.MaxMessages,
		VisibilityTimeout: cfg.AWS.SQS.VisibilityTimeout,
	}

	// --- Stage consumers ---
	decisions := map[string]stage.DecisionFunc{
		stage.IdentityCheck.Name:   stage.AlwaysPass,
		stage.ComplianceCheck.Name: stage.AmountBelow(complianceAmountLimit),
		stage.Disbursement.Name:    stage.AlwaysPass,
	}

	started := 0
	for _, def := range stage.All {
		sc := config.GetStageConfig(cfg, def.Name)
		if !sc.Enabled {
			zapLog.Info("stage disabled", zap.String("stage", def.Name))
			continue
		}
		if sc.QueueURL == "" {
			zapLog.Fatal("stage enabled without queue_url", zap.String("stage", def.Name))
		}

		processor := stage.NewProcessor(def, stage.LoadConfig(), transitions, decisions[def.Name], log)
		consumer := aws.NewConsumer(sqsClient, sc.QueueURL, consumerOpts, processor, log)
		go consumer.Start(ctx)
		started++
	}
	zapLog.Info("Stage consumers started", zap.Int("count", started))

	// --- Notification fan-out consumer ---
	if cfg.Notifications.QueueURL != "" {
		ncfg := notification.LoadConfig()
		if cfg.Notifications.Index != "" {
			ncfg.Index = cfg.Notifications.Index
		}
		if cfg.Notifications.MaxRetries > 0 {
			ncfg.MaxRetries = cfg.Notifications.MaxRetries
		}
		if cfg.Notifications.BaseDelayMS > 0 {
			ncfg.BaseDelay = config.GetDuration(cfg.Notifications.BaseDelayMS)
		}

		var emailSender notification.EmailSender
		if cfg.Notifications.Email.Enabled {
			sesClient, err := aws.NewSESClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			ncfg.EmailEnabled = true
			ncfg.FromEmail = cfg.Notifications.Email.FromEmail
			ncfg.ToEmail = cfg.Notifications.Email.ToEmail
			emailSender = sesClient
		}

		writer := notification.NewElasticBulkWriter(esClient.Client)
		handler := notification.NewHandler(ncfg, writer, emailSender, log)
		consumer := aws.NewConsumer(sqsClient, cfg.Notifications.QueueURL, consumerOpts, handler, log)
		go consumer.Start(ctx)
		zapLog.Info("Notification consumer started", zap.String("index", ncfg.Index))
	} else {
		zapLog.Info("Notification consumer disabled, no queue_url configured")
	}

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
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping consumers...")
	cancel()

	// Give in-flight batches a moment to finish before connections close.
	time.Sleep(2 * time.Second)

	zapLog.Info("Pipeline manager stopped gracefully")
}
