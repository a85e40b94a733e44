package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/stayline/hotel-concierge/cmd/mainconfig"
	"github.com/stayline/hotel-concierge/internal/archive"
	"github.com/stayline/hotel-concierge/internal/channels/whatsapp"
	appconfig "github.com/stayline/hotel-concierge/internal/config"
	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/notify"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

// The worker binary drains the SQS utterance queue. It runs the same
// conversation service as the API so replies, notifications, and
// archiving behave identically whichever process handles the turn.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting conversation worker", "env", cfg.Env, "workers", cfg.WorkerCount)

	ctx := context.Background()

	if cfg.ConversationQueueURL == "" {
		logger.Error("CONVERSATION_QUEUE_URL is required")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	// Sessions live in Redis so the worker sees the same state the API wrote.
	var sessions conversation.SessionStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		sessions = conversation.NewRedisSessionStore(rdb, cfg.SessionTTL)
	} else {
		sessions = conversation.NewMemorySessionStore(cfg.SessionTTL)
		logger.Warn("REDIS_ADDR not set; worker sessions are process-local")
	}

	var transcripts *conversation.TranscriptStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		transcripts = conversation.NewTranscriptStore(db)
	}

	var backend pms.Client
	if cfg.PMSBaseURL != "" {
		backend = pms.WithRetry(
			pms.NewHTTPClient(cfg.PMSBaseURL, cfg.PMSAPIToken, cfg.PMSTimeout, logger),
			cfg.PMSRetryBackoff,
			logger,
		)
	} else {
		backend = pms.NewMockClient()
		logger.Warn("PMS_BASE_URL not set; using mock reservation backend")
	}

	var ses *notify.SESSender
	if cfg.SESEnabled {
		ses = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	emailSender, provider, _ := notify.BuildEmailSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}, ses, cfg.SESEnabled, logger)
	logger.Info("email provider selected", "provider", provider)

	engine := conversation.NewEngine(backend, conversation.NewRegexExtractor(), cfg.HotelName, nil, logger)
	serviceOpts := []conversation.ServiceOption{
		conversation.WithNotifier(notify.NewService(emailSender, cfg.HotelName, logger)),
	}
	if transcripts != nil {
		serviceOpts = append(serviceOpts, conversation.WithTranscriptStore(transcripts))
	}
	if cfg.ArchiveBucket != "" {
		var source archive.TranscriptSource
		if transcripts != nil {
			source = transcripts
		}
		serviceOpts = append(serviceOpts,
			conversation.WithArchiver(archive.NewStore(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, source, logger)))
	}
	service := conversation.NewService(engine, sessions, logger, serviceOpts...)

	var messenger conversation.ReplyMessenger
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFrom != "" {
		messenger = whatsapp.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, logger)
	} else {
		messenger = whatsapp.NewLoggingSender(logger)
		logger.Warn("Twilio credentials not set; replies are logged only")
	}

	queue := conversation.NewSQSQueue(sqsClient, cfg.ConversationQueueURL)
	jobStore := conversation.NewJobStore(dynamoClient, cfg.ConversationJobsTable, logger)

	worker := conversation.NewWorker(
		service,
		queue,
		jobStore,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithReplyMessenger(messenger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker.Start(runCtx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
