package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stayline/hotel-concierge/cmd/mainconfig"
	"github.com/stayline/hotel-concierge/internal/api/router"
	"github.com/stayline/hotel-concierge/internal/archive"
	"github.com/stayline/hotel-concierge/internal/channels/voice"
	"github.com/stayline/hotel-concierge/internal/channels/whatsapp"
	appconfig "github.com/stayline/hotel-concierge/internal/config"
	"github.com/stayline/hotel-concierge/internal/conversation"
	"github.com/stayline/hotel-concierge/internal/events"
	"github.com/stayline/hotel-concierge/internal/http/handlers"
	"github.com/stayline/hotel-concierge/internal/notify"
	"github.com/stayline/hotel-concierge/internal/observability/metrics"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hotel-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	metricsHandler, engineMetrics := setupMetrics()

	// Session persistence: Redis in deployments, in-memory without one.
	var sessions conversation.SessionStore
	var callStore *conversation.CallStore
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
		callStore = conversation.NewCallStore(rdb)
		logger.Info("using redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	} else {
		sessions = conversation.NewMemorySessionStore(cfg.SessionTTL)
		logger.Warn("REDIS_ADDR not set; sessions are in-memory and lost on restart")
	}

	// Relational stores: conversation log, processed webhook events, job status.
	var transcripts *conversation.TranscriptStore
	var processed *events.ProcessedStore
	var pgJobs *conversation.PGJobStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		transcripts = conversation.NewTranscriptStore(db)

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		processed = events.NewProcessedStore(pool)
		pgJobs = conversation.NewPGJobStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; transcript log and webhook dedupe disabled")
	}

	backend := buildReservationBackend(cfg, logger)

	// AWS clients are only dialed for the features that need them.
	needsAWS := cfg.QueueBackend == "sqs" || cfg.ArchiveBucket != "" || cfg.SESEnabled
	var s3Client *s3.Client
	var sesClient *sesv2.Client
	var sqsClient *sqs.Client
	var dynamoClient *dynamodb.Client
	if needsAWS {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		s3Client = s3.NewFromConfig(awsCfg)
		sesClient = sesv2.NewFromConfig(awsCfg)
		sqsClient = sqs.NewFromConfig(awsCfg)
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}

	// Confirmation email: SendGrid preferred, SES when enabled, else a stub.
	var ses *notify.SESSender
	if cfg.SESEnabled {
		ses = notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	emailSender, provider, reason := notify.BuildEmailSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}, ses, cfg.SESEnabled, logger)
	logger.Info("email provider selected", "provider", provider, "reason", reason)
	notifier := notify.NewService(emailSender, cfg.HotelName, logger)

	// Conversation engine and service.
	engine := conversation.NewEngine(backend, conversation.NewRegexExtractor(), cfg.HotelName, engineMetrics, logger)
	serviceOpts := []conversation.ServiceOption{
		conversation.WithNotifier(notifier),
		conversation.WithServiceMetrics(engineMetrics),
	}
	if transcripts != nil {
		serviceOpts = append(serviceOpts, conversation.WithTranscriptStore(transcripts))
	}
	if cfg.ArchiveBucket != "" {
		var source archive.TranscriptSource
		if transcripts != nil {
			source = transcripts
		}
		archiver := archive.NewStore(s3Client, cfg.ArchiveBucket, source, logger)
		serviceOpts = append(serviceOpts, conversation.WithArchiver(archiver))
		logger.Info("booking archive enabled", "bucket", cfg.ArchiveBucket)
	}
	service := conversation.NewService(engine, sessions, logger, serviceOpts...)

	messenger := buildMessenger(cfg, logger)

	// Async pipeline. The memory backend runs an in-process worker; the
	// sqs backend leaves consumption to the conversation-worker binary.
	var publisher *conversation.Publisher
	var jobs conversation.JobRecorder
	var memWorker *conversation.Worker
	switch cfg.QueueBackend {
	case "sqs":
		queue := conversation.NewSQSQueue(sqsClient, cfg.ConversationQueueURL)
		publisher = conversation.NewPublisher(queue, logger)
		jobs = conversation.NewJobStore(dynamoClient, cfg.ConversationJobsTable, logger)
	case "memory":
		if pgJobs == nil {
			logger.Warn("QUEUE_BACKEND=memory requires DATABASE_URL for job status; processing inline")
			break
		}
		queue := conversation.NewMemoryQueue(256)
		publisher = conversation.NewPublisher(queue, logger)
		jobs = pgJobs
		memWorker = conversation.NewWorker(service, queue, pgJobs, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
			conversation.WithReplyMessenger(messenger),
		)
	case "":
		// Inline processing; webhook replies go out in the TwiML response.
	default:
		logger.Error("unknown QUEUE_BACKEND", "value", cfg.QueueBackend)
		os.Exit(1)
	}

	// HTTP handlers.
	handlerOpts := []conversation.HandlerOption{}
	if publisher != nil && jobs != nil {
		handlerOpts = append(handlerOpts, conversation.WithAsyncProcessing(publisher, jobs))
	}
	conversationHandler := conversation.NewHandler(service, logger, handlerOpts...)

	webhookOpts := []whatsapp.Option{}
	if cfg.TwilioAuthToken != "" && cfg.PublicWebhookURL != "" {
		webhookOpts = append(webhookOpts, whatsapp.WithSignatureVerification(cfg.TwilioAuthToken, cfg.PublicWebhookURL))
	}
	if processed != nil {
		webhookOpts = append(webhookOpts, whatsapp.WithDeduper(processed))
	}
	if publisher != nil {
		webhookOpts = append(webhookOpts, whatsapp.WithQueue(publisher))
	}
	whatsappHandler := whatsapp.NewHandler(service, logger, webhookOpts...)

	voiceGateway := voice.NewGateway(service, callStore, logger)
	adminMessaging := handlers.NewAdminMessagingHandler(messenger, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		WhatsAppWebhook:     whatsappHandler,
		VoiceGateway:        voiceGateway,
		AdminMessaging:      adminMessaging,
		AdminAuthSecret:     cfg.AdminAuthSecret,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		WebhookRatePerMin:   cfg.WebhookRatePerMin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if memWorker != nil {
		memWorker.Start(workerCtx)
		logger.Info("in-process conversation worker started", "workers", cfg.WorkerCount)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if memWorker != nil {
		stopWorker()
		memWorker.Wait()
	}

	logger.Info("server stopped")
}

// setupMetrics builds the process-local Prometheus registry and the
// engine metrics registered against it.
func setupMetrics() (http.Handler, *metrics.EngineMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics := metrics.NewEngineMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), engineMetrics
}

// buildReservationBackend returns the PMS client. An empty base URL
// selects the built-in mock inventory, which is what local development
// runs against.
func buildReservationBackend(cfg *appconfig.Config, logger *logging.Logger) pms.Client {
	if cfg.PMSBaseURL == "" {
		logger.Warn("PMS_BASE_URL not set; using mock reservation backend")
		return pms.NewMockClient()
	}
	logger.Info("using PMS backend", "base_url", cfg.PMSBaseURL)
	return pms.WithRetry(
		pms.NewHTTPClient(cfg.PMSBaseURL, cfg.PMSAPIToken, cfg.PMSTimeout, logger),
		cfg.PMSRetryBackoff,
		logger,
	)
}

// buildMessenger returns the outbound WhatsApp messenger, falling back
// to a log-only sender when Twilio credentials are absent.
func buildMessenger(cfg *appconfig.Config, logger *logging.Logger) conversation.ReplyMessenger {
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFrom != "" {
		return whatsapp.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom, logger)
	}
	logger.Warn("Twilio credentials not set; outbound messages are logged only")
	return whatsapp.NewLoggingSender(logger)
}
