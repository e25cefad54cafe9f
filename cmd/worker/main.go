package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Dilshan-H/Slide-Extractor/internal/dedup"
	"github.com/Dilshan-H/Slide-Extractor/internal/fingerprint"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/config"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/email"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/export"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/ffmpeg"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/metrics"
	miniostorage "github.com/Dilshan-H/Slide-Extractor/internal/infra/minio"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/postgres"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/rabbitmq"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/tracing"
	"github.com/Dilshan-H/Slide-Extractor/internal/usecase"
	"github.com/Dilshan-H/Slide-Extractor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting slide-extraction-service")

	// Refuse to start on configuration that would fail every job.
	fatalOnErr(dedup.ValidateThreshold(cfg.SimilarityThreshold), "validate similarity threshold")
	engine, err := fingerprint.NewEngine(cfg.HashGridSize)
	fatalOnErr(err, "init fingerprint engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Migrations
	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    cfg.MinIOEndpoint,
		AccessKey:   cfg.MinIOAccessKey,
		SecretKey:   cfg.MinIOSecretKey,
		UseSSL:      cfg.MinIOUseSSL,
		VideoBucket: cfg.MinIOVideoBucket,
		SlideBucket: cfg.MinIOSlideBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusQueue)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	extractor := ffmpeg.NewExtractor(cfg.FFmpegPath, cfg.FrameFormat, log)
	reducer := dedup.NewReducer(engine,
		dedup.WithWorkers(cfg.DedupWorkers),
		dedup.WithLogger(log),
	)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewExtractSlidesUseCase(
		repo, storage, extractor, reducer,
		export.NewImageExporter(), export.NewZipArchiver(), export.NewPDFBuilder(),
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractSlidesConfig{
			TempDir:             cfg.TempDir,
			MaxRetries:          cfg.MaxRetries,
			SceneThreshold:      cfg.SceneThreshold,
			SimilarityThreshold: cfg.SimilarityThreshold,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQExtractionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("slide-extraction-service started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("slide-extraction-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
