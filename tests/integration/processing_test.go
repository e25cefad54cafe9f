package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Dilshan-H/Slide-Extractor/internal/dedup"
	"github.com/Dilshan-H/Slide-Extractor/internal/domain/entity"
	"github.com/Dilshan-H/Slide-Extractor/internal/fingerprint"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/email"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/export"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/ffmpeg"
	miniostorage "github.com/Dilshan-H/Slide-Extractor/internal/infra/minio"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/postgres"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/rabbitmq"
	"github.com/Dilshan-H/Slide-Extractor/internal/usecase"
	"github.com/Dilshan-H/Slide-Extractor/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type testStack struct {
	pgConnStr     string
	rmqURL        string
	minioEndpoint string
	pool          *pgxpool.Pool
	storage       *miniostorage.Storage
}

func startStack(t *testing.T, ctx context.Context) *testStack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("slides"),
		tcpostgres.WithUsername("slides_user"),
		tcpostgres.WithPassword("slides_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:    minioEndpoint,
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
		UseSSL:      false,
		VideoBucket: "videos",
		SlideBucket: "slides",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &testStack{
		pgConnStr:     pgConnStr,
		rmqURL:        rmqURL,
		minioEndpoint: minioEndpoint,
		pool:          pool,
		storage:       storage,
	}
}

func startWorker(t *testing.T, ctx context.Context, stack *testStack, rmqConn *amqp.Connection) {
	t.Helper()

	log, _ := logger.New("debug")

	pub, err := rabbitmq.NewPublisher(rmqConn, "slides.jobs")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub, "slides.status")
	dlqPub := rabbitmq.NewDLQPublisher(pub, "slides.extraction.dlq")

	repo := postgres.NewJobRepository(stack.pool)
	extractor := ffmpeg.NewExtractor("ffmpeg", "png", log)
	notifier := email.NewSMTPNotifier("localhost", 1025, "noreply@test.local", log)

	engine := fingerprint.Default()
	reducer := dedup.NewReducer(engine, dedup.WithWorkers(2), dedup.WithLogger(log))

	uc := usecase.NewExtractSlidesUseCase(
		repo, stack.storage, extractor, reducer,
		export.NewImageExporter(), export.NewZipArchiver(), export.NewPDFBuilder(),
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractSlidesConfig{
			TempDir:             t.TempDir(),
			MaxRetries:          3,
			SceneThreshold:      0.25,
			SimilarityThreshold: 0.92,
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         stack.rmqURL,
		Queue:       "slides.extraction",
		Exchange:    "slides.jobs",
		DLQ:         "slides.extraction.dlq",
		StatusQueue: "slides.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	t.Cleanup(consumerCancel)
	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)
}

func TestExtractSlidesEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testVideoPath := filepath.Join("..", "testdata", "lecture.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/lecture.mp4 - generate it with: " +
			"ffmpeg -f lavfi -i testsrc=duration=4:size=320x240:rate=1 -c:v libx264 -pix_fmt yuv420p tests/testdata/lecture.mp4")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stack := startStack(t, ctx)

	minioClient, err := miniogo.New(stack.minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	videoKey := "testuser/lecture.mp4"
	_, err = minioClient.FPutObject(ctx, "videos", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	rmqConn, err := amqp.Dial(stack.rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	startWorker(t, ctx, stack, rmqConn)

	// Publish extraction message
	jobID := uuid.New()
	videoInfo, _ := os.Stat(testVideoPath)
	extractionMsg := entity.SlideExtractionMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  videoInfo.Size(),
		UserEmail: "lecturer@test.local",
	}
	msgBody, err := json.Marshal(extractionMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"slides.jobs",
		"slides.extraction",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for the terminal status on slides.status; skip progress updates.
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("slides.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.SlideStatusMessage
	deadline := time.After(2 * time.Minute)
waitTerminal:
	for {
		select {
		case delivery := <-statusMsgs:
			require.NoError(t, json.Unmarshal(delivery.Body, &statusMsg))
			if statusMsg.Status != entity.JobStatusProcessing {
				break waitTerminal
			}
		case <-deadline:
			t.Fatal("timeout waiting for terminal status message")
		}
	}

	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.Greater(t, statusMsg.SlideCount, 0)
	assert.GreaterOrEqual(t, statusMsg.CandidateCount, statusMsg.SlideCount)
	assert.NotEmpty(t, statusMsg.SlidesKey)
	assert.NotEmpty(t, statusMsg.PDFKey)

	// Verify the ZIP artifact and its contents
	zipObj, err := minioClient.GetObject(ctx, "slides", statusMsg.SlidesKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)

	tmpZip := filepath.Join(t.TempDir(), "slides.zip")
	tmpFile, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = tmpFile.ReadFrom(zipObj)
	require.NoError(t, err)
	tmpFile.Close()

	zipReader, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zipReader.Close()

	pngCount := 0
	for _, f := range zipReader.File {
		if strings.HasSuffix(f.Name, ".png") {
			pngCount++
		}
	}
	assert.Equal(t, statusMsg.SlideCount, pngCount, "ZIP should contain one PNG per kept slide")

	// Verify the PDF artifact header
	pdfObj, err := minioClient.GetObject(ctx, "slides", statusMsg.PDFKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	header := make([]byte, 4)
	_, err = pdfObj.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))

	// Verify job record in database
	var dbStatus string
	var dbSlideCount int
	err = stack.pool.QueryRow(ctx,
		"SELECT status, slide_count FROM slide_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbSlideCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, pngCount, dbSlideCount)

	t.Logf("Test passed: %d slides kept of %d candidates, ZIP at %s",
		statusMsg.SlideCount, statusMsg.CandidateCount, statusMsg.SlidesKey)
}

func TestExtractSlidesMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stack := startStack(t, ctx)

	rmqConn, err := amqp.Dial(stack.rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	startWorker(t, ctx, stack, rmqConn)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"slides.jobs",
		"slides.extraction",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("slides.extraction.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	t.Log("Test passed: malformed message sent to DLQ")
}
