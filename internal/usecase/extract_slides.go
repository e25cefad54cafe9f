package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Dilshan-H/Slide-Extractor/internal/dedup"
	"github.com/Dilshan-H/Slide-Extractor/internal/domain/entity"
	"github.com/Dilshan-H/Slide-Extractor/internal/domain/port"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/metrics"
)

type ExtractSlidesUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	extractor port.SceneExtractor
	dedup     port.SlideDeduplicator
	images    port.ImageExporter
	archiver  port.Archiver
	pdf       port.PDFBuilder
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	cfg       ExtractSlidesConfig
}

type ExtractSlidesConfig struct {
	TempDir             string
	MaxRetries          int
	SceneThreshold      float64
	SimilarityThreshold float64
}

func NewExtractSlidesUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	extractor port.SceneExtractor,
	deduplicator port.SlideDeduplicator,
	images port.ImageExporter,
	archiver port.Archiver,
	pdf port.PDFBuilder,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExtractSlidesConfig,
) *ExtractSlidesUseCase {
	return &ExtractSlidesUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		dedup:     deduplicator,
		images:    images,
		archiver:  archiver,
		pdf:       pdf,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *ExtractSlidesUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractSlidesUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SlideExtractionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	sceneThreshold := uc.cfg.SceneThreshold
	if msg.SceneThreshold != nil {
		sceneThreshold = *msg.SceneThreshold
	}
	similarityThreshold := uc.cfg.SimilarityThreshold
	if msg.SimilarityThreshold != nil {
		similarityThreshold = *msg.SimilarityThreshold
	}

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, sceneThreshold, similarityThreshold, uc.cfg.MaxRetries)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	// Bad thresholds can never succeed; refuse before any processing.
	if err := dedup.ValidateThreshold(similarityThreshold); err != nil {
		log.Error("invalid similarity threshold", zap.Error(err))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "invalid_configuration: "+err.Error())
	}
	if sceneThreshold < 0.0 || sceneThreshold > 1.0 {
		log.Error("invalid scene threshold", zap.Float64("scene_threshold", sceneThreshold))
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg,
			fmt.Sprintf("invalid_configuration: scene threshold must be within [0.0, 1.0], got %v", sceneThreshold))
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.extractionPipeline(ctx, job, msg, rawMsg, sceneThreshold, similarityThreshold, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobStageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ExtractSlidesUseCase) extractionPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.SlideExtractionMessage,
	rawMsg []byte,
	sceneThreshold, similarityThreshold float64,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.mp4")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobStageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Pass 1: FFmpeg scene detection
	uc.publishProgress(ctx, job, "pass 1/2: scene detection", log)
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "extract_scenes")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		spanEx.End()
		return fmt.Errorf("create frames dir: %w", err)
	}
	extraction, err := uc.extractor.ExtractScenes(ctxEx, videoPath, framesDir, sceneThreshold)
	if err != nil {
		spanEx.End()
		if errors.Is(err, port.ErrNoFrames) {
			log.Warn("scene detection produced no frames", zap.Float64("scene_threshold", sceneThreshold))
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg,
				"no scene changes detected; try lowering the scene detection threshold")
		}
		log.Error("scene extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "extract_scenes: "+err.Error(), log)
	}
	spanEx.End()
	metrics.JobStageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.CandidateFramesTotal.Add(float64(extraction.FrameCount))

	// Pass 2: perceptual deduplication
	uc.publishProgress(ctx, job, fmt.Sprintf("pass 2/2: deduplicating %d frames", extraction.FrameCount), log)
	ddStart := time.Now()
	ctxDd, spanDd := tracer.Start(ctx, "deduplicate")
	result, err := uc.dedup.Reduce(ctxDd, extraction.FramePaths, similarityThreshold)
	if err != nil {
		spanDd.End()
		if errors.Is(err, dedup.ErrInvalidThreshold) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "invalid_configuration: "+err.Error())
		}
		log.Error("deduplication failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "deduplicate: "+err.Error(), log)
	}
	spanDd.End()
	metrics.JobStageDuration.WithLabelValues("dedup").Observe(time.Since(ddStart).Seconds())
	metrics.SlidesKeptTotal.Add(float64(len(result.Kept)))
	metrics.UnreadableFramesTotal.Add(float64(result.SkippedCount))

	if len(result.Kept) == 0 {
		log.Warn("no readable slides after deduplication",
			zap.Int("candidates", result.CandidateCount),
			zap.Int("skipped", result.SkippedCount),
		)
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg,
			"no readable slides detected; try lowering the thresholds or re-encoding the video")
	}

	// Export: renamed images, ZIP, PDF
	expStart := time.Now()
	ctxExp, spanExp := tracer.Start(ctx, "export")
	slidesDir := filepath.Join(workDir, "slides")
	exported, err := uc.images.ExportImages(ctxExp, result.Kept, slidesDir)
	if err != nil {
		spanExp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "export_images: "+err.Error(), log)
	}
	zipPath := filepath.Join(workDir, "slides.zip")
	if err := uc.archiver.CreateArchive(ctxExp, exported, zipPath); err != nil {
		spanExp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_zip: "+err.Error(), log)
	}
	pdfPath := filepath.Join(workDir, "slides.pdf")
	if err := uc.pdf.BuildPDF(ctxExp, exported, pdfPath); err != nil {
		spanExp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "build_pdf: "+err.Error(), log)
	}
	spanExp.End()
	metrics.JobStageDuration.WithLabelValues("export").Observe(time.Since(expStart).Seconds())

	// Upload artifacts
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_artifacts")
	slidesKey := fmt.Sprintf("%s/slides_%s.zip", msg.UserID, job.ID.String())
	pdfKey := fmt.Sprintf("%s/slides_%s.pdf", msg.UserID, job.ID.String())
	if err := uc.uploadFile(ctxUp, zipPath, slidesKey, "application/zip"); err != nil {
		spanUp.End()
		log.Error("zip upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_zip: "+err.Error(), log)
	}
	if err := uc.uploadFile(ctxUp, pdfPath, pdfKey, "application/pdf"); err != nil {
		spanUp.End()
		log.Error("pdf upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_pdf: "+err.Error(), log)
	}
	spanUp.End()
	metrics.JobStageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Mark completed
	job.MarkCompleted(slidesKey, pdfKey, result.CandidateCount, len(result.Kept), result.SkippedCount, extraction.VideoDuration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, "", log)

	log.Info("job completed successfully",
		zap.Int("candidate_count", result.CandidateCount),
		zap.Int("slide_count", len(result.Kept)),
		zap.Int("skipped_frames", result.SkippedCount),
		zap.Float64("duration_secs", extraction.VideoDuration),
		zap.String("slides_key", slidesKey),
		zap.String("pdf_key", pdfKey),
	)

	return nil
}

func (uc *ExtractSlidesUseCase) uploadFile(ctx context.Context, path, objectKey, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	return uc.storage.UploadArtifact(ctx, objectKey, f, stat.Size(), contentType)
}

func (uc *ExtractSlidesUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SlideExtractionMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, "", log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExtractSlidesUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.SlideExtractionMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, "", uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

// publishProgress emits a PROCESSING status with a human-readable stage so
// downstream consumers can surface pass-by-pass progress.
func (uc *ExtractSlidesUseCase) publishProgress(ctx context.Context, job *entity.Job, stage string, log *zap.Logger) {
	progress := *job
	progress.Status = entity.JobStatusProcessing
	uc.publishStatus(ctx, &progress, stage, log)
}

func (uc *ExtractSlidesUseCase) publishStatus(ctx context.Context, job *entity.Job, stage string, log *zap.Logger) {
	statusMsg := entity.SlideStatusMessage{
		JobID:          job.ID,
		UserID:         job.UserID,
		Status:         job.Status,
		Stage:          stage,
		VideoKey:       job.VideoKey,
		SlidesKey:      job.SlidesKey,
		PDFKey:         job.PDFKey,
		CandidateCount: job.CandidateCount,
		SlideCount:     job.SlideCount,
		SkippedFrames:  job.SkippedFrames,
		Duration:       job.VideoDuration,
		ErrorMessage:   job.ErrorMessage,
		Attempt:        job.Attempt,
		MaxAttempts:    job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
