package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dilshan-H/Slide-Extractor/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO slide_jobs (
			id, user_id, video_key, slides_key, pdf_key, status,
			candidate_count, slide_count, skipped_frames,
			file_size, video_duration, scene_threshold, similarity_threshold,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.SlidesKey, job.PDFKey, string(job.Status),
		job.CandidateCount, job.SlideCount, job.SkippedFrames,
		job.FileSize, job.VideoDuration, job.SceneThreshold, job.SimilarityThreshold,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE slide_jobs SET
			status=$2, slides_key=$3, pdf_key=$4,
			candidate_count=$5, slide_count=$6, skipped_frames=$7,
			video_duration=$8, attempt=$9, error_message=$10,
			updated_at=$11, completed_at=$12
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.SlidesKey, job.PDFKey,
		job.CandidateCount, job.SlideCount, job.SkippedFrames,
		job.VideoDuration, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, video_key, slides_key, pdf_key, status,
			candidate_count, slide_count, skipped_frames,
			file_size, video_duration, scene_threshold, similarity_threshold,
			attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM slide_jobs WHERE id=$1`

	job := &entity.Job{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.SlidesKey, &job.PDFKey, &status,
		&job.CandidateCount, &job.SlideCount, &job.SkippedFrames,
		&job.FileSize, &job.VideoDuration, &job.SceneThreshold, &job.SimilarityThreshold,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
