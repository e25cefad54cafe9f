package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

type Job struct {
	ID                  uuid.UUID
	UserID              string
	VideoKey            string
	SlidesKey           string
	PDFKey              string
	Status              JobStatus
	CandidateCount      int
	SlideCount          int
	SkippedFrames       int
	FileSize            int64
	VideoDuration       float64
	SceneThreshold      float64
	SimilarityThreshold float64
	Attempt             int
	MaxAttempts         int
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

func NewJob(userID, videoKey string, fileSize int64, sceneThreshold, similarityThreshold float64, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:                  uuid.New(),
		UserID:              userID,
		VideoKey:            videoKey,
		FileSize:            fileSize,
		SceneThreshold:      sceneThreshold,
		SimilarityThreshold: similarityThreshold,
		Status:              JobStatusPending,
		Attempt:             0,
		MaxAttempts:         maxAttempts,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(slidesKey, pdfKey string, candidates, slides, skipped int, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.SlidesKey = slidesKey
	j.PDFKey = pdfKey
	j.CandidateCount = candidates
	j.SlideCount = slides
	j.SkippedFrames = skipped
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
