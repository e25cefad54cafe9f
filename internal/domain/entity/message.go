package entity

import "github.com/google/uuid"

// SlideExtractionMessage is the inbound message from the slides.extraction
// queue. Thresholds are optional; the worker falls back to its configured
// defaults when they are absent.
type SlideExtractionMessage struct {
	JobID               uuid.UUID `json:"job_id"`
	UserID              string    `json:"user_id"`
	VideoKey            string    `json:"video_key"`
	FileSize            int64     `json:"file_size"`
	UserEmail           string    `json:"user_email"`
	SceneThreshold      *float64  `json:"scene_threshold,omitempty"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
}

// SlideStatusMessage is the outbound message published to the slides.status
// queue. Progress updates carry Status PROCESSING plus a Stage description;
// terminal updates carry the result counts and artifact keys.
type SlideStatusMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	UserID         string    `json:"user_id"`
	Status         JobStatus `json:"status"`
	Stage          string    `json:"stage,omitempty"`
	VideoKey       string    `json:"video_key"`
	SlidesKey      string    `json:"slides_key,omitempty"`
	PDFKey         string    `json:"pdf_key,omitempty"`
	CandidateCount int       `json:"candidate_count,omitempty"`
	SlideCount     int       `json:"slide_count,omitempty"`
	SkippedFrames  int       `json:"skipped_frames,omitempty"`
	Duration       float64   `json:"duration_seconds,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Attempt        int       `json:"attempt"`
	MaxAttempts    int       `json:"max_attempts"`
}
