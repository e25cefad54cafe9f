package port

import (
	"context"
	"errors"
)

// ErrNoFrames signals that scene detection ran successfully but produced no
// candidate frames. It is not retryable; the user should lower the scene
// threshold.
var ErrNoFrames = errors.New("scene detection produced no frames")

type SceneExtractionResult struct {
	FramePaths    []string
	FrameCount    int
	VideoDuration float64
}

// SceneExtractor produces one candidate frame per detected scene change, in
// playback order.
type SceneExtractor interface {
	ExtractScenes(ctx context.Context, videoPath string, outputDir string, sceneThreshold float64) (*SceneExtractionResult, error)
}
