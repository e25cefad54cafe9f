package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"github.com/Dilshan-H/Slide-Extractor/internal/domain/port"
)

// Extractor runs FFmpeg scene-change detection over a video and dumps one
// numbered frame per detected change into the output directory.
type Extractor struct {
	ffmpegPath string
	format     string
	logger     *zap.Logger
}

func NewExtractor(ffmpegPath, format string, logger *zap.Logger) *Extractor {
	return &Extractor{ffmpegPath: ffmpegPath, format: format, logger: logger}
}

func (e *Extractor) ExtractScenes(ctx context.Context, videoPath string, outputDir string, sceneThreshold float64) (*port.SceneExtractionResult, error) {
	duration, err := e.probeDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not probe video duration", zap.Error(err))
	}

	// Frame 0 is always selected so a video with no scene changes still
	// yields its opening slide. setpts renumbers the surviving frames.
	vf := fmt.Sprintf(`select=eq(n\,0)+gt(scene\,%.4f),setpts=N/FRAME_RATE/TB`, sceneThreshold)
	framePattern := filepath.Join(outputDir, "slide_%06d."+e.format)
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-vf", vf,
		"-vsync", "vfr",
		"-q:v", "2",
		"-y",
		framePattern,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "slide_*."+e.format))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	// %06d zero-padding makes lexicographic order the playback order.
	sort.Strings(frames)
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w (scene threshold %.2f)", port.ErrNoFrames, sceneThreshold)
	}

	e.logger.Info("scene frames extracted",
		zap.Int("count", len(frames)),
		zap.Float64("scene_threshold", sceneThreshold),
		zap.Float64("video_duration", duration),
	)

	return &port.SceneExtractionResult{
		FramePaths:    frames,
		FrameCount:    len(frames),
		VideoDuration: duration,
	}, nil
}

func (e *Extractor) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	data, err := ffprobe.ProbeURL(probeCtx, videoPath)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return data.Format.Duration().Seconds(), nil
}
