// slidectl extracts slide images from a screen-recorded lecture video on the
// local machine, without the queue/storage plumbing of the worker service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/Dilshan-H/Slide-Extractor/internal/dedup"
	"github.com/Dilshan-H/Slide-Extractor/internal/domain/port"
	"github.com/Dilshan-H/Slide-Extractor/internal/fingerprint"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/export"
	"github.com/Dilshan-H/Slide-Extractor/internal/infra/ffmpeg"
)

type args struct {
	Input      string  `arg:"required,-i,--input" help:"path to the lecture video"`
	OutDir     string  `arg:"-o,--out" help:"directory for exported slide images (default: <video>_slides)"`
	Scene      float64 `arg:"-s,--scene" default:"0.25" help:"scene detection sensitivity, 0.0-1.0 (lower catches more changes)"`
	Similarity float64 `arg:"--similarity" default:"0.92" help:"duplicate removal strictness, 0.0-1.0 (higher keeps more frames)"`
	PDF        string  `arg:"--pdf" help:"also write a PDF of the kept slides to this path"`
	Workers    int     `arg:"-w,--workers" default:"4" help:"parallel fingerprinting workers"`
	FFmpeg     string  `arg:"--ffmpeg" default:"ffmpeg" help:"ffmpeg binary to invoke"`
	KeepTemp   bool    `arg:"--keep-temp" help:"keep the raw candidate frames instead of deleting them"`
	Verbose    bool    `arg:"-v,--verbose" help:"debug logging"`
}

func (args) Version() string { return "slidectl v1.1.0" }

type progressPrinter struct{}

func (progressPrinter) Started(candidates int) {
	fmt.Printf("pass 2/2: deduplicating %d frames ...\n", candidates)
}

func (progressPrinter) Finished(kept, skipped int) {
	if skipped > 0 {
		fmt.Printf("done: %d unique slide(s), %d unreadable frame(s) skipped\n", kept, skipped)
		return
	}
	fmt.Printf("done: %d unique slide(s)\n", kept)
}

func main() {
	var a args
	p := arg.MustParse(&a)

	if err := dedup.ValidateThreshold(a.Similarity); err != nil {
		p.Fail(err.Error())
	}
	if a.Scene < 0.0 || a.Scene > 1.0 {
		p.Fail("scene threshold must be within [0.0, 1.0]")
	}
	if _, err := os.Stat(a.Input); err != nil {
		p.Fail("cannot read input video: " + err.Error())
	}

	logCfg := zap.NewDevelopmentConfig()
	if !a.Verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := logCfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, a, log); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a args, log *zap.Logger) error {
	outDir := a.OutDir
	if outDir == "" {
		stem := strings.TrimSuffix(filepath.Base(a.Input), filepath.Ext(a.Input))
		outDir = filepath.Join(filepath.Dir(a.Input), stem+"_slides")
	}

	tmpDir, err := os.MkdirTemp("", "slide-extractor-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	if !a.KeepTemp {
		defer os.RemoveAll(tmpDir)
	}

	fmt.Printf("pass 1/2: ffmpeg scene detection (threshold %.2f) ...\n", a.Scene)
	extractor := ffmpeg.NewExtractor(a.FFmpeg, "png", log)
	extraction, err := extractor.ExtractScenes(ctx, a.Input, tmpDir, a.Scene)
	if err != nil {
		if errors.Is(err, port.ErrNoFrames) {
			return fmt.Errorf("%w; try lowering the scene detection threshold", err)
		}
		return err
	}

	engine := fingerprint.Default()
	reducer := dedup.NewReducer(engine,
		dedup.WithWorkers(a.Workers),
		dedup.WithObserver(progressPrinter{}),
		dedup.WithLogger(log),
	)
	result, err := reducer.Reduce(ctx, extraction.FramePaths, a.Similarity)
	if err != nil {
		return err
	}
	if len(result.Kept) == 0 {
		return errors.New("no readable slides detected; try lowering the thresholds")
	}

	exported, err := export.NewImageExporter().ExportImages(ctx, result.Kept, outDir)
	if err != nil {
		return err
	}
	fmt.Printf("%d slide image(s) saved to %s\n", len(exported), outDir)

	if a.PDF != "" {
		if err := export.NewPDFBuilder().BuildPDF(ctx, exported, a.PDF); err != nil {
			return err
		}
		fmt.Printf("PDF saved to %s\n", a.PDF)
	}

	if a.KeepTemp {
		fmt.Printf("raw candidate frames kept in %s\n", tmpDir)
	}
	return nil
}
