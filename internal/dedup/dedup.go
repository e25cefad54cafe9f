// Package dedup collapses an ordered sequence of candidate frames into the
// subsequence of visually distinct slides. Each candidate is fingerprinted and
// compared against the most recently retained frame; candidates within the
// similarity cutoff are dropped. Comparing against the last retained frame
// rather than the immediate predecessor keeps slow visual drift from
// accumulating into a missed slide change.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/Dilshan-H/Slide-Extractor/internal/fingerprint"
)

// ErrInvalidThreshold is returned when the similarity threshold falls outside
// [0.0, 1.0].
var ErrInvalidThreshold = errors.New("similarity threshold must be within [0.0, 1.0]")

// Loader decodes a candidate frame by path. The default loads from disk via
// fingerprint.DecodeFile.
type Loader func(path string) (image.Image, error)

// Observer receives progress checkpoints of a reduction run.
type Observer interface {
	// Started is called once before any fingerprinting, with the number of
	// candidate frames.
	Started(candidates int)
	// Finished is called once after the pass, with the number of retained
	// slides and the number of unreadable frames that were skipped.
	Finished(kept, skipped int)
}

// Result is the outcome of one reduction run. Kept preserves the input order
// and is a strict subsequence of the candidates.
type Result struct {
	Kept           []string
	CandidateCount int
	SkippedCount   int
}

// Reducer deduplicates candidate sequences. A single Reducer is reusable
// across runs; all run state is local to Reduce.
type Reducer struct {
	engine   *fingerprint.Engine
	workers  int
	loader   Loader
	observer Observer
	logger   *zap.Logger
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithWorkers sets the number of goroutines fingerprinting candidates. The
// retain/discard decision stage is always sequential, so the result does not
// depend on the worker count.
func WithWorkers(n int) Option {
	return func(r *Reducer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLoader replaces the image loader.
func WithLoader(l Loader) Option {
	return func(r *Reducer) { r.loader = l }
}

// WithObserver attaches a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Reducer) { r.observer = o }
}

// WithLogger attaches a logger for per-frame skip diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reducer) { r.logger = log }
}

// NewReducer returns a Reducer over the given fingerprint engine.
func NewReducer(engine *fingerprint.Engine, opts ...Option) *Reducer {
	r := &Reducer{
		engine:  engine,
		workers: 1,
		loader:  fingerprint.DecodeFile,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateThreshold reports whether threshold is a usable similarity value.
// Exposed so callers can reject bad configuration before starting a run.
func ValidateThreshold(threshold float64) error {
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// hammingCutoff converts the similarity threshold into the maximum Hamming
// distance at which two fingerprints still count as duplicates. The truncating
// conversion and the strict > retention test match the behaviour the rest of
// the product was tuned against; do not swap them for rounding.
func hammingCutoff(threshold float64, bitLen int) int {
	return int((1.0 - threshold) * float64(bitLen))
}

// Reduce walks the candidates once, in order, and returns the identifiers of
// the frames to keep. threshold is in [0.0, 1.0]; higher keeps more frames.
// Unreadable candidates are logged, counted and skipped without aborting the
// run. An empty candidate list yields an empty result.
func (r *Reducer) Reduce(ctx context.Context, candidates []string, threshold float64) (*Result, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	maxDist := hammingCutoff(threshold, r.engine.BitLen())

	if r.observer != nil {
		r.observer.Started(len(candidates))
	}
	r.logger.Info("deduplication started",
		zap.Int("candidates", len(candidates)),
		zap.Float64("similarity_threshold", threshold),
		zap.Int("hamming_cutoff", maxDist),
	)

	fps, skipped, err := r.fingerprintAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	kept := selectDistinct(candidates, fps, maxDist)

	if r.observer != nil {
		r.observer.Finished(len(kept), skipped)
	}
	r.logger.Info("deduplication finished",
		zap.Int("kept", len(kept)),
		zap.Int("skipped_unreadable", skipped),
	)

	return &Result{
		Kept:           kept,
		CandidateCount: len(candidates),
		SkippedCount:   skipped,
	}, nil
}

// fingerprintAll computes fingerprints for all candidates, in parallel when
// configured. The returned slice is indexed like candidates; a nil entry marks
// an unreadable frame.
func (r *Reducer) fingerprintAll(ctx context.Context, candidates []string) ([]fingerprint.Fingerprint, int, error) {
	fps := make([]fingerprint.Fingerprint, len(candidates))
	var (
		mu      sync.Mutex
		skipped int
	)

	indices := make(chan int)
	var wg sync.WaitGroup
	workers := r.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				img, err := r.loader(candidates[i])
				if err != nil {
					r.logger.Warn("skipping unreadable frame",
						zap.String("path", candidates[i]),
						zap.Error(err),
					)
					mu.Lock()
					skipped++
					mu.Unlock()
					continue
				}
				fps[i] = r.engine.Fingerprint(img)
			}
		}()
	}

feed:
	for i := range candidates {
		select {
		case indices <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indices)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return fps, skipped, nil
}

// selectDistinct performs the sequential retain/discard pass. ids and fps are
// parallel slices; nil fingerprints (unreadable frames) are neither retained
// nor compared. A frame is retained when there is no previously retained
// fingerprint or its distance to the last retained one strictly exceeds
// maxDist.
func selectDistinct(ids []string, fps []fingerprint.Fingerprint, maxDist int) []string {
	var kept []string
	var lastKept fingerprint.Fingerprint
	for i, fp := range fps {
		if fp == nil {
			continue
		}
		if lastKept == nil || fingerprint.Distance(fp, lastKept) > maxDist {
			kept = append(kept, ids[i])
			lastKept = fp
		}
	}
	return kept
}
