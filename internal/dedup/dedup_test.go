package dedup

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dilshan-H/Slide-Extractor/internal/fingerprint"
)

// rampImage renders a horizontal luminance ramp; ascending and descending
// ramps hash to near-opposite fingerprints.
func rampImage(descending bool) image.Image {
	const w, h = 340, 160
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if descending {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// mapLoader serves candidates from memory; missing entries behave like
// unreadable frames.
func mapLoader(frames map[string]image.Image) Loader {
	return func(path string) (image.Image, error) {
		img, ok := frames[path]
		if !ok {
			return nil, &fingerprint.DecodeError{Path: path, Err: fmt.Errorf("unreadable test frame")}
		}
		return img, nil
	}
}

func newTestReducer(frames map[string]image.Image, opts ...Option) *Reducer {
	opts = append([]Option{WithLoader(mapLoader(frames))}, opts...)
	return NewReducer(fingerprint.Default(), opts...)
}

type recordingObserver struct {
	started  []int
	finished [][2]int
}

func (o *recordingObserver) Started(candidates int) { o.started = append(o.started, candidates) }
func (o *recordingObserver) Finished(kept, skipped int) {
	o.finished = append(o.finished, [2]int{kept, skipped})
}

func TestReduceEmptyInput(t *testing.T) {
	r := newTestReducer(nil)

	result, err := r.Reduce(context.Background(), nil, 0.9)
	require.NoError(t, err)
	assert.Empty(t, result.Kept)
	assert.Zero(t, result.CandidateCount)
	assert.Zero(t, result.SkippedCount)
}

func TestReduceSingleCandidate(t *testing.T) {
	r := newTestReducer(map[string]image.Image{"f1": rampImage(true)})

	result, err := r.Reduce(context.Background(), []string{"f1"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, result.Kept)
}

func TestReduceAllUnreadable(t *testing.T) {
	obs := &recordingObserver{}
	r := newTestReducer(nil, WithObserver(obs))

	result, err := r.Reduce(context.Background(), []string{"f1", "f2", "f3"}, 0.9)
	require.NoError(t, err)
	assert.Empty(t, result.Kept)
	assert.Equal(t, 3, result.CandidateCount)
	assert.Equal(t, 3, result.SkippedCount)
	assert.Equal(t, [][2]int{{0, 3}}, obs.finished)
}

func TestReduceCollapsesExactDuplicates(t *testing.T) {
	frames := map[string]image.Image{
		"f1": rampImage(true), "f2": rampImage(true), "f3": rampImage(true),
		"f4": rampImage(false), "f5": rampImage(false),
	}
	r := newTestReducer(frames)

	result, err := r.Reduce(context.Background(), []string{"f1", "f2", "f3", "f4", "f5"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f4"}, result.Kept)
	assert.Equal(t, 5, result.CandidateCount)
	assert.Zero(t, result.SkippedCount)
}

func TestReduceSkipsUnreadableInterspersed(t *testing.T) {
	frames := map[string]image.Image{
		"f1": rampImage(true),
		"f3": rampImage(true),
		"f5": rampImage(false),
	}
	r := newTestReducer(frames)

	result, err := r.Reduce(context.Background(), []string{"f1", "f2", "f3", "f4", "f5"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f5"}, result.Kept)
	assert.Equal(t, 2, result.SkippedCount)
}

func TestReduceFirstReadableFrameAlwaysKept(t *testing.T) {
	frames := map[string]image.Image{"f2": rampImage(true), "f3": rampImage(true)}
	r := newTestReducer(frames)

	result, err := r.Reduce(context.Background(), []string{"f1", "f2", "f3"}, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, result.Kept)
	assert.Equal(t, "f2", result.Kept[0])
}

func TestReduceKeepsInputOrder(t *testing.T) {
	frames := map[string]image.Image{
		"f1": rampImage(true), "f2": rampImage(false),
		"f3": rampImage(true), "f4": rampImage(false),
	}
	r := newTestReducer(frames)
	candidates := []string{"f1", "f2", "f3", "f4"}

	result, err := r.Reduce(context.Background(), candidates, 1.0)
	require.NoError(t, err)
	assertSubsequence(t, candidates, result.Kept)
	assert.Equal(t, candidates, result.Kept)
}

func TestReduceThresholdMonotonic(t *testing.T) {
	frames := map[string]image.Image{
		"f1": rampImage(true), "f2": rampImage(true),
		"f3": rampImage(false), "f4": rampImage(true), "f5": rampImage(false),
	}
	candidates := []string{"f1", "f2", "f3", "f4", "f5"}
	r := newTestReducer(frames)

	prev := 0
	for _, threshold := range []float64{0.0, 0.25, 0.5, 0.75, 0.9, 1.0} {
		result, err := r.Reduce(context.Background(), candidates, threshold)
		require.NoError(t, err)
		assertSubsequence(t, candidates, result.Kept)
		assert.GreaterOrEqual(t, len(result.Kept), prev,
			"threshold %v retained fewer frames than a lower threshold", threshold)
		prev = len(result.Kept)
	}
}

func TestReduceInvalidThreshold(t *testing.T) {
	obs := &recordingObserver{}
	r := newTestReducer(map[string]image.Image{"f1": rampImage(true)}, WithObserver(obs))

	for _, threshold := range []float64{-0.1, 1.01, 2.0} {
		_, err := r.Reduce(context.Background(), []string{"f1"}, threshold)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "threshold %v", threshold)
	}
	assert.Empty(t, obs.started, "invalid configuration must be rejected before any work")
}

func TestReduceWorkerCountDoesNotChangeResult(t *testing.T) {
	frames := map[string]image.Image{}
	var candidates []string
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("f%02d", i)
		frames[id] = rampImage(i%3 == 0)
		candidates = append(candidates, id)
	}

	sequential := newTestReducer(frames, WithWorkers(1))
	parallel := newTestReducer(frames, WithWorkers(8))

	seqResult, err := sequential.Reduce(context.Background(), candidates, 0.92)
	require.NoError(t, err)
	parResult, err := parallel.Reduce(context.Background(), candidates, 0.92)
	require.NoError(t, err)

	assert.Equal(t, seqResult.Kept, parResult.Kept)
}

func TestReduceObserverCheckpoints(t *testing.T) {
	obs := &recordingObserver{}
	frames := map[string]image.Image{
		"f1": rampImage(true), "f2": rampImage(true), "f3": rampImage(false),
	}
	r := newTestReducer(frames, WithObserver(obs))

	_, err := r.Reduce(context.Background(), []string{"f1", "f2", "f3"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, obs.started)
	assert.Equal(t, [][2]int{{2, 0}}, obs.finished)
}

func TestHammingCutoff(t *testing.T) {
	tests := []struct {
		threshold float64
		bitLen    int
		want      int
	}{
		{1.0, 256, 0},
		{0.0, 256, 256},
		{0.92, 256, 20},
		{0.9, 256, 25},
		{0.5, 256, 128},
		{1.0, 64, 0},
	}
	for _, tt := range tests {
		got := hammingCutoff(tt.threshold, tt.bitLen)
		assert.Equal(t, tt.want, got, "threshold %v over %d bits", tt.threshold, tt.bitLen)
	}
}

// Distance exactly equal to the cutoff counts as a duplicate; retention
// requires strictly greater distance.
func TestSelectDistinctCutoffTieBreak(t *testing.T) {
	base := make(fingerprint.Fingerprint, 4)
	near := make(fingerprint.Fingerprint, 4)
	near[0] = 0xFFFFF00000000000 // 20 bits set
	require.Equal(t, 20, fingerprint.Distance(base, near))

	ids := []string{"f1", "f2"}
	fps := []fingerprint.Fingerprint{base, near}

	assert.Equal(t, []string{"f1"}, selectDistinct(ids, fps, 20))
	assert.Equal(t, []string{"f1", "f2"}, selectDistinct(ids, fps, 19))
}

// The comparison baseline is the last retained fingerprint, not the previous
// candidate, so gradual drift below the cutoff per step still collapses.
func TestSelectDistinctComparesAgainstLastKept(t *testing.T) {
	step := func(bits int) fingerprint.Fingerprint {
		fp := make(fingerprint.Fingerprint, 4)
		for i := 0; i < bits; i++ {
			fp[i/64] |= 1 << (63 - uint(i%64))
		}
		return fp
	}

	ids := []string{"f1", "f2", "f3", "f4"}
	fps := []fingerprint.Fingerprint{step(0), step(10), step(20), step(30)}

	// Each step is 10 bits from its predecessor but f4 is 30 bits from f1.
	kept := selectDistinct(ids, fps, 25)
	assert.Equal(t, []string{"f1", "f4"}, kept)
}

func assertSubsequence(t *testing.T, input, kept []string) {
	t.Helper()
	i := 0
	for _, id := range kept {
		for i < len(input) && input[i] != id {
			i++
		}
		if i == len(input) {
			t.Fatalf("kept sequence %v is not a subsequence of input %v", kept, input)
		}
		i++
	}
}
