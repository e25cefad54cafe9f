package port

import (
	"context"

	"github.com/Dilshan-H/Slide-Extractor/internal/dedup"
)

// SlideDeduplicator collapses an ordered candidate sequence into the distinct
// slides, keeping input order.
type SlideDeduplicator interface {
	Reduce(ctx context.Context, candidates []string, similarityThreshold float64) (*dedup.Result, error)
}
