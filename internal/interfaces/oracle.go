package interfaces

import (
	"context"
	"math"
)

// Estimate is the outcome of one visibility estimation. VisibilityFt is NaN
// when the image was unusable for estimation (error page, blank frame,
// obstruction, missing credentials, exhausted retries); Conditions carries the
// model's free-text rationale or an error description.
type Estimate struct {
	VisibilityFt float64
	Conditions   string
}

// Unusable reports whether this estimate is the "could not measure" sentinel,
// which downstream consumers must never conflate with a low numeric estimate.
func (e Estimate) Unusable() bool {
	return math.IsNaN(e.VisibilityFt)
}

// Unusable builds a sentinel estimate with the given description.
func Unusable(conditions string) Estimate {
	return Estimate{VisibilityFt: math.NaN(), Conditions: conditions}
}

// VisionOracle converts a snapshot image into a visibility estimate plus
// rationale text. Implementations never return an error: every failure mode
// degrades to the unusable sentinel with a descriptive Conditions string.
type VisionOracle interface {
	Estimate(ctx context.Context, imagePath string) Estimate
}
