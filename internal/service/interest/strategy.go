// internal/service/interest/strategy.go

package interest

import "math"

// BucketStrategy converts a raw search count into a search priority score.
// Implementations must be monotonic: more searches never yield a lower
// score.
type BucketStrategy interface {
	Score(searchCount int) float64
}

// StepBuckets is the default strategy: discrete steps that saturate once a
// location is searched often enough.
type StepBuckets struct{}

// Score implements BucketStrategy.
func (StepBuckets) Score(searchCount int) float64 {
	switch {
	case searchCount < 5:
		return 1.0
	case searchCount < 10:
		return 1.5
	case searchCount < 20:
		return 2.0
	default:
		return 2.5
	}
}

// LogScaled is an alternative smooth strategy for tuning without code
// changes: 1.0 at a single search, approaching the cap logarithmically.
type LogScaled struct {
	Base float64
	Cap  float64
}

// Score implements BucketStrategy.
func (s LogScaled) Score(searchCount int) float64 {
	base := s.Base
	if base <= 0 {
		base = 1.0
	}
	cap := s.Cap
	if cap <= base {
		cap = 2.5
	}
	if searchCount < 1 {
		searchCount = 1
	}

	score := base + math.Log10(float64(searchCount))*0.75
	if score > cap {
		return cap
	}
	return score
}
