package attribution

import "math"

// Overlap returns the intersection-over-union of two time spans, in [0,1].
// Disjoint spans and zero-length unions score 0.
func Overlap(a, b Interval) float64 {
	inter := math.Max(0, math.Min(a.End, b.End)-math.Max(a.Start, b.Start))
	union := math.Max(a.End, b.End) - math.Min(a.Start, b.Start)
	if union <= 0 {
		return 0
	}
	return inter / union
}
