package attribution

import (
	"sort"
	"strings"
)

// Aligner assigns transcript fragments to the diarization turn they best overlap.
type Aligner struct {
	// Normalizer rewrites known recognizer artifacts. Nil leaves text as is.
	Normalizer *Normalizer
}

// NewAligner creates an aligner using the given normalizer.
func NewAligner(n *Normalizer) *Aligner {
	return &Aligner{Normalizer: n}
}

// AlignStats counts what happened to the input fragments.
type AlignStats struct {
	Fragments        int
	Attributed       int
	DroppedNoOverlap int
	DroppedBlank     int
}

// Dropped is the total number of fragments that produced no record.
func (s AlignStats) Dropped() int {
	return s.DroppedNoOverlap + s.DroppedBlank
}

// Align returns one record per usable fragment, in fragment order.
func (a *Aligner) Align(fragments []Fragment, turns []Turn) []AttributedRecord {
	records, _ := a.AlignWithStats(fragments, turns)
	return records
}

// AlignWithStats is Align plus drop counts.
//
// Each fragment goes to the turn with the strictly greatest overlap. Turns are
// ordered by start, end, then speaker id first, so ties resolve to the earliest
// turn regardless of how the diarization engine enumerated them. Fragments with
// no overlapping turn, or with blank text, are dropped.
func (a *Aligner) AlignWithStats(fragments []Fragment, turns []Turn) ([]AttributedRecord, AlignStats) {
	stats := AlignStats{Fragments: len(fragments)}
	ordered := sortedTurns(turns)

	records := make([]AttributedRecord, 0, len(fragments))
	for _, frag := range fragments {
		text := strings.TrimSpace(frag.Text)
		if text == "" {
			stats.DroppedBlank++
			continue
		}

		best, ok := bestTurn(frag.Interval, ordered)
		if !ok {
			stats.DroppedNoOverlap++
			continue
		}

		records = append(records, AttributedRecord{
			Speaker: best.Speaker,
			Text:    a.Normalizer.Normalize(text),
		})
	}

	stats.Attributed = len(records)
	return records, stats
}

// bestTurn returns the first turn with the highest non-zero overlap.
func bestTurn(span Interval, turns []Turn) (Turn, bool) {
	var (
		best      Turn
		bestScore float64
		found     bool
	)
	for _, t := range turns {
		score := Overlap(span, t.Interval)
		if score > bestScore {
			best, bestScore, found = t, score, true
		}
	}
	return best, found
}

func sortedTurns(turns []Turn) []Turn {
	ordered := make([]Turn, len(turns))
	copy(ordered, turns)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Speaker < b.Speaker
	})
	return ordered
}
