package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frag(start, end float64, text string) Fragment {
	return Fragment{Interval: Interval{start, end}, Text: text}
}

func turn(start, end float64, speaker string) Turn {
	return Turn{Interval: Interval{start, end}, Speaker: speaker}
}

func TestAlign_ContainedFragmentGoesToItsTurn(t *testing.T) {
	turns := []Turn{turn(0, 5, "A"), turn(5, 10, "B"), turn(10, 15, "A")}
	a := NewAligner(nil)

	records := a.Align([]Fragment{frag(6, 7, "dentro de B")}, turns)
	require.Len(t, records, 1)
	assert.Equal(t, "B", records[0].Speaker)
}

func TestAlign_DropsUnmatchedAndBlank(t *testing.T) {
	turns := []Turn{turn(0, 5, "A")}
	a := NewAligner(nil)

	records, stats := a.AlignWithStats([]Fragment{
		frag(0, 1, "hola"),
		frag(20, 21, "fuera de todo turno"),
		frag(1, 2, "   "),
		frag(2, 3, ""),
	}, turns)

	require.Len(t, records, 1)
	assert.Equal(t, "hola", records[0].Text)
	assert.Equal(t, 4, stats.Fragments)
	assert.Equal(t, 1, stats.Attributed)
	assert.Equal(t, 1, stats.DroppedNoOverlap)
	assert.Equal(t, 2, stats.DroppedBlank)
	assert.Equal(t, 3, stats.Dropped())
}

func TestAlign_PreservesFragmentOrder(t *testing.T) {
	turns := []Turn{turn(10, 20, "B"), turn(0, 10, "A")}
	fragments := []Fragment{
		frag(0, 2, "uno"),
		frag(12, 14, "dos"),
		frag(3, 5, "tres"),
		frag(15, 18, "cuatro"),
	}

	records := NewAligner(nil).Align(fragments, turns)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"uno", "dos", "tres", "cuatro"}, texts(records))
	assert.Equal(t, []string{"A", "B", "A", "B"}, speakers(records))
	assert.LessOrEqual(t, len(records), len(fragments))
}

func TestAlign_TrimsAndNormalizes(t *testing.T) {
	a := NewAligner(MustNormalizer(DefaultRewrites))
	records := a.Align([]Fragment{frag(0, 2, "  vengo del leslim  ")}, []Turn{turn(0, 2, "A")})

	require.Len(t, records, 1)
	assert.Equal(t, "vengo del SLIM", records[0].Text)
}

func TestAlign_TieBreakIsIndependentOfTurnOrder(t *testing.T) {
	// The fragment overlaps both turns equally; the earlier-starting turn wins.
	fragment := []Fragment{frag(4, 6, "empate")}
	forward := []Turn{turn(3, 5, "A"), turn(5, 7, "B")}
	backward := []Turn{turn(5, 7, "B"), turn(3, 5, "A")}

	a := NewAligner(nil)
	assert.Equal(t, "A", a.Align(fragment, forward)[0].Speaker)
	assert.Equal(t, "A", a.Align(fragment, backward)[0].Speaker)
}

func TestAlign_TieBreakSameSpanUsesSpeakerID(t *testing.T) {
	fragment := []Fragment{frag(0, 1, "x")}
	turns := []Turn{turn(0, 1, "SPEAKER_01"), turn(0, 1, "SPEAKER_00")}

	assert.Equal(t, "SPEAKER_00", NewAligner(nil).Align(fragment, turns)[0].Speaker)
}

func TestAlign_DoesNotReorderCallerTurns(t *testing.T) {
	turns := []Turn{turn(5, 7, "B"), turn(3, 5, "A")}
	NewAligner(nil).Align([]Fragment{frag(4, 6, "x")}, turns)
	assert.Equal(t, "B", turns[0].Speaker)
}

func TestAlign_EmptyInputs(t *testing.T) {
	a := NewAligner(nil)
	assert.Empty(t, a.Align(nil, []Turn{turn(0, 1, "A")}))
	assert.Empty(t, a.Align([]Fragment{frag(0, 1, "sin turnos")}, nil))
}

func texts(records []AttributedRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

func speakers(records []AttributedRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Speaker
	}
	return out
}
