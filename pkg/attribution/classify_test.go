package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

func rec(speaker, text string) AttributedRecord {
	return AttributedRecord{Speaker: speaker, Text: text}
}

func TestCuePolicy_CueAnywhereInText(t *testing.T) {
	policy := NewCuePolicy(DefaultCues)

	tests := []struct {
		name    string
		records []AttributedRecord
	}{
		{
			name: "cue in first record",
			records: []AttributedRecord{
				rec("B", "Buenas tardes, soy psicóloga de la defensoría"),
				rec("A", "hola"),
			},
		},
		{
			name: "cue late in the conversation",
			records: []AttributedRecord{
				rec("A", "hola"),
				rec("B", "buenas"),
				rec("A", "¿quién es usted?"),
				rec("B", "le comento que yo soy psicóloga"),
			},
		},
		{
			name: "cue split across two records of the same speaker",
			records: []AttributedRecord{
				rec("A", "hola"),
				rec("B", "yo soy"),
				rec("A", "sí"),
				rec("B", "psicóloga del SLIM"),
			},
		},
		{
			name: "cue in different casing",
			records: []AttributedRecord{
				rec("A", "hola"),
				rec("B", "SOY PSICÓLOGO"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Designate(tt.records)
			require.NoError(t, err)
			assert.Equal(t, "B", got)
		})
	}
}

func TestCuePolicy_DefaultsToFirstRecordSpeaker(t *testing.T) {
	records := []AttributedRecord{rec("X", "hola"), rec("Y", "buenas"), rec("X", "¿cómo está?")}

	got, err := NewCuePolicy(DefaultCues).Designate(records)
	require.NoError(t, err)
	assert.Equal(t, "X", got)
}

func TestCuePolicy_FirstMatchByAppearanceOrder(t *testing.T) {
	// Both speakers say a cue; the one who spoke first wins even if their cue came later.
	records := []AttributedRecord{
		rec("A", "hola"),
		rec("B", "soy psicólogo"),
		rec("A", "yo también soy psicóloga"),
	}

	got, err := NewCuePolicy(DefaultCues).Designate(records)
	require.NoError(t, err)
	assert.Equal(t, "A", got)
}

func TestCuePolicy_Deterministic(t *testing.T) {
	records := []AttributedRecord{rec("A", "hola"), rec("B", "psicóloga del slim"), rec("C", "yo")}
	policy := NewCuePolicy(DefaultCues)

	first, err := policy.Designate(records)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		got, err := policy.Designate(records)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestCuePolicy_EmptyInputFails(t *testing.T) {
	_, err := NewCuePolicy(DefaultCues).Designate(nil)
	require.Error(t, err)
	assert.True(t, scerrors.IsEmptyInput(err))
}

func TestCuePolicy_IgnoresBlankCues(t *testing.T) {
	policy := NewCuePolicy([]string{"", "  ", "entrevistadora"})
	got, err := policy.Designate([]AttributedRecord{rec("A", "hola"), rec("B", "soy la Entrevistadora")})
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestCuePolicy_DoesNotMutateRecords(t *testing.T) {
	records := []AttributedRecord{rec("A", "HOLA"), rec("B", "Soy Psicóloga")}
	_, err := NewCuePolicy(DefaultCues).Designate(records)
	require.NoError(t, err)
	assert.Equal(t, "HOLA", records[0].Text)
	assert.Equal(t, "Soy Psicóloga", records[1].Text)
}

func TestLongestSpeakerPolicy(t *testing.T) {
	records := []AttributedRecord{
		rec("A", "hola"),
		rec("B", "buenas tardes, le voy a hacer unas preguntas"),
		rec("A", "bueno"),
	}
	got, err := LongestSpeakerPolicy{}.Designate(records)
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	_, err = LongestSpeakerPolicy{}.Designate(nil)
	assert.True(t, scerrors.IsEmptyInput(err))
}

func TestLongestSpeakerPolicy_TieGoesToFirst(t *testing.T) {
	got, err := LongestSpeakerPolicy{}.Designate([]AttributedRecord{rec("B", "abc"), rec("A", "xyz")})
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("", DefaultCues)
	require.NoError(t, err)
	assert.Equal(t, "cues", p.Name())

	p, err = PolicyByName("longest", nil)
	require.NoError(t, err)
	assert.Equal(t, "longest", p.Name())

	_, err = PolicyByName("loudest", nil)
	assert.True(t, scerrors.IsValidation(err))
}
