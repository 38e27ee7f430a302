package attribution

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	scerrors "github.com/otherjamesbrown/interview-scribe/pkg/errors"
)

// RolePolicy picks the raw speaker id that plays the distinguished role.
// Implementations must not mutate records and must fail on empty input.
type RolePolicy interface {
	Name() string
	Designate(records []AttributedRecord) (string, error)
}

// DefaultCues are the self-introduction phrases of the interviewing psychologist.
var DefaultCues = []string{
	"soy psicólogo",
	"soy psicóloga",
	"psicologo del slim",
	"psicóloga del slim",
	"psicologo de la defensoría",
	"psicóloga de la defensoría",
	"psicologo de defensoría",
	"psicóloga de defensoría",
}

// speakerText accumulates lower-cased text per speaker in order of first appearance.
type speakerText struct {
	order []string
	text  map[string]*strings.Builder
}

func accumulate(records []AttributedRecord, lower cases.Caser) *speakerText {
	acc := &speakerText{text: make(map[string]*strings.Builder)}
	for _, r := range records {
		b, ok := acc.text[r.Speaker]
		if !ok {
			b = &strings.Builder{}
			acc.text[r.Speaker] = b
			acc.order = append(acc.order, r.Speaker)
		}
		b.WriteByte(' ')
		b.WriteString(lower.String(strings.TrimSpace(r.Text)))
	}
	return acc
}

// CuePolicy designates the first speaker whose accumulated text contains any cue.
// Speakers are checked in order of first appearance; if none matches, the speaker
// of the first record is designated.
type CuePolicy struct {
	cues []string
}

// NewCuePolicy creates a cue policy. Cues are matched case-insensitively as substrings.
func NewCuePolicy(cues []string) *CuePolicy {
	lower := cases.Lower(language.Spanish)
	p := &CuePolicy{}
	for _, c := range cues {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p.cues = append(p.cues, lower.String(c))
	}
	return p
}

// Name identifies the policy in logs and config.
func (p *CuePolicy) Name() string { return "cues" }

// Designate implements RolePolicy.
func (p *CuePolicy) Designate(records []AttributedRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("designate distinguished role: %w", scerrors.ErrEmptyInput)
	}

	acc := accumulate(records, cases.Lower(language.Spanish))
	for _, spk := range acc.order {
		text := acc.text[spk].String()
		for _, cue := range p.cues {
			if strings.Contains(text, cue) {
				return spk, nil
			}
		}
	}
	return records[0].Speaker, nil
}

// LongestSpeakerPolicy designates the speaker with the most transcribed text.
// Ties go to the speaker that appeared first.
type LongestSpeakerPolicy struct{}

// Name identifies the policy in logs and config.
func (LongestSpeakerPolicy) Name() string { return "longest" }

// Designate implements RolePolicy.
func (LongestSpeakerPolicy) Designate(records []AttributedRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("designate distinguished role: %w", scerrors.ErrEmptyInput)
	}

	acc := accumulate(records, cases.Lower(language.Und))
	best, bestLen := "", -1
	for _, spk := range acc.order {
		if n := acc.text[spk].Len(); n > bestLen {
			best, bestLen = spk, n
		}
	}
	return best, nil
}

// PolicyByName returns the policy registered under name ("cues" or "longest").
func PolicyByName(name string, cues []string) (RolePolicy, error) {
	switch name {
	case "", "cues":
		return NewCuePolicy(cues), nil
	case "longest":
		return LongestSpeakerPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown role policy %q: %w", name, scerrors.ErrValidation)
	}
}
