package attribution

import "fmt"

// Summary describes one pipeline run for logs and metrics.
type Summary struct {
	Align        AlignStats
	Designated   string
	Policy       string
	FinalRecords int
}

// Pipeline runs align, designate, relabel and fuse for one audio file.
type Pipeline struct {
	Aligner *Aligner
	Policy  RolePolicy
}

// NewPipeline creates a pipeline. A nil policy falls back to the default cue list.
func NewPipeline(aligner *Aligner, policy RolePolicy) *Pipeline {
	if aligner == nil {
		aligner = NewAligner(nil)
	}
	if policy == nil {
		policy = NewCuePolicy(DefaultCues)
	}
	return &Pipeline{Aligner: aligner, Policy: policy}
}

// Run attributes fragments to turns and returns the fused transcript.
// No surviving fragments is not an error: the result is simply empty.
func (p *Pipeline) Run(fragments []Fragment, turns []Turn) ([]FinalRecord, Summary, error) {
	records, stats := p.Aligner.AlignWithStats(fragments, turns)
	summary := Summary{Align: stats, Policy: p.Policy.Name()}

	if len(records) == 0 {
		return []FinalRecord{}, summary, nil
	}

	designated, err := p.Policy.Designate(records)
	if err != nil {
		return nil, summary, fmt.Errorf("classifying roles: %w", err)
	}
	summary.Designated = designated

	final := Fuse(Relabel(records, designated))
	summary.FinalRecords = len(final)
	return final, summary, nil
}
