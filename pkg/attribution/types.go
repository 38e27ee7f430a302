package attribution

// Interval is a time span in seconds. End is never before Start.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Fragment is one recognized utterance chunk from the speech-recognition engine.
// Text may be blank.
type Fragment struct {
	Interval
	Text string `json:"text"`
}

// Turn is the diarization engine's claim that Speaker was active over the interval.
// Speaker ids are only meaningful within one audio file.
type Turn struct {
	Interval
	Speaker string `json:"speaker"`
}

// AttributedRecord is a fragment's normalized text assigned to a raw speaker id.
type AttributedRecord struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Role is the resolved role of a record.
type Role string

const (
	RoleDistinguished Role = "distinguished"
	RoleOther         Role = "other"
)

// LabeledRecord is an attributed record after relabeling against the designated speaker.
type LabeledRecord struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// FinalRecord is a fused paragraph: one or more adjacent same-role records.
type FinalRecord struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
