package attribution

import "strings"

// Fuse collapses each maximal run of same-role records into one record whose
// text is the run's texts joined by single spaces. The input is not modified.
func Fuse(records []LabeledRecord) []FinalRecord {
	out := make([]FinalRecord, 0, len(records))

	var (
		open    bool
		role    Role
		current strings.Builder
	)
	flush := func() {
		if open {
			out = append(out, FinalRecord{Role: role, Text: current.String()})
			current.Reset()
		}
	}

	for _, r := range records {
		if open && r.Role == role {
			current.WriteByte(' ')
			current.WriteString(r.Text)
			continue
		}
		flush()
		open, role = true, r.Role
		current.WriteString(r.Text)
	}
	flush()

	return out
}
